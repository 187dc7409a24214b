package junction

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"git.fiblab.net/general/common/v2/parallel"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	mapv2connect "git.fiblab.net/sim/protos/v2/go/city/map/v2/mapv2connect"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/aimsim/entity"
	"github.com/tsinghua-fib-lab/aimsim/entity/junction/trafficlight"
	"github.com/tsinghua-fib-lab/aimsim/utils/config"
	"github.com/tsinghua-fib-lab/aimsim/utils/input"
)

// Junction管理器
type JunctionManager struct {
	mapv2connect.UnimplementedTrafficLightServiceHandler

	ctx entity.ITaskContext

	data      map[int32]*Junction
	junctions []*Junction

	file *trafficlight.PhaseFile // 外部相位文件，所有路口共用
}

// NewManager 创建Junction管理器实例
func NewManager(ctx entity.ITaskContext) *JunctionManager {
	return &JunctionManager{
		ctx:       ctx,
		data:      make(map[int32]*Junction),
		junctions: make([]*Junction, 0),
	}
}

// Init 初始化所有Junction及其信控
// 功能：启动外部相位文件轮询（file类型），创建所有Junction对象并建立车道映射关系
// 参数：bases-路口描述，laneManager-车道管理器
// 说明：使用并行处理提高初始化效率，道路管理器需已完成Init
func (m *JunctionManager) Init(bases []*input.Junction, laneManager entity.ILaneManager) {
	s := m.ctx.RuntimeConfig().C.Signal
	if s.Type == config.SignalFile {
		m.file = trafficlight.NewPhaseFile(s.PhaseFile, s.PollInterval)
		m.file.Start(context.Background())
	}
	m.junctions = parallel.GoMap(bases, func(base *input.Junction) *Junction {
		return newJunction(m.ctx, base, laneManager, m.file)
	})
	sort.Slice(m.junctions, func(a, b int) bool { return m.junctions[a].id < m.junctions[b].id })
	m.data = lo.SliceToMap(m.junctions, func(j *Junction) (int32, *Junction) {
		return j.id, j
	})
	if len(m.data) != len(m.junctions) {
		log.Panicf("junctions have duplicated ids")
	}
	log.Infof("%d junctions initialized with %s policy and %s signal", len(m.junctions), m.ctx.RuntimeConfig().C.Admission.Policy, s.Type)
}

// Get 根据ID获取Junction实例，如果不存在则panic
func (m *JunctionManager) Get(id int32) entity.IJunction {
	if junction, ok := m.data[id]; !ok {
		log.Panicf("no id %d in junction data", id)
		return nil
	} else {
		return junction
	}
}

// GetOrError 根据ID获取Junction实例，如果不存在则返回错误
func (m *JunctionManager) GetOrError(id int32) (entity.IJunction, error) {
	if junction, ok := m.data[id]; !ok {
		return nil, fmt.Errorf("no id %d in junction data", id)
	} else {
		return junction, nil
	}
}

// Junctions 所有路口，按ID升序
func (m *JunctionManager) Junctions() []entity.IJunction {
	return lo.Map(m.junctions, func(j *Junction, _ int) entity.IJunction { return j })
}

// All 所有路口的具体类型，按ID升序
func (m *JunctionManager) All() []*Junction {
	return m.junctions
}

// Update Coordinate阶段，推进所有Junction的本地时钟并处理收件箱
// 参数：dt-时间步长
// 说明：路口之间相互独立，使用并行处理
func (m *JunctionManager) Update(dt float64) {
	counts := m.laneVehicleCounts()
	pressure := func(arrival, departure int32) float64 {
		return float64(counts[arrival] - counts[departure])
	}
	parallel.GoFor(m.junctions, func(j *Junction) { j.update(dt, pressure) })
}

// laneVehicleCounts 各车道上的车辆数，只有最大压力信控需要
func (m *JunctionManager) laneVehicleCounts() map[int32]int {
	if m.ctx.RuntimeConfig().C.Signal.Type != config.SignalMaxPressure || m.ctx.VehicleManager() == nil {
		return nil
	}
	counts := make(map[int32]int)
	for _, v := range m.ctx.VehicleManager().Vehicles() {
		if l := v.Lane(); l != nil {
			counts[l.ID()]++
		}
	}
	return counts
}

// Close 停止外部相位文件轮询
func (m *JunctionManager) Close() {
	if m.file != nil {
		m.file.Close()
	}
}

// parseProgram 从相位CSV文件读取信控程序，path为空时使用默认两相位程序
func parseProgram(path string, junctionID int32, directions []entity.Direction) (*mapv2.TrafficLight, error) {
	var r io.Reader
	if path == "" {
		r = strings.NewReader(trafficlight.DefaultPhaseCSV)
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open phase csv: %w", err)
		}
		defer f.Close()
		r = f
	}
	return trafficlight.ParsePhaseCSV(r, junctionID, directions)
}
