package lane

import (
	"fmt"
	"sort"

	"git.fiblab.net/general/common/v2/parallel"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/aimsim/entity"
	"github.com/tsinghua-fib-lab/aimsim/utils/input"
)

// LaneManager Lane管理器
// 功能：管理所有Lane实体，提供创建、查找、初始化等功能
type LaneManager struct {
	data  map[int32]*Lane
	lanes []*Lane
}

// NewManager 创建Lane管理器实例
func NewManager() *LaneManager {
	return &LaneManager{
		data:  make(map[int32]*Lane),
		lanes: make([]*Lane, 0),
	}
}

// Init 初始化所有Lane
// 功能：创建所有Lane对象，建立ID映射关系和连接关系
// 参数：bases-地图中的车道描述
// 说明：使用并行处理，分两阶段：创建对象和建立连接关系
func (m *LaneManager) Init(bases []*input.Lane) {
	m.lanes = parallel.GoMap(bases, func(base *input.Lane) *Lane {
		return newLane(base)
	})
	sort.Slice(m.lanes, func(i, j int) bool { return m.lanes[i].id < m.lanes[j].id })
	m.data = lo.SliceToMap(m.lanes, func(l *Lane) (int32, *Lane) {
		return l.id, l
	})
	if len(m.data) != len(m.lanes) {
		log.Panicf("lanes have duplicated ids")
	}
	parallel.GoFor(m.lanes, func(l *Lane) { l.initWithManager(m) })
}

// InitAfterJunction 在道路和路口设置好父对象后计算NextLane
func (m *LaneManager) InitAfterJunction() {
	for _, l := range m.lanes {
		l.initNextLane()
	}
}

// Get 根据ID获取Lane，不存在则panic
func (m *LaneManager) Get(id int32) entity.ILane {
	if lane, ok := m.data[id]; !ok {
		log.Panicf("no id %d in lane data", id)
		return nil
	} else {
		return lane
	}
}

// GetOrError 根据ID获取Lane，不存在则返回错误
func (m *LaneManager) GetOrError(id int32) (entity.ILane, error) {
	if lane, ok := m.data[id]; !ok {
		return nil, fmt.Errorf("no id %d in lane data", id)
	} else {
		return lane, nil
	}
}

// Lanes 所有车道，按ID升序
func (m *LaneManager) Lanes() []entity.ILane {
	return lo.Map(m.lanes, func(l *Lane, _ int) entity.ILane { return l })
}
