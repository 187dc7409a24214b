package junction

import (
	"errors"
	"sort"

	"git.fiblab.net/general/common/v2/geometry"
	"git.fiblab.net/general/common/v2/mathutil"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/paulmach/orb"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/aimsim/entity"
	"github.com/tsinghua-fib-lab/aimsim/entity/junction/admission"
	"github.com/tsinghua-fib-lab/aimsim/entity/junction/reservation"
	"github.com/tsinghua-fib-lab/aimsim/entity/junction/trafficlight"
	"github.com/tsinghua-fib-lab/aimsim/entity/message"
	"github.com/tsinghua-fib-lab/aimsim/utils/config"
	"github.com/tsinghua-fib-lab/aimsim/utils/input"
	"github.com/tsinghua-fib-lab/aimsim/utils/shape"
)

var (
	ErrDisabledTrafficLight = errors.New("traffic light is disabled for the junction")
)

type connectorKey struct {
	arrival   int32
	departure int32
}

// Stats 路口的请求处理统计
type Stats struct {
	Requests int
	Confirms int
	Rejects  map[message.Reason]int
	Dones    int // 收到的Done消息数
	Expired  int // 过期删除的预约数
}

// Junction 路口管理器
// 功能：管理路口边界、连接车道与信号灯，按收件箱顺序处理车辆的通行请求并维护预约台账
type Junction struct {
	ctx entity.ITaskContext

	id         int32
	lanes      []entity.ILane // 连接车道，按ID升序
	connectors map[connectorKey]entity.ILane
	arrivals   []entity.ILane // 驶入车道，按ID升序

	boundary orb.Ring
	centroid geometry.Point
	time     float64 // 本地时钟
	power    float64

	trafficLight ITrafficLight                            // 可修改的信号灯程序，file与green类型时为nil
	controllers  map[int32]trafficlight.ISignalController // 驶入车道ID->信号控制器
	stateIndex   []int                                    // 连接车道在信控程序中的状态下标，与lanes对应

	grid    *reservation.Grid
	ledger  *reservation.Ledger
	handler *admission.Handler

	inbox  []message.V2I
	outbox []message.I2V
	stats  Stats
}

// newJunction 创建并初始化一个新的Junction实例
// 功能：建立连接车道映射，计算路口边界与中心，创建信号灯与准入控制器
// 参数：ctx-任务上下文，base-路口描述，laneManager-车道管理器，file-外部相位文件（非file类型时为nil）
func newJunction(
	ctx entity.ITaskContext,
	base *input.Junction,
	laneManager entity.ILaneManager,
	file *trafficlight.PhaseFile,
) *Junction {
	rc := ctx.RuntimeConfig()
	j := &Junction{
		ctx:         ctx,
		id:          base.ID,
		connectors:  make(map[connectorKey]entity.ILane),
		time:        ctx.Clock().T,
		power:       rc.C.Admission.TransmissionPower,
		controllers: make(map[int32]trafficlight.ISignalController),
		ledger:      reservation.NewLedger(),
		stats:       Stats{Rejects: make(map[message.Reason]int)},
	}
	for _, id := range base.LaneIDs {
		lane := laneManager.Get(id)
		lane.SetParentJunctionWhenInit(j)
		j.lanes = append(j.lanes, lane)
	}
	sort.Slice(j.lanes, func(a, b int) bool { return j.lanes[a].ID() < j.lanes[b].ID() })

	arrivals := make(map[int32]entity.ILane)
	for _, l := range j.lanes {
		for _, pre := range l.Predecessors() {
			arrivals[pre.ID()] = pre
			for _, suc := range l.Successors() {
				key := connectorKey{arrival: pre.ID(), departure: suc.ID()}
				if _, ok := j.connectors[key]; !ok {
					j.connectors[key] = l
				}
			}
		}
	}
	j.arrivals = lo.Values(arrivals)
	sort.Slice(j.arrivals, func(a, b int) bool { return j.arrivals[a].ID() < j.arrivals[b].ID() })

	j.initBoundary()
	j.initSignal(base, laneManager, file)

	a := rc.C.Admission
	j.grid = reservation.NewGrid(j.boundary.Bound(), a.Granularity, a.GridTimeStep)
	var policy admission.Policy
	switch a.Policy {
	case config.PolicyGrid:
		policy = admission.NewGridPolicy(lo.Map(j.arrivals, func(l entity.ILane, _ int) int32 { return l.ID() }))
	default:
		policy = admission.NewSignalPolicy(j.controllers)
	}
	j.handler = admission.NewHandler(j.id, policy, j.grid, j.ledger, j.path, admission.Options{
		MaxFutureReservation: a.MaxFutureReservation,
		CheckAllProposals:    a.CheckAllProposals,
		Params: reservation.Params{
			StaticBuffer:         a.StaticBuffer,
			InternalTimeBuffer:   a.InternalTimeBuffer,
			MinTraversalVelocity: a.MinTraversalVelocity,
		},
	})
	return j
}

// initBoundary 连接车道中心线外扩半个车道宽后的外接矩形作为路口边界
func (j *Junction) initBoundary() {
	var b orb.Bound
	for i, l := range j.lanes {
		for k, p := range l.Line() {
			pb := orb.Bound{Min: shape.FromPoint(p), Max: shape.FromPoint(p)}.Pad(l.Width() / 2)
			if i == 0 && k == 0 {
				b = pb
			} else {
				b = b.Union(pb)
			}
		}
	}
	j.boundary = b.ToRing()
	j.centroid = geometry.GetPolygonCentroid2D(lo.Map(j.boundary[:len(j.boundary)-1], func(p orb.Point, _ int) geometry.Point {
		return geometry.Point{X: p[0], Y: p[1]}
	}))
}

// initSignal 创建信号灯，并为每条驶入车道绑定信号控制器
// 说明：驶入车道的信号取其ID最小的连接车道在程序中的状态
func (j *Junction) initSignal(base *input.Junction, laneManager entity.ILaneManager, file *trafficlight.PhaseFile) {
	s := j.ctx.RuntimeConfig().C.Signal
	programLaneIDs := base.ProgramLaneIDs
	if programLaneIDs == nil {
		programLaneIDs = base.LaneIDs
	}
	index := lo.SliceToMap(lo.Range(len(programLaneIDs)), func(i int) (int32, int) {
		return programLaneIDs[i], i
	})
	j.stateIndex = lo.Map(j.lanes, func(l entity.ILane, _ int) int {
		i, ok := index[l.ID()]
		if !ok {
			log.Panicf("junction %d: lane %d is not in traffic light program lanes", j.id, l.ID())
		}
		return i
	})

	switch s.Type {
	case config.SignalCyclic, config.SignalMaxPressure:
		program := j.loadProgram(base, laneManager, programLaneIDs)
		if s.Type == config.SignalCyclic {
			p := trafficlight.NewCyclicProgram(j.id, len(programLaneIDs))
			if err := p.Set(program, j.time); err != nil {
				log.Panicf("junction %d: set program error: %v", j.id, err)
			}
			j.trafficLight = p
		} else {
			j.trafficLight = trafficlight.NewMaxPressure(j.id, len(programLaneIDs), program)
		}
		for i, l := range j.lanes {
			for _, pre := range l.Predecessors() {
				if _, ok := j.controllers[pre.ID()]; !ok {
					j.controllers[pre.ID()] = j.trafficLight.Lane(j.stateIndex[i])
				}
			}
		}
	case config.SignalFile:
		for _, pre := range j.arrivals {
			if road := pre.ParentRoad(); road != nil {
				j.controllers[pre.ID()] = file.Lane(road.Direction(), pre.IndexInRoad())
			} else {
				j.controllers[pre.ID()] = trafficlight.AlwaysRed
			}
		}
	default:
		for _, pre := range j.arrivals {
			j.controllers[pre.ID()] = trafficlight.AlwaysGreen
		}
	}
}

// loadProgram 信控程序的来源：相位CSV文件 > 地图自带程序 > 默认两相位程序
func (j *Junction) loadProgram(base *input.Junction, laneManager entity.ILaneManager, programLaneIDs []int32) *mapv2.TrafficLight {
	s := j.ctx.RuntimeConfig().C.Signal
	if s.PhaseCSV == "" && base.Program != nil && len(base.Program.Phases) > 0 {
		return base.Program
	}
	directions := lo.Map(programLaneIDs, func(id int32, _ int) entity.Direction {
		l, err := laneManager.GetOrError(id)
		if err != nil || len(l.Predecessors()) == 0 || l.Predecessors()[0].ParentRoad() == nil {
			return entity.DirectionUnknown
		}
		return l.Predecessors()[0].ParentRoad().Direction()
	})
	program, err := parseProgram(s.PhaseCSV, j.id, directions)
	if err != nil {
		log.Panicf("junction %d: %v", j.id, err)
	}
	return program
}

// update Coordinate阶段：推进本地时钟，按顺序处理收件箱，删除过期预约
func (j *Junction) update(dt float64, pressure func(arrival, departure int32) float64) {
	j.time += dt
	if tl, ok := j.trafficLight.(IPressureDriven); ok {
		states := make([]float64, len(j.stateIndex))
		for i, l := range j.lanes {
			if len(l.Predecessors()) > 0 && len(l.Successors()) > 0 {
				states[j.stateIndex[i]] = pressure(l.Predecessors()[0].ID(), l.Successors()[0].ID())
			}
		}
		tl.Update(j.time, dt, states)
	}

	inbox := j.inbox
	j.inbox = nil
	for _, msg := range inbox {
		switch m := msg.(type) {
		case *message.Request:
			j.stats.Requests++
			reply := j.handler.ProcessRequest(m, j.time)
			if r, ok := reply.(*message.Reject); ok {
				j.stats.Rejects[r.Reason]++
			} else {
				j.stats.Confirms++
			}
			log.Debugf("junction %d: %v -> %v", j.id, m, reply)
			j.outbox = append(j.outbox, reply)
		case *message.Done:
			j.stats.Dones++
			if !j.ledger.ReleaseReservation(m.Vin, m.ReservationID) {
				log.Debugf("junction %d: %v for unknown reservation", j.id, m)
			}
		default:
			log.Warnf("junction %d: unknown message %v", j.id, msg)
		}
	}
	j.stats.Expired += len(j.ledger.Expire(j.time))
}

// path 由驶入与驶出车道找到连接车道作为预约路径
func (j *Junction) path(arrivalLaneID, departureLaneID int32) (reservation.Path, bool) {
	l, ok := j.connectors[connectorKey{arrival: arrivalLaneID, departure: departureLaneID}]
	return l, ok
}

// ID 获取Junction的唯一标识符
// 返回：Junction的ID，如果Junction为nil则返回-1
func (j *Junction) ID() int32 {
	if j == nil {
		return -1
	}
	return j.id
}

func (j *Junction) Lanes() []entity.ILane {
	return j.lanes
}

// ArrivalLanes 驶入车道，按ID升序
func (j *Junction) ArrivalLanes() []entity.ILane {
	return j.arrivals
}

func (j *Junction) Centroid() geometry.Point {
	return j.centroid
}

func (j *Junction) Boundary() orb.Ring {
	return j.boundary
}

// Intersects 多边形与路口边界是否相交（接触也算）
func (j *Junction) Intersects(r orb.Ring) bool {
	return shape.Intersects(r, j.boundary)
}

func (j *Junction) ConnectorLane(arrivalLaneID, departureLaneID int32) (entity.ILane, bool) {
	l, ok := j.connectors[connectorKey{arrival: arrivalLaneID, departure: departureLaneID}]
	return l, ok
}

// DepartureLane 驶入车道经过本路口到达目标道路的驶出车道，优先与驶入车道序号相同的车道
func (j *Junction) DepartureLane(arrival entity.ILane, destination entity.IRoad) (entity.ILane, bool) {
	var found entity.ILane
	for _, c := range arrival.Successors() {
		if c.ParentJunction() != entity.IJunction(j) {
			continue
		}
		for _, dep := range c.Successors() {
			if dep.ParentRoad() != destination {
				continue
			}
			if dep.IndexInRoad() == arrival.IndexInRoad() {
				return dep, true
			}
			if found == nil {
				found = dep
			}
		}
	}
	return found, found != nil
}

// Signal 驶入车道在当前仿真时间的信号状态与剩余时长，未知车道为红灯
func (j *Junction) Signal(arrivalLaneID int32) (mapv2.LightState, float64) {
	c, ok := j.controllers[arrivalLaneID]
	if !ok {
		return mapv2.LightState_LIGHT_STATE_RED, mathutil.INF
	}
	return c.Lookup(j.ctx.Clock().T)
}

// Controller 驶入车道的信号控制器
func (j *Junction) Controller(arrivalLaneID int32) (trafficlight.ISignalController, bool) {
	c, ok := j.controllers[arrivalLaneID]
	return c, ok
}

func (j *Junction) TransmissionPower() float64 {
	return j.power
}

func (j *Junction) Receive(msg message.V2I) {
	j.inbox = append(j.inbox, msg)
}

func (j *Junction) PopOutbox() []message.I2V {
	out := j.outbox
	j.outbox = nil
	return out
}

func (j *Junction) HasReservation(vin int32) bool {
	return j.ledger.Has(vin)
}

func (j *Junction) VehicleCompleted(vin int32) {
	j.ledger.Release(vin)
}

// Ledger 预约台账
func (j *Junction) Ledger() *reservation.Ledger {
	return j.ledger
}

// Time 本地时钟
func (j *Junction) Time() float64 {
	return j.time
}

func (j *Junction) Stats() Stats {
	return j.stats
}

// HasTrafficLight 判断是否有正常工作的可修改信号灯
func (j *Junction) HasTrafficLight() bool {
	return j.trafficLight != nil && j.trafficLight.Ok()
}

// SetTrafficLight 设置信号灯程序
// 返回：设置结果，如果信号灯被禁用则返回错误
func (j *Junction) SetTrafficLight(tl *mapv2.TrafficLight) error {
	if j.trafficLight == nil {
		return ErrDisabledTrafficLight
	}
	return j.trafficLight.Set(tl, j.ctx.Clock().T)
}

// unsetTrafficLight 取消信号灯程序，使其变为全绿灯状态
func (j *Junction) unsetTrafficLight() error {
	if j.trafficLight == nil {
		return ErrDisabledTrafficLight
	}
	j.trafficLight.Unset()
	return nil
}

// setPhase 设置信号灯到指定的相位和剩余时间
func (j *Junction) setPhase(index int32, remainingTime float64) error {
	if j.trafficLight == nil {
		return ErrDisabledTrafficLight
	}
	return j.trafficLight.SetPhase(j.ctx.Clock().T, index, remainingTime)
}

// setStatus 设置信号灯的开关状态
// 参数：ok-信号灯状态，true表示正常工作，false表示失效（全绿灯）
func (j *Junction) setStatus(ok bool) error {
	if j.trafficLight == nil {
		return ErrDisabledTrafficLight
	}
	j.trafficLight.SetOk(ok)
	return nil
}
