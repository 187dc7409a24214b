package vehicle

import (
	"math"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/aimsim/entity"
	"github.com/tsinghua-fib-lab/aimsim/entity/message"
	"github.com/tsinghua-fib-lab/aimsim/utils/config"
)

const (
	minimumFollowingDistance = 0.5 // 与前车保持的最小距离（米）
	stoppedVelocity          = 0.1 // 低于该速度视为静止（米/秒）
	// 提案到达时间相对当前时间的最小提前量（步）：请求投递、路口处理、确认投递各一步
	requestLatencySteps = 3
)

// ReservationState 车辆视角的预约状态
type ReservationState int

const (
	ReservationNone      ReservationState = iota // 未持有预约
	ReservationRequested                         // 已发出请求，等待回复
	ReservationHeld                              // 持有确认的预约
)

func (s ReservationState) String() string {
	return [...]string{"None", "Requested", "Held"}[s]
}

// driver V2I驾驶员
// 功能：读取传感器与收件箱，给出加速度指令，并按需向前方路口发送请求或Done
// 算法说明：
// 1. 无预约时按限速巡航，在停车线前停车，接近路口后周期性发送请求
// 2. 持有预约时调整加速度，使车头在预约时间到达停车线，路口内保持预约速度
// 3. 车身完全驶出路口后发送Done；晚于预约时间仍未到达停车线则放弃预约并重新请求
type driver struct {
	v *Vehicle
	c config.Driver

	// 晚到容忍时间，超过后放弃预约
	lateTolerance float64

	state         ReservationState
	nextRequestID int32
	requestID     int32   // 最近一次请求的ID
	lastRequestAt float64 // 最近一次请求的发送时间
	confirm       *message.Confirm
}

func newDriver(v *Vehicle, c config.Control) *driver {
	return &driver{
		v:             v,
		c:             c.Driver,
		lateTolerance: math.Max(c.Admission.InternalTimeBuffer, c.Step.Interval),
		lastRequestAt: math.Inf(-1),
	}
}

// decide Decide阶段
func (d *driver) decide(now, dt float64) {
	d.processInbox()
	d.checkReservation(now)
	d.request(now, dt)
	d.v.a = d.throttle(now, dt)
}

// processInbox 处理收件箱
// 说明：已持有预约或已无法履约时，对多余的确认立即回复Done释放
func (d *driver) processInbox() {
	inbox := d.v.inbox
	d.v.inbox = nil
	for _, msg := range inbox {
		switch m := msg.(type) {
		case *message.Confirm:
			switch {
			case d.state == ReservationHeld && d.confirm.ReservationID == m.ReservationID:
				// 重复
			case d.state == ReservationHeld,
				!d.v.lane.InRoad(),
				d.v.lane.ID() != m.Proposal.ArrivalLaneID:
				log.Debugf("%v: release unusable %v", d.v, m)
				d.done(m)
			default:
				d.state = ReservationHeld
				d.confirm = m
			}
		case *message.Reject:
			if d.state == ReservationRequested && m.RequestID == d.requestID {
				d.state = ReservationNone
			}
			log.Debugf("%v: %v", d.v, m)
		default:
			log.Warnf("%v: unknown message %v", d.v, msg)
		}
	}
}

// checkReservation 车身完全驶出路口后或晚于预约到达时间时结束预约
// 说明：车头进入驶出车道时车尾仍在路口内，预约的时空格要保留到车尾离开
func (d *driver) checkReservation(now float64) {
	if d.state != ReservationHeld {
		return
	}
	p := d.confirm.Proposal
	switch {
	case d.v.lane.ID() == p.DepartureLaneID:
		if d.insideReservedJunction() {
			return
		}
		d.done(d.confirm)
	case d.v.lane.InRoad() && now > p.ArrivalTime+d.lateTolerance:
		log.Debugf("%v: late for %v at %.2f, cancel", d.v, p, now)
		d.done(d.confirm)
	default:
		return
	}
	d.state = ReservationNone
	d.confirm = nil
}

// insideReservedJunction 车身是否仍与预约所在路口的边界相交
func (d *driver) insideReservedJunction() bool {
	j, err := d.v.ctx.JunctionManager().GetOrError(d.confirm.Junction)
	if err != nil {
		log.Warnf("%v: reserved junction %d: %v", d.v, d.confirm.Junction, err)
		return false
	}
	return j.Intersects(d.v.Shape())
}

func (d *driver) done(c *message.Confirm) {
	d.v.send(&message.Done{Vin: d.v.vin, Junction: c.Junction, ReservationID: c.ReservationID})
}

// request 接近路口且未持有预约时，每request_interval秒发送一次请求
// 说明：等待回复超过request_interval视为消息丢失，直接重发
func (d *driver) request(now, dt float64) {
	if d.state == ReservationHeld {
		return
	}
	j := d.v.nextJunction()
	if j == nil {
		return
	}
	dist := d.v.DistanceToNextIntersection()
	if dist <= 0 || dist > d.c.RequestDistance || now-d.lastRequestAt < d.c.RequestInterval {
		return
	}
	dep, ok := j.DepartureLane(d.v.lane, d.v.destination)
	if !ok {
		log.Warnf("%v: no departure lane to %v at junction %d", d.v, d.v.destination, j.ID())
		d.lastRequestAt = now
		return
	}
	proposals := d.proposals(now, dt, dist, dep.ID())
	if len(proposals) == 0 {
		return
	}
	d.nextRequestID++
	d.requestID = d.nextRequestID
	d.v.send(&message.Request{
		Vin:       d.v.vin,
		Junction:  j.ID(),
		RequestID: d.requestID,
		Proposals: proposals,
		Length:    d.v.spec.Length,
		Width:     d.v.spec.Width,
		MaxAccel:  d.v.spec.MaxAccel,
		MaxDecel:  d.v.spec.MaxDecel,
	})
	d.state = ReservationRequested
	d.lastRequestAt = now
}

// proposals 生成通行方案
// 算法说明：
// 1. 候选到达速度依次为车道限速、当前速度、车道限速的一半
// 2. 到达速度不超过以最大加速度行驶dist后可达的速度，去除重复与近似静止的速度
// 3. 到达时间按先加（减）速到目标速度再匀速的方式估计，且不早于消息往返所需的时间
func (d *driver) proposals(now, dt, dist float64, departureLaneID int32) []message.Proposal {
	spec := d.v.spec
	limit := math.Min(d.v.lane.MaxV(), spec.MaxVelocity)
	v0 := d.v.v
	reachable := math.Sqrt(v0*v0 + 2*spec.MaxAccel*dist)
	latency := requestLatencySteps * dt
	res := make([]message.Proposal, 0, 3)
	for _, candidate := range []float64{limit, v0, limit / 2} {
		vel := math.Min(candidate, reachable)
		if vel < stoppedVelocity || lo.ContainsBy(res, func(p message.Proposal) bool {
			return math.Abs(p.ArrivalVelocity-vel) < 1e-6
		}) {
			continue
		}
		t := travelTime(v0, vel, dist, spec.MaxAccel, spec.MaxDecel)
		res = append(res, message.Proposal{
			ArrivalLaneID:   d.v.lane.ID(),
			DepartureLaneID: departureLaneID,
			ArrivalTime:     now + math.Max(t, latency),
			ArrivalVelocity: vel,
		})
	}
	return res
}

// travelTime 从速度v0出发、以v1到达dist处所需时间
func travelTime(v0, v1, dist, accel, decel float64) float64 {
	if v1 >= v0 {
		t := (v1 - v0) / accel
		d := (v0 + v1) / 2 * t
		return t + math.Max(dist-d, 0)/v1
	}
	t := (v1 - v0) / -decel
	d := (v0 + v1) / 2 * t
	if d >= dist {
		// 距离不足以减到v1，按匀减速估计
		return 2 * dist / (v0 + v1)
	}
	return t + (dist-d)/v1
}

// throttle 计算加速度指令
// 说明：各规则给出的加速度取最小值，最终限制在车辆规格的加减速范围内
func (d *driver) throttle(now, dt float64) float64 {
	spec := d.v.spec
	limit := math.Min(spec.MaxVelocity, d.v.lane.MaxV())
	act := Action{A: d.towards(limit, dt), Reason: "cruise"}
	dist := d.v.DistanceToNextIntersection()
	switch {
	case d.state == ReservationHeld && d.v.lane.ID() == d.confirm.Proposal.ArrivalLaneID && dist > 0:
		act = Action{A: d.arrive(now, dt, dist), Reason: "reservation"}
	case d.state == ReservationHeld:
		act = Action{A: d.towards(d.confirm.Proposal.ArrivalVelocity, dt), Reason: "traverse"}
	case dist > 0 && dist != math.MaxFloat64:
		act.Update(d.dontEnterIntersection(dist, dt))
	}
	act.Update(d.dontHitVehicleInFront())
	return lo.Clamp(act.A, -spec.MaxDecel, spec.MaxAccel)
}

// towards 在一步内达到目标速度所需的加速度
func (d *driver) towards(target, dt float64) float64 {
	return (target - d.v.v) / dt
}

// arrive 以匀加速运动在预约到达时间恰好行驶dist
// 说明：剩余时间不足一步时改为趋近预约到达速度
func (d *driver) arrive(now, dt, dist float64) float64 {
	p := d.confirm.Proposal
	t := p.ArrivalTime - now
	if t <= dt {
		return d.towards(p.ArrivalVelocity, dt)
	}
	return 2 * (dist - d.v.v*t) / (t * t)
}

// dontEnterIntersection 无预约时在停车线前刹停
// 说明：若下一步仍全力加速，之后再全力制动也会越过停车距离，则从现在开始制动
func (d *driver) dontEnterIntersection(dist, dt float64) Action {
	act := Action{A: math.Inf(1), Reason: "stop line"}
	brakeDistance := dist - d.c.StopDistanceBeforeIntersection
	if brakeDistance >= d.distIfStopNextTimeStep(dt) {
		return act
	}
	act.A = -d.v.spec.MaxDecel
	act.SetBrakeAcc(brakeDistance, d.v.v)
	return act
}

// distIfStopNextTimeStep 下一步全力加速后再全力制动至停车的行驶距离
func (d *driver) distIfStopNextTimeStep(dt float64) float64 {
	spec := d.v.spec
	limit := math.Min(spec.MaxVelocity, d.v.lane.MaxV())
	vNext := math.Min(d.v.v+spec.MaxAccel*dt, math.Max(limit, d.v.v))
	return (d.v.v+vNext)/2*dt + vNext*vNext/2/spec.MaxDecel
}

// dontHitVehicleInFront 与前车的距离小于制动距离加最小跟车距离时全力制动
func (d *driver) dontHitVehicleInFront() Action {
	spec := d.v.spec
	stopping := d.v.v * d.v.v / 2 / spec.MaxDecel
	if d.v.sensors.interval < stopping+minimumFollowingDistance {
		return Action{A: -spec.MaxDecel, Reason: "following"}
	}
	return Action{A: math.Inf(1)}
}

// nextLane 车辆驶过lane末端后进入的车道
// 返回：next-下一车道，为nil时沿末段方向外推；blocked-前方路口未获准进入，车辆应停在停车线
func (d *driver) nextLane(l entity.ILane) (next entity.ILane, blocked bool) {
	if l.InRoad() && l.ParentRoad() != nil && l.ParentRoad().DrivingSuccessor() != nil {
		if d.state != ReservationHeld || d.confirm.Proposal.ArrivalLaneID != l.ID() {
			return nil, true
		}
		c, ok := l.ParentRoad().DrivingSuccessor().ConnectorLane(l.ID(), d.confirm.Proposal.DepartureLaneID)
		if !ok {
			return nil, true
		}
		return c, false
	}
	return l.NextLane(), false
}
