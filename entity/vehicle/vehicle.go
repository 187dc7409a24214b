package vehicle

import (
	"fmt"
	"math"

	"git.fiblab.net/general/common/v2/geometry"
	"github.com/paulmach/orb"
	"github.com/tsinghua-fib-lab/aimsim/entity"
	"github.com/tsinghua-fib-lab/aimsim/entity/message"
	"github.com/tsinghua-fib-lab/aimsim/utils/config"
	"github.com/tsinghua-fib-lab/aimsim/utils/container"
	"github.com/tsinghua-fib-lab/aimsim/utils/shape"
)

// sensors 传感器读数，由Sense阶段写入，Decide阶段只读
type sensors struct {
	interval       float64 // 车头到前车外廓的距离
	frontD, frontV float64 // 目标车道前车距离与速度
	rearD, rearV   float64 // 目标车道后车距离与速度
}

func newSensors() sensors {
	return sensors{
		interval: math.MaxFloat64,
		frontD:   math.MaxFloat64,
		frontV:   math.MaxFloat64,
		rearD:    math.MaxFloat64,
		rearV:    math.MaxFloat64,
	}
}

// Vehicle 自动驾驶车辆
// 功能：保存车辆规格、运动状态、所在车道、收发件箱与传感器读数，驾驶逻辑由driver完成
type Vehicle struct {
	container.IncrementalItemBase

	ctx entity.ITaskContext

	vin         int32
	spec        config.VehicleSpec
	spawnPoint  int32        // 生成点ID（生成车道ID）
	origin      entity.IRoad // 驶入道路
	destination entity.IRoad // 驶出道路

	// 运动状态

	lane     entity.ILane
	s        float64 // 车头在当前车道上的s坐标
	v        float64
	a        float64        // 当前加速度指令
	pos      geometry.Point // 车头中心
	prevPos  geometry.Point // 上一步的车头中心
	heading  float64
	ring     orb.Ring
	roadLane entity.ILane // 最近经过的道路车道，在路口内时为驶入车道
	distance float64      // 累计行驶距离

	sensors sensors
	driver  *driver

	power        float64
	inbox        []message.I2V
	outbox       []message.V2I
	bitsSent     int
	bitsReceived int
}

// newVehicle 在车道lane的s处创建车辆
// 说明：初始速度为规格最大速度与车道限速的较小值
func newVehicle(
	ctx entity.ITaskContext,
	vin int32,
	spec config.VehicleSpec,
	lane entity.ILane,
	s float64,
	destination entity.IRoad,
) *Vehicle {
	v := &Vehicle{
		ctx:         ctx,
		vin:         vin,
		spec:        spec,
		spawnPoint:  lane.ID(),
		origin:      lane.ParentRoad(),
		destination: destination,
		lane:        lane,
		s:           s,
		v:           math.Min(spec.MaxVelocity, lane.MaxV()),
		sensors:     newSensors(),
		power:       ctx.RuntimeConfig().C.Driver.TransmissionPower,
	}
	if lane.InRoad() {
		v.roadLane = lane
	}
	v.driver = newDriver(v, ctx.RuntimeConfig().C)
	v.updatePose()
	v.prevPos = v.pos
	return v
}

// updatePose 由车道与s坐标更新位置、朝向与外廓
func (v *Vehicle) updatePose() {
	v.pos = v.lane.GetPositionByS(v.s)
	v.heading = v.lane.GetDirectionByS(v.s).Direction
	v.ring = shape.VehicleRing(shape.FromPoint(v.pos), v.heading, v.spec.Length, v.spec.Width)
}

func (v *Vehicle) String() string {
	return fmt.Sprintf("Vehicle %d(%v, s=%.2f, v=%.2f)", v.vin, v.lane, v.s, v.v)
}

func (v *Vehicle) VIN() int32 {
	return v.vin
}

func (v *Vehicle) V() float64 {
	return v.v
}

func (v *Vehicle) Length() float64 {
	return v.spec.Length
}

func (v *Vehicle) Width() float64 {
	return v.spec.Width
}

func (v *Vehicle) Spec() config.VehicleSpec {
	return v.spec
}

// Acceleration 当前加速度指令
func (v *Vehicle) Acceleration() float64 {
	return v.a
}

func (v *Vehicle) Position() geometry.Point {
	return v.pos
}

// PrevPosition 上一步Move之前的车头中心
func (v *Vehicle) PrevPosition() geometry.Point {
	return v.prevPos
}

func (v *Vehicle) Heading() float64 {
	return v.heading
}

func (v *Vehicle) Shape() orb.Ring {
	return v.ring
}

func (v *Vehicle) Lane() entity.ILane {
	return v.lane
}

func (v *Vehicle) S() float64 {
	return v.s
}

// TrackingLane 车辆不变道，始终为nil
func (v *Vehicle) TrackingLane() entity.ILane {
	return nil
}

// SpawnPoint 生成点ID
func (v *Vehicle) SpawnPoint() int32 {
	return v.spawnPoint
}

func (v *Vehicle) Origin() entity.IRoad {
	return v.origin
}

func (v *Vehicle) Destination() entity.IRoad {
	return v.destination
}

// LaneIndex 当前所在道路车道的序号，在路口内时为驶入车道的序号
func (v *Vehicle) LaneIndex() int {
	if v.roadLane == nil {
		return -1
	}
	return v.roadLane.IndexInRoad()
}

// DistanceToNextIntersection 车头到下一个路口停车线的距离
// 返回：在路口内时为-s（不大于0），前方没有路口时为math.MaxFloat64
func (v *Vehicle) DistanceToNextIntersection() float64 {
	switch {
	case v.lane.InJunction():
		return -v.s
	case v.lane.ParentRoad() != nil && v.lane.ParentRoad().DrivingSuccessor() != nil:
		return v.lane.Length() - v.s
	default:
		return math.MaxFloat64
	}
}

// nextJunction 前方路口，已在路口内或前方无路口时为nil
func (v *Vehicle) nextJunction() entity.IJunction {
	if v.lane.InRoad() && v.lane.ParentRoad() != nil {
		return v.lane.ParentRoad().DrivingSuccessor()
	}
	return nil
}

// WaitTime 预计到达路口前的等待时间（秒）
// 算法说明：
// 1. 持有预约时为预约到达时间与当前时间之差
// 2. 否则按当前速度估计到达停车线的时间；车辆近似静止时取所在驶入车道信号灯的剩余时长
// 3. 已在路口内或前方没有路口时为0
func (v *Vehicle) WaitTime() float64 {
	dist := v.DistanceToNextIntersection()
	if dist <= 0 || dist == math.MaxFloat64 {
		return 0
	}
	now := v.ctx.Clock().T
	if c := v.driver.confirm; c != nil {
		return math.Max(c.Proposal.ArrivalTime-now, 0)
	}
	if v.v > stoppedVelocity {
		return dist / v.v
	}
	if j := v.nextJunction(); j != nil {
		_, remaining := j.Signal(v.lane.ID())
		if remaining < math.MaxFloat64/2 {
			return remaining
		}
	}
	return 0
}

// 传感器

func (v *Vehicle) RecordInterval(d float64) {
	v.sensors.interval = d
}

func (v *Vehicle) RecordFront(d, speed float64) {
	v.sensors.frontD, v.sensors.frontV = d, speed
}

func (v *Vehicle) RecordRear(d, speed float64) {
	v.sensors.rearD, v.sensors.rearV = d, speed
}

// 消息收发

func (v *Vehicle) TransmissionPower() float64 {
	return v.power
}

// Receive 接收I2V消息，计入接收比特数
func (v *Vehicle) Receive(msg message.I2V) {
	v.inbox = append(v.inbox, msg)
	v.bitsReceived += msg.Bits()
}

func (v *Vehicle) PopOutbox() []message.V2I {
	out := v.outbox
	v.outbox = nil
	return out
}

// send 放入发件箱，发送即计入发送比特数（不论是否送达）
func (v *Vehicle) send(msg message.V2I) {
	v.outbox = append(v.outbox, msg)
	v.bitsSent += msg.Bits()
}

// BitsSent 累计发送比特数
func (v *Vehicle) BitsSent() int {
	return v.bitsSent
}

// BitsReceived 累计接收比特数
func (v *Vehicle) BitsReceived() int {
	return v.bitsReceived
}

// Reservation 当前持有的预约确认，没有时为nil
func (v *Vehicle) Reservation() *message.Confirm {
	return v.driver.confirm
}

// ReservationState 预约状态
func (v *Vehicle) ReservationState() ReservationState {
	return v.driver.state
}

