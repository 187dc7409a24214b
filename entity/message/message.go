// Package message 定义车辆与路口管理器之间的V2I/I2V消息
// 消息是进程内的Go值，不做序列化；Bits仅用于通信量统计
package message

import "fmt"

// 消息长度统计用的字段位数
const (
	headerBits   = 64 // 消息类型+发送方+接收方
	idBits       = 32 // VIN、请求ID、预约ID等整数字段
	timeBits     = 64 // 时间与速度等浮点字段
	proposalBits = 2*idBits + 2*timeBits
)

// V2I 车辆发往路口管理器的消息
type V2I interface {
	VIN() int32        // 发送车辆
	JunctionID() int32 // 接收路口
	Bits() int         // 消息长度（bit）
	fmt.Stringer
	isV2I()
}

// I2V 路口管理器发往车辆的消息
type I2V interface {
	VIN() int32        // 接收车辆
	JunctionID() int32 // 发送路口
	Bits() int
	fmt.Stringer
	isI2V()
}

// Proposal 车辆提出的一个通行方案
type Proposal struct {
	ArrivalLaneID   int32   // 驶入路口前所在车道
	DepartureLaneID int32   // 驶出路口后的车道
	ArrivalTime     float64 // 车头到达路口边界的时间（秒）
	ArrivalVelocity float64 // 到达时速度，之后匀速通过路口
}

func (p Proposal) String() string {
	return fmt.Sprintf("Proposal{%d->%d, t=%.2f, v=%.2f}", p.ArrivalLaneID, p.DepartureLaneID, p.ArrivalTime, p.ArrivalVelocity)
}

// Request 通行请求，Proposals按偏好从高到低排列
type Request struct {
	Vin       int32
	Junction  int32
	RequestID int32
	Proposals []Proposal
	Length    float64 // 车长，用于计算占用的时空格
	Width     float64 // 车宽
	MaxAccel  float64
	MaxDecel  float64
}

func (m *Request) VIN() int32        { return m.Vin }
func (m *Request) JunctionID() int32 { return m.Junction }
func (m *Request) Bits() int {
	return headerBits + 2*idBits + 4*timeBits + len(m.Proposals)*proposalBits
}
func (m *Request) String() string {
	return fmt.Sprintf("Request{vin=%d, junction=%d, id=%d, proposals=%v}", m.Vin, m.Junction, m.RequestID, m.Proposals)
}
func (*Request) isV2I() {}

// Done 车辆驶离路口后通知释放预约
type Done struct {
	Vin           int32
	Junction      int32
	ReservationID int32
}

func (m *Done) VIN() int32        { return m.Vin }
func (m *Done) JunctionID() int32 { return m.Junction }
func (m *Done) Bits() int         { return headerBits + idBits }
func (m *Done) String() string {
	return fmt.Sprintf("Done{vin=%d, junction=%d, reservation=%d}", m.Vin, m.Junction, m.ReservationID)
}
func (*Done) isV2I() {}

// Confirm 预约成功，携带被接受的方案与离开时间
type Confirm struct {
	Vin           int32
	Junction      int32
	RequestID     int32
	ReservationID int32
	Proposal      Proposal
	ExitTime      float64 // 车尾离开路口的时间
}

func (m *Confirm) VIN() int32        { return m.Vin }
func (m *Confirm) JunctionID() int32 { return m.Junction }
func (m *Confirm) Bits() int         { return headerBits + 3*idBits + proposalBits + timeBits }
func (m *Confirm) String() string {
	return fmt.Sprintf("Confirm{vin=%d, junction=%d, request=%d, reservation=%d, %v, exit=%.2f}",
		m.Vin, m.Junction, m.RequestID, m.ReservationID, m.Proposal, m.ExitTime)
}
func (*Confirm) isI2V() {}

// Reject 拒绝请求
type Reject struct {
	Vin       int32
	Junction  int32
	RequestID int32
	Reason    Reason
}

func (m *Reject) VIN() int32        { return m.Vin }
func (m *Reject) JunctionID() int32 { return m.Junction }
func (m *Reject) Bits() int         { return headerBits + 2*idBits + 8 }
func (m *Reject) String() string {
	return fmt.Sprintf("Reject{vin=%d, junction=%d, request=%d, reason=%v}", m.Vin, m.Junction, m.RequestID, m.Reason)
}
func (*Reject) isI2V() {}
