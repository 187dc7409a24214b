package entity

import (
	"fmt"

	"git.fiblab.net/general/common/v2/geometry"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/paulmach/orb"
	"github.com/tsinghua-fib-lab/aimsim/entity/message"
	"github.com/tsinghua-fib-lab/aimsim/utils/container"
)

// Direction 道路行驶方向
type Direction int

const (
	DirectionUnknown Direction = iota - 1
	DirectionE
	DirectionW
	DirectionN
	DirectionS
)

func (d Direction) String() string {
	switch d {
	case DirectionE:
		return "E"
	case DirectionW:
		return "W"
	case DirectionN:
		return "N"
	case DirectionS:
		return "S"
	}
	return "?"
}

// Turn 相对转向，由行驶方向计算
type Turn int

const (
	TurnStraight Turn = iota
	TurnLeft
	TurnRight
	TurnAround
)

func (t Turn) String() string {
	return [...]string{"straight", "left", "right", "around"}[t]
}

// Lane连接关系
type Connection struct {
	Lane ILane                    // 连接到的Lane
	Type mapv2.LaneConnectionType // 连接类型
}

// entity/lane/lane.go的依赖倒置
type ILane interface {
	// 初始化

	SetParentRoadWhenInit(parent IRoad, offset int) // 设置lane所在road的指针与偏移量
	SetParentJunctionWhenInit(parent IJunction)     // 设置lane所在junction

	String() string

	ID() int32              // 获取Lane ID
	Length() float64        // 获取Lane长度
	Width() float64         // 获取Lane宽度
	MaxV() float64          // 获取车道限速
	Type() mapv2.LaneType   // 获取Lane类型
	Turn() mapv2.LaneTurn   // 获取Lane转向类型
	Line() []geometry.Point // 获取Lane的中心线
	// Road Lane在Road中的偏移量，最左侧为0，往右侧递增
	OffsetInRoad() int
	// Road Lane在Road中的序号，最右侧为0，往左侧递增
	IndexInRoad() int

	Predecessors() []ILane // 前驱车道，按ID升序
	Successors() []ILane   // 后继车道，按ID升序
	// 车流延续的下一条道路车道：唯一的道路内后继，或者经过路口直行连接车道到达的车道
	NextLane() ILane
	// 本车道起点到NextLane起点的距离，即本车道长度加上中间连接车道的长度
	NextLaneOffset() float64

	GetPositionByS(s float64) geometry.Point              // 将当前车道s坐标转换为xy坐标，超出范围时沿首末段方向外推
	GetDirectionByS(s float64) geometry.PolylineDirection // 根据本车道s坐标计算切向角度
	ProjectToLane(pos geometry.Point) float64             // 将xy坐标投影到车道上，返回s坐标
	InRoad() bool                                         // 检查Lane是否为Road Lane
	InJunction() bool                                     // 检查Lane是否为Junction Lane

	ParentRoad() IRoad         // 获取Lane所在的Road
	ParentJunction() IJunction // 获取Lane所在的Junction
}

// entity/road/road.go的依赖倒置
type IRoad interface {
	String() string

	ID() int32                     // 获取Road ID
	Name() string                  // 获取Road名称
	Direction() Direction          // 行驶方向
	Lanes() []ILane                // 车道，按从左到右排列
	LaneByIndex(index int) ILane   // 按序号（最右侧为0）获取车道，越界时取最近的车道
	DrivingPredecessor() IJunction // 获取前驱Junction
	DrivingSuccessor() IJunction   // 获取后继Junction
	MaxV() float64                 // 获取道路限速
}

// entity/junction/junction.go的依赖倒置，即路口管理器
type IJunction interface {
	ID() int32                // 获取Junction ID
	Lanes() []ILane           // 路口内的连接车道，按ID升序
	Centroid() geometry.Point // 路口中心，消息收发的参考点
	Boundary() orb.Ring       // 路口边界
	Intersects(r orb.Ring) bool

	// 由驶入车道与驶出车道找到路口内的连接车道
	ConnectorLane(arrivalLaneID, departureLaneID int32) (ILane, bool)
	// 驶入车道经过本路口到达目标道路时的驶出车道
	DepartureLane(arrival ILane, destination IRoad) (ILane, bool)
	// 驶入车道当前的信号状态与剩余时长
	Signal(arrivalLaneID int32) (state mapv2.LightState, remaining float64)

	// 消息收发

	TransmissionPower() float64 // 发射功率（米）
	Receive(msg message.V2I)    // 投递到收件箱，下一步Coordinate阶段处理
	PopOutbox() []message.I2V   // 取出发件箱中的全部消息

	HasReservation(vin int32) bool // 车辆是否持有本路口的确认预约
	VehicleCompleted(vin int32)    // 车辆离开地图，释放其预约
}

// entity/vehicle/vehicle.go的依赖倒置
type IVehicle interface {
	container.IHasVAndLength
	fmt.Stringer

	VIN() int32
	Position() geometry.Point // 车头中心
	Heading() float64         // 朝向（atan2）
	Shape() orb.Ring          // 车辆外廓
	Lane() ILane              // 当前车道
	S() float64               // 车头在当前车道上的s坐标
	// 变道过程中的目标车道，不在变道时为nil
	TrackingLane() ILane
	// 车头到下一个路口边界的距离，已在路口内时小于等于0，前方无路口时为math.MaxFloat64
	DistanceToNextIntersection() float64

	// 传感器

	RecordInterval(d float64)
	RecordFront(d, v float64)
	RecordRear(d, v float64)

	// 消息收发

	TransmissionPower() float64
	Receive(msg message.I2V)
	PopOutbox() []message.V2I
}
