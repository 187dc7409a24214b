package lane

import (
	"fmt"
	"math"
	"sort"

	"git.fiblab.net/general/common/v2/geometry"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/aimsim/entity"
	"github.com/tsinghua-fib-lab/aimsim/utils/input"
)

// Lane 车道实体
// 功能：保存车道几何与拓扑，提供s坐标与xy坐标之间的转换
type Lane struct {
	id int32

	// 初始化临时变量

	initPredecessors []int32
	initSuccessors   []int32

	typ            mapv2.LaneType
	turn           mapv2.LaneTurn
	maxV           float64
	width          float64
	parentJunction entity.IJunction
	parentRoad     entity.IRoad
	offsetInRoad   int            // 在道路中的索引，0为最左侧车道
	predecessors   []entity.ILane // 前驱车道，按ID升序
	successors     []entity.ILane // 后继车道，按ID升序
	nextLane       entity.ILane
	nextLaneOffset float64

	line           []geometry.Point             // 中心线
	lineLengths    []float64                    // 中心线折线点对应的累计长度
	lineDirections []geometry.PolylineDirection // 中心线每一段的方向（atan2）
	length         float64
}

// newLane 根据地图描述创建车道
func newLane(base *input.Lane) *Lane {
	if len(base.Line) < 2 {
		log.Panicf("lane %d: center line needs at least 2 points, got %d", base.ID, len(base.Line))
	}
	l := &Lane{
		id:               base.ID,
		initPredecessors: base.Predecessors,
		initSuccessors:   base.Successors,
		typ:              base.Type,
		turn:             base.Turn,
		maxV:             base.MaxSpeed,
		width:            base.Width,
		line:             base.Line,
		offsetInRoad:     -1,
	}
	l.lineLengths = geometry.GetPolylineLengths2D(l.line)
	l.length = l.lineLengths[len(l.lineLengths)-1]
	l.lineDirections = geometry.GetPolylineDirections(l.line)
	return l
}

// initWithManager 在管理器创建全部车道后建立前驱后继关系
func (l *Lane) initWithManager(laneManager entity.ILaneManager) {
	get := func(id int32, _ int) entity.ILane { return laneManager.Get(id) }
	byID := func(a []entity.ILane) {
		sort.Slice(a, func(i, j int) bool { return a[i].ID() < a[j].ID() })
	}
	l.predecessors = lo.Map(l.initPredecessors, get)
	l.successors = lo.Map(l.initSuccessors, get)
	byID(l.predecessors)
	byID(l.successors)
	l.initPredecessors = nil
	l.initSuccessors = nil
}

// initNextLane 确定车流延续的下一条道路车道
// 算法说明：
// 1. 路口内车道：唯一后继
// 2. 道路车道且后继在道路内：唯一后继
// 3. 道路车道且后继为路口车道：取ID最小的直行连接车道，再取其唯一后继，
// 偏移量加上连接车道长度
func (l *Lane) initNextLane() {
	if len(l.successors) == 0 {
		return
	}
	if l.InJunction() || l.successors[0].InRoad() {
		if len(l.successors) == 1 {
			l.nextLane = l.successors[0]
			l.nextLaneOffset = l.length
		}
		return
	}
	for _, c := range l.successors {
		if c.Turn() != mapv2.LaneTurn_LANE_TURN_STRAIGHT {
			continue
		}
		if next := c.Successors(); len(next) == 1 {
			l.nextLane = next[0]
			l.nextLaneOffset = l.length + c.Length()
			return
		}
	}
}

// 数据初始化

// SetParentRoadWhenInit 设置lane所在road与偏移量
func (l *Lane) SetParentRoadWhenInit(parent entity.IRoad, offset int) {
	l.parentRoad = parent
	l.offsetInRoad = offset
	l.parentJunction = nil
}

// SetParentJunctionWhenInit 设置lane所在junction
func (l *Lane) SetParentJunctionWhenInit(parent entity.IJunction) {
	l.parentJunction = parent
	l.parentRoad = nil
}

func (l *Lane) String() string {
	return fmt.Sprintf("Lane %d", l.id)
}

// 获取Lane ID
func (l *Lane) ID() int32 {
	if l == nil {
		return -1
	}
	return l.id
}

func (l *Lane) Length() float64 {
	return l.length
}

func (l *Lane) Width() float64 {
	return l.width
}

func (l *Lane) MaxV() float64 {
	return l.maxV
}

func (l *Lane) Type() mapv2.LaneType {
	return l.typ
}

func (l *Lane) Turn() mapv2.LaneTurn {
	return l.turn
}

func (l *Lane) Line() []geometry.Point {
	return l.line
}

// Road Lane在Road中的偏移量，最左侧为0，往右侧递增
func (l *Lane) OffsetInRoad() int {
	if l.parentRoad == nil {
		log.Panicf("Lane %d: Not in road", l.id)
	}
	return l.offsetInRoad
}

// Road Lane在Road中的序号，最右侧为0
func (l *Lane) IndexInRoad() int {
	return len(l.ParentRoad().Lanes()) - 1 - l.OffsetInRoad()
}

func (l *Lane) Predecessors() []entity.ILane {
	return l.predecessors
}

func (l *Lane) Successors() []entity.ILane {
	return l.successors
}

func (l *Lane) NextLane() entity.ILane {
	return l.nextLane
}

func (l *Lane) NextLaneOffset() float64 {
	return l.nextLaneOffset
}

func (l *Lane) InRoad() bool {
	return l.parentRoad != nil
}

func (l *Lane) InJunction() bool {
	return l.parentJunction != nil
}

func (l *Lane) ParentRoad() entity.IRoad {
	return l.parentRoad
}

func (l *Lane) ParentJunction() entity.IJunction {
	return l.parentJunction
}

// 根据本车道s坐标计算切向角度，超出范围时取首末段方向
func (l *Lane) GetDirectionByS(s float64) (direction geometry.PolylineDirection) {
	s = lo.Clamp(s, 0, l.length)
	if i := sort.SearchFloat64s(l.lineLengths, s); i == 0 {
		direction = l.lineDirections[0]
	} else {
		direction = l.lineDirections[i-1]
	}
	return
}

// 将当前车道s坐标转换为xy坐标
// 说明：s超出[0, length]时沿首段或末段方向线性外推，车辆驶出末端车道后据此继续前进
func (l *Lane) GetPositionByS(s float64) (pos geometry.Point) {
	switch {
	case s < 0:
		d := l.lineDirections[0].Direction
		return geometry.Point{X: l.line[0].X + s*math.Cos(d), Y: l.line[0].Y + s*math.Sin(d)}
	case s > l.length:
		last := l.line[len(l.line)-1]
		d := l.lineDirections[len(l.lineDirections)-1].Direction
		extra := s - l.length
		return geometry.Point{X: last.X + extra*math.Cos(d), Y: last.Y + extra*math.Sin(d)}
	}
	if i := sort.SearchFloat64s(l.lineLengths, s); i == 0 {
		pos = l.line[0]
	} else {
		sHigh, sLow := l.lineLengths[i], l.lineLengths[i-1]
		k := (s - sLow) / (sHigh - sLow)
		if k < 0 || k > 1 {
			log.Panicf("lane: GetPositionByS(), bad k %v. sHigh=%f, sLow=%f, s=%f", k, sHigh, sLow, s)
		}
		pos = geometry.Blend(l.line[i-1], l.line[i], k)
	}
	return
}

// 将xy坐标投影到车道折线上，计算出对应的s坐标
func (l *Lane) ProjectToLane(pos geometry.Point) float64 {
	s := geometry.GetClosestPolylineSToPoint2D(l.line, l.lineLengths, pos)
	return lo.Clamp(s, 0, l.length)
}
