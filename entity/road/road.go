package road

import (
	"fmt"
	"math"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/aimsim/entity"
	"github.com/tsinghua-fib-lab/aimsim/utils/input"
)

// Road 道路实体
// 功能：一组同向车道，带行驶方向，供目的地选择和信号相位使用
type Road struct {
	id        int32
	name      string
	lanes     []entity.ILane // 按从左到右排序
	direction entity.Direction

	drivingPredecessor entity.IJunction // 前驱路口
	drivingSuccessor   entity.IJunction // 后继路口

	maxV float64 // 道路各车道限速均值
}

// newRoad 创建Road并设置其车道的父对象
func newRoad(base *input.Road, laneManager entity.ILaneManager) *Road {
	r := &Road{
		id:   base.ID,
		name: base.Name,
	}
	for i, laneID := range base.LaneIDs {
		lane := laneManager.Get(laneID)
		lane.SetParentRoadWhenInit(r, i)
		r.lanes = append(r.lanes, lane)
		r.maxV += lane.MaxV()
	}
	if len(r.lanes) > 0 {
		r.maxV /= float64(len(r.lanes))
		r.direction = DirectionOf(r.lanes[0].GetDirectionByS(0).Direction)
	} else {
		r.direction = entity.DirectionUnknown
	}
	return r
}

// DirectionOf 由朝向角（atan2）得到最接近的方向
func DirectionOf(angle float64) entity.Direction {
	a := math.Mod(angle+2*math.Pi, 2*math.Pi)
	switch {
	case a < math.Pi/4 || a >= 7*math.Pi/4:
		return entity.DirectionE
	case a < 3*math.Pi/4:
		return entity.DirectionN
	case a < 5*math.Pi/4:
		return entity.DirectionW
	default:
		return entity.DirectionS
	}
}

// initAfterJunction 在Junction初始化后设置Road的前驱和后继路口
func (r *Road) initAfterJunction() {
	for _, lane := range r.lanes {
		for _, pre := range lane.Predecessors() {
			junc := pre.ParentJunction()
			if junc == nil {
				log.Warnf("Lane %d:%d's predecessor %d is not in junction", r.id, lane.ID(), pre.ID())
				continue
			}
			if r.drivingPredecessor == nil {
				r.drivingPredecessor = junc
			} else if r.drivingPredecessor != junc {
				log.Panicf("Road %d's predecessor is not unique: %d v.s. %d", r.id, r.drivingPredecessor.ID(), junc.ID())
			}
		}
		for _, suc := range lane.Successors() {
			junc := suc.ParentJunction()
			if junc == nil {
				log.Warnf("Lane %d:%d's successor %d is not in junction", r.id, lane.ID(), suc.ID())
				continue
			}
			if r.drivingSuccessor == nil {
				r.drivingSuccessor = junc
			} else if r.drivingSuccessor != junc {
				log.Panicf("Road %d's successor is not unique: %d v.s. %d", r.id, r.drivingSuccessor.ID(), junc.ID())
			}
		}
	}
}

// ID 获取Road ID，Road为nil时返回-1
func (r *Road) ID() int32 {
	if r == nil {
		return -1
	}
	return r.id
}

func (r *Road) String() string {
	return fmt.Sprintf("Road %d(%s)", r.id, r.name)
}

func (r *Road) Name() string {
	return r.name
}

func (r *Road) Direction() entity.Direction {
	return r.direction
}

// Lanes 车道，按从左到右排列
func (r *Road) Lanes() []entity.ILane {
	return r.lanes
}

// LaneByIndex 按序号获取车道，最右侧为0，越界时取最近的车道
func (r *Road) LaneByIndex(index int) entity.ILane {
	if len(r.lanes) == 0 {
		return nil
	}
	index = lo.Clamp(index, 0, len(r.lanes)-1)
	return r.lanes[len(r.lanes)-1-index]
}

func (r *Road) DrivingPredecessor() entity.IJunction {
	return r.drivingPredecessor
}

func (r *Road) DrivingSuccessor() entity.IJunction {
	return r.drivingSuccessor
}

// MaxV 道路限速（各车道均值）
func (r *Road) MaxV() float64 {
	return r.maxV
}
