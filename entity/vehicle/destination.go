package vehicle

import "github.com/tsinghua-fib-lab/aimsim/entity"

// 按驶入方向与车道序号选择驶出方向
// 序号0为最右侧车道（右转），序号2为左转车道，其余直行
var turnTable = map[entity.Direction][3]entity.Direction{
	entity.DirectionE: {entity.DirectionS, entity.DirectionE, entity.DirectionN},
	entity.DirectionW: {entity.DirectionN, entity.DirectionW, entity.DirectionS},
	entity.DirectionN: {entity.DirectionE, entity.DirectionN, entity.DirectionW},
	entity.DirectionS: {entity.DirectionW, entity.DirectionS, entity.DirectionE},
}

// SelectDestination 目的方向选择器
// 参数：origin-驶入道路的行驶方向，laneIndex-车道序号（最右侧为0）
// 返回：驶出道路的行驶方向，未知方向或序号超出[0, 2]时直行
func SelectDestination(origin entity.Direction, laneIndex int) entity.Direction {
	row, ok := turnTable[origin]
	if !ok || laneIndex < 0 || laneIndex >= len(row) {
		return origin
	}
	return row[laneIndex]
}

// destinationRoad 在驶入道路的下游路口找到行驶方向为dir的驶出道路
// 说明：找不到时退化为直行方向，仍找不到时返回nil
func destinationRoad(roads []entity.IRoad, origin entity.IRoad, dir entity.Direction) entity.IRoad {
	j := origin.DrivingSuccessor()
	if j == nil {
		return nil
	}
	var straight entity.IRoad
	for _, r := range roads {
		if r.DrivingPredecessor() == nil || r.DrivingPredecessor().ID() != j.ID() {
			continue
		}
		if r.Direction() == dir {
			return r
		}
		if r.Direction() == origin.Direction() && straight == nil {
			straight = r
		}
	}
	return straight
}
