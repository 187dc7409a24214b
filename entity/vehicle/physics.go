package vehicle

import "github.com/samber/lo"

// move Move阶段：按加速度指令沿车道积分一步
// 算法说明：
// 1. 速度限制在[0, 最大速度]，位移按梯形公式计算
// 2. 越过车道末端时进入下一车道；前方路口未获准进入时停在停车线
// 3. 没有下一车道时沿末段方向外推，直至驶出地图被回收
func (v *Vehicle) move(dt float64) {
	v.prevPos = v.pos
	v1 := lo.Clamp(v.v+v.a*dt, 0, v.spec.MaxVelocity)
	ds := (v.v + v1) / 2 * dt
	v.v = v1
	v.s += ds
	v.distance += ds
	for v.s > v.lane.Length() {
		next, blocked := v.driver.nextLane(v.lane)
		if blocked {
			log.Debugf("%v: stop at the stop line without reservation", v)
			v.distance -= v.s - v.lane.Length()
			v.s = v.lane.Length()
			v.v = 0
			break
		}
		if next == nil {
			break
		}
		v.s -= v.lane.Length()
		v.lane = next
		if next.InRoad() {
			v.roadLane = next
		}
	}
	v.updatePose()
}

// Distance 累计行驶距离
func (v *Vehicle) Distance() float64 {
	return v.distance
}
