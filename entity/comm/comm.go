// Package comm 模拟车辆与路口管理器之间按距离与发射功率判定的消息投递
package comm

import (
	"github.com/tsinghua-fib-lab/aimsim/entity"
	"github.com/tsinghua-fib-lab/aimsim/utils/shape"
)

// Transmit 距离不超过发射功率时投递成功（含相等）
func Transmit(distance, power float64) bool {
	return distance <= power
}

// Stats 一次投递的统计
type Stats struct {
	Delivered int
	Dropped   int
}

// Add 累加统计
func (s *Stats) Add(o Stats) {
	s.Delivered += o.Delivered
	s.Dropped += o.Dropped
}

// DeliverV2I 投递所有车辆发件箱中的消息
// 参数：vehicles-按注册表顺序的车辆，junctions-按ID查找路口
// 说明：取出即出队；接收路口不存在或超出发射功率时丢弃，不重试
func DeliverV2I(vehicles []entity.IVehicle, junctions func(id int32) (entity.IJunction, error)) (stats Stats) {
	for _, v := range vehicles {
		for _, msg := range v.PopOutbox() {
			j, err := junctions(msg.JunctionID())
			if err != nil {
				log.Warnf("drop %v: %v", msg, err)
				stats.Dropped++
				continue
			}
			d := shape.Distance(shape.FromPoint(v.Position()), shape.FromPoint(j.Centroid()))
			if !Transmit(d, v.TransmissionPower()) {
				log.Debugf("drop %v: distance %.2f > power %.2f", msg, d, v.TransmissionPower())
				stats.Dropped++
				continue
			}
			j.Receive(msg)
			stats.Delivered++
		}
	}
	return
}

// DeliverI2V 投递所有路口发件箱中的消息
// 参数：junctions-按ID升序的路口，vehicles-按VIN查找车辆
// 说明：车辆已离开地图或超出发射功率时丢弃
func DeliverI2V(junctions []entity.IJunction, vehicles func(vin int32) (entity.IVehicle, error)) (stats Stats) {
	for _, j := range junctions {
		for _, msg := range j.PopOutbox() {
			v, err := vehicles(msg.VIN())
			if err != nil {
				log.Debugf("drop %v: %v", msg, err)
				stats.Dropped++
				continue
			}
			d := shape.Distance(shape.FromPoint(j.Centroid()), shape.FromPoint(v.Position()))
			if !Transmit(d, j.TransmissionPower()) {
				log.Debugf("drop %v: distance %.2f > power %.2f", msg, d, j.TransmissionPower())
				stats.Dropped++
				continue
			}
			v.Receive(msg)
			stats.Delivered++
		}
	}
	return
}
