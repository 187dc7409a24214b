package vehicle

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/aimsim/entity"
	"github.com/tsinghua-fib-lab/aimsim/utils/config"
	"github.com/tsinghua-fib-lab/aimsim/utils/randengine"
	"github.com/tsinghua-fib-lab/aimsim/utils/shape"
)

// SpawnPoint 车辆生成点，位于驶入车道起点
// 功能：每步以traffic_level*dt的概率给出候选车辆规格；禁止区内有车时不生成
type SpawnPoint struct {
	lane        entity.ILane
	destination entity.IRoad // 由车道序号确定的驶出道路
	zone        orb.Ring     // 禁止区：沿车道no_vehicle_zone_length、横向为车道宽度的矩形
	rng         *randengine.Engine
}

// newSpawnPoint 在lane起点创建生成点，随机数以车道ID播种
func newSpawnPoint(lane entity.ILane, zoneLength float64, destination entity.IRoad) *SpawnPoint {
	zoneLength = math.Min(zoneLength, lane.Length())
	heading := lane.GetDirectionByS(0).Direction
	front := shape.FromPoint(lane.GetPositionByS(zoneLength))
	return &SpawnPoint{
		lane:        lane,
		destination: destination,
		zone:        shape.VehicleRing(front, heading, zoneLength, lane.Width()),
		rng:         randengine.New(uint64(lane.ID())),
	}
}

// ID 生成点ID，即所在车道ID
func (p *SpawnPoint) ID() int32 {
	return p.lane.ID()
}

func (p *SpawnPoint) Lane() entity.ILane {
	return p.lane
}

func (p *SpawnPoint) Destination() entity.IRoad {
	return p.destination
}

// Zone 禁止区
func (p *SpawnPoint) Zone() orb.Ring {
	return p.zone
}

// Offer 本步给出的候选车辆规格
// 说明：做max_spawns_per_point_per_tick次伯努利试验，每次成功按权重抽取一个规格
func (p *SpawnPoint) Offer(dt float64, c config.Spawn) []config.VehicleSpec {
	weights := lo.Map(c.Vehicles, func(s config.VehicleSpec, _ int) float64 { return s.Weight })
	var res []config.VehicleSpec
	for range c.MaxSpawnsPerPointPerTick {
		if p.rng.PTrue(c.TrafficLevel * dt) {
			res = append(res, c.Vehicles[p.rng.DiscreteDistribution(weights)])
		}
	}
	return res
}

// Blocked 禁止区是否与任一车辆外廓相交（接触也算）
func (p *SpawnPoint) Blocked(vehicles []entity.IVehicle) bool {
	return lo.SomeBy(vehicles, func(v entity.IVehicle) bool {
		return shape.Intersects(p.zone, v.Shape())
	})
}
