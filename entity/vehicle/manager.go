package vehicle

import (
	"fmt"
	"sort"

	"github.com/paulmach/orb"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/aimsim/entity"
	"github.com/tsinghua-fib-lab/aimsim/utils/container"
	"github.com/tsinghua-fib-lab/aimsim/utils/shape"
)

// firstVIN 注册表重置后第一个分配的VIN
const firstVIN = 1

// GlobalRuntime 全局运行时数据结构
// 功能：记录生成数、完成数、总行驶时间与距离，以及已完成车辆的通信量
type GlobalRuntime struct {
	NumSpawned        int32   // 已生成的车辆
	NumCompletedTrips int32   // 已驶出地图（或因重置结束）的车辆
	TravelTime        float64 // 总行驶时间
	TravelDistance    float64 // 总行驶距离
	BitsSent          int     // 已完成车辆的发送比特数
	BitsReceived      int     // 已完成车辆的接收比特数
}

// VehicleManager 车辆管理器
// 功能：按VIN管理所有在途车辆，负责生成、决策、运动、回收与周期性重置
// 说明：注册表以VIN为键，遍历顺序由增量数组决定，同样的操作序列得到同样的顺序
type VehicleManager struct {
	ctx entity.ITaskContext

	data     map[int32]*Vehicle
	vehicles *container.IncrementalArray[*Vehicle]
	points   []*SpawnPoint
	nextVIN  int32

	runtime GlobalRuntime
}

// NewManager 创建车辆管理器实例
func NewManager(ctx entity.ITaskContext) *VehicleManager {
	return &VehicleManager{
		ctx:      ctx,
		data:     make(map[int32]*Vehicle),
		vehicles: container.NewIncrementalArray[*Vehicle](),
		nextVIN:  firstVIN,
	}
}

// Init 在每条驶入道路（没有前驱路口、有后继路口）的每条车道起点建立生成点
// 说明：生成点按车道ID升序；驶出道路由车道序号通过目的方向选择器确定
func (m *VehicleManager) Init(roadManager entity.IRoadManager) {
	roads := roadManager.Roads()
	zone := m.ctx.RuntimeConfig().C.Spawn.NoVehicleZoneLength
	m.points = nil
	for _, r := range roads {
		if r.DrivingPredecessor() != nil || r.DrivingSuccessor() == nil {
			continue
		}
		for _, l := range r.Lanes() {
			dest := destinationRoad(roads, r, SelectDestination(r.Direction(), l.IndexInRoad()))
			if dest == nil {
				log.Warnf("no destination road for %v, skip spawn point", l)
				continue
			}
			m.points = append(m.points, newSpawnPoint(l, zone, dest))
		}
	}
	sort.Slice(m.points, func(i, j int) bool { return m.points[i].ID() < m.points[j].ID() })
	log.Infof("%d spawn points", len(m.points))
}

// Get 根据VIN获取车辆，不存在则panic
func (m *VehicleManager) Get(vin int32) entity.IVehicle {
	if v, ok := m.data[vin]; !ok {
		log.Panicf("no vin %d in vehicle data", vin)
		return nil
	} else {
		return v
	}
}

// GetOrError 根据VIN获取车辆，不存在则返回错误
func (m *VehicleManager) GetOrError(vin int32) (entity.IVehicle, error) {
	if v, ok := m.data[vin]; !ok {
		return nil, fmt.Errorf("no vin %d in vehicle data", vin)
	} else {
		return v, nil
	}
}

// Vehicles 注册表中的全部车辆，按注册表顺序
func (m *VehicleManager) Vehicles() []entity.IVehicle {
	return lo.Map(m.vehicles.Data(), func(v *Vehicle, _ int) entity.IVehicle { return v })
}

// All 注册表中的全部车辆（具体类型）
func (m *VehicleManager) All() []*Vehicle {
	return m.vehicles.Data()
}

func (m *VehicleManager) Len() int {
	return len(m.data)
}

func (m *VehicleManager) SpawnPoints() []*SpawnPoint {
	return m.points
}

// Runtime 全局运行时统计
func (m *VehicleManager) Runtime() GlobalRuntime {
	return m.runtime
}

// add 注册车辆，VIN重复为编程错误，直接panic
// 说明：Prepare后才出现在遍历中
func (m *VehicleManager) add(v *Vehicle) {
	if _, ok := m.data[v.vin]; ok {
		log.Panicf("vehicle VIN %d already exists", v.vin)
	}
	m.data[v.vin] = v
	m.vehicles.Add(v)
}

// remove 注销车辆，Prepare后生效
func (m *VehicleManager) remove(v *Vehicle) {
	delete(m.data, v.vin)
	m.vehicles.Remove(v)
}

// Spawn Spawn阶段
// 功能：按生成点顺序实现候选车辆，禁止区与任一在途车辆外廓相交时跳过该生成点
// 返回：本步生成的车辆VIN
// 说明：本步刚生成的车辆同样参与禁止区检查
func (m *VehicleManager) Spawn(dt float64) []int32 {
	c := m.ctx.RuntimeConfig().C.Spawn
	active := m.Vehicles()
	spawned := make([]int32, 0)
	for _, p := range m.points {
		for _, spec := range p.Offer(dt, c) {
			if p.Blocked(active) {
				log.Debugf("spawn point %d is blocked", p.ID())
				break
			}
			v := newVehicle(m.ctx, m.nextVIN, spec, p.lane, 0, p.destination)
			m.nextVIN++
			m.add(v)
			active = append(active, v)
			spawned = append(spawned, v.vin)
		}
	}
	m.vehicles.Prepare()
	m.runtime.NumSpawned += int32(len(spawned))
	return spawned
}

// Decide Decide阶段：按注册表顺序由驾驶员给出加速度并填充发件箱
func (m *VehicleManager) Decide(dt float64) {
	now := m.ctx.Clock().T
	for _, v := range m.vehicles.Data() {
		v.driver.decide(now, dt)
	}
}

// Move Move阶段：积分车辆运动，onMove在每辆车移动后以移动前后的车头位置回调
func (m *VehicleManager) Move(dt float64, onMove func(v entity.IVehicle, from, to orb.Point)) {
	for _, v := range m.vehicles.Data() {
		before := v.distance
		v.move(dt)
		m.runtime.TravelTime += dt
		m.runtime.TravelDistance += v.distance - before
		if onMove != nil {
			onMove(v, shape.FromPoint(v.prevPos), shape.FromPoint(v.pos))
		}
	}
}

// Reap Reap阶段：回收外廓与地图边界不相交的车辆
// 功能：通知各路口释放其预约，累计完成数与通信量
// 返回：本步完成的车辆VIN，按注册表顺序
func (m *VehicleManager) Reap(bound orb.Bound) []int32 {
	completed := make([]int32, 0)
	for _, v := range m.vehicles.Data() {
		if shape.IntersectsBound(v.ring, bound) {
			continue
		}
		completed = append(completed, v.vin)
		m.complete(v)
	}
	m.vehicles.Prepare()
	return completed
}

// complete 车辆结束：释放预约、累计统计、注销
func (m *VehicleManager) complete(v *Vehicle) {
	for _, j := range m.ctx.JunctionManager().Junctions() {
		j.VehicleCompleted(v.vin)
	}
	m.runtime.NumCompletedTrips++
	m.runtime.BitsSent += v.bitsSent
	m.runtime.BitsReceived += v.bitsReceived
	m.remove(v)
}

// Reset 清空注册表并重新从firstVIN分配VIN
// 返回：被清除的车辆VIN，这些车辆计为完成
func (m *VehicleManager) Reset() []int32 {
	vins := make([]int32, 0, m.vehicles.Len())
	for _, v := range m.vehicles.Data() {
		vins = append(vins, v.vin)
		m.complete(v)
	}
	m.vehicles.Clear()
	m.data = make(map[int32]*Vehicle)
	m.nextVIN = firstVIN
	log.Infof("vehicle registry reset, %d vehicles cleared", len(vins))
	return vins
}
