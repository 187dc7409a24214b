package task

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/tsinghua-fib-lab/aimsim/entity"
	"github.com/tsinghua-fib-lab/aimsim/entity/comm"
	"github.com/tsinghua-fib-lab/aimsim/entity/lane"
)

// StepResult 一步的结果
type StepResult struct {
	Time          float64 // 本步结束后的仿真时间
	CompletedVINs []int32 // 本步驶出地图或因注册表重置而结束的车辆
	Spawned       []int32 // 本步生成的车辆
}

// Step 推进一步
// 功能：按固定顺序执行Spawn、Sense、Decide、Coordinate、Communicate、Move、Reap，然后推进时钟
// 参数：dt-时间步长（秒）
// 算法说明：
// 1. Spawn：生成点禁止区与在途车辆均不相交时生成车辆
// 2. Sense：重建车道占用索引并写入各车辆的传感器
// 3. Decide：驾驶员读取传感器与收件箱，给出加速度并填充发件箱
// 4. Coordinate：路口推进本地时钟，按顺序处理收件箱，删除过期预约
// 5. Communicate：先投递V2I再投递I2V，本步投递的消息下一步才被处理
// 6. Move：积分车辆运动，检测数据采集线，输出状态行
// 7. Reap：回收离开地图的车辆并释放其预约；跨过重置间隔时清空注册表
// 说明：单线程严格顺序执行
func (ctx *Context) Step(dt float64) StepResult {
	now := ctx.clock.T
	vm := ctx.vehicleManager

	// Spawn
	spawned := vm.Spawn(dt)

	// Sense
	vehicles := vm.Vehicles()
	ctx.index = lane.BuildIndex(ctx.laneManager.Lanes(), vehicles, ctx.insideJunction)
	ctx.index.Sense(vehicles)

	// Decide
	vm.Decide(dt)

	// Coordinate
	ctx.junctionManager.Update(dt)

	// Communicate
	ctx.stats.V2I.Add(comm.DeliverV2I(vehicles, ctx.junctionManager.GetOrError))
	ctx.stats.I2V.Add(comm.DeliverI2V(ctx.junctionManager.Junctions(), vm.GetOrError))

	// Move
	vm.Move(dt, func(v entity.IVehicle, from, to orb.Point) {
		ctx.dclManager.Observe(v.VIN(), now+dt, from, to)
	})
	if ctx.status != nil {
		if err := ctx.status.Write(now+dt, vm.All()); err != nil {
			log.Errorf("failed to write status: %v", err)
		}
	}

	// Reap
	completed := vm.Reap(ctx.bound)

	ctx.clock.Advance(dt)
	if ctx.crossesReset(now, ctx.clock.T) {
		completed = append(completed, vm.Reset()...)
	}
	return StepResult{
		Time:          ctx.clock.T,
		CompletedVINs: completed,
		Spawned:       spawned,
	}
}

// insideJunction 已越过停车线且外廓与某个路口边界相交的车辆不进入车道占用索引
func (ctx *Context) insideJunction(v entity.IVehicle) bool {
	if v.DistanceToNextIntersection() > 0 {
		return false
	}
	for _, j := range ctx.junctionManager.Junctions() {
		if j.Intersects(v.Shape()) {
			return true
		}
	}
	return false
}

// crossesReset 时间从from到to是否跨过vin_reset_interval的整数倍
func (ctx *Context) crossesReset(from, to float64) bool {
	interval := ctx.runtimeConfig.C.VinResetInterval
	if interval <= 0 {
		return false
	}
	const eps = 1e-9
	return math.Floor((to+eps)/interval) > math.Floor((from+eps)/interval)
}

// Index 最近一次Sense阶段构建的车道占用索引
func (ctx *Context) Index() *lane.OccupancyIndex {
	return ctx.index
}
