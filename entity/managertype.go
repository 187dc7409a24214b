package entity

import (
	"git.fiblab.net/sim/syncer/v3"
	"github.com/tsinghua-fib-lab/aimsim/utils/input"
)

// Manager依赖倒置

// entity/lane/manager.go的依赖倒置
type ILaneManager interface {
	Init(lanes []*input.Lane) // 初始化
	InitAfterJunction()       // 初始化依赖路口的车道关系（NextLane）

	// 输入Lane ID，查找Lane，如果不存在则panic
	Get(id int32) ILane
	// 输入Lane ID，查找Lane，如果不存在则返回error
	GetOrError(id int32) (ILane, error)
	Lanes() []ILane // 所有车道，按ID升序
}

// entity/road/manager.go的依赖倒置
type IRoadManager interface {
	Init(roads []*input.Road, laneManager ILaneManager) // 初始化
	InitAfterJunction()                                 // 初始化所有Road的Junction关系

	// 输入Road ID，查找Road，如果不存在则panic
	Get(id int32) IRoad
	// 输入Road ID，查找Road，如果不存在则返回error
	GetOrError(id int32) (IRoad, error)
	Roads() []IRoad // 所有道路，按ID升序
}

// entity/junction/manager.go的依赖倒置
type IJunctionManager interface {
	Init(junctions []*input.Junction, laneManager ILaneManager) // 初始化
	Register(sidecar *syncer.Sidecar)                           // 注册到Sidecar

	// 输入Junction ID，查找Junction，如果不存在则panic
	Get(id int32) IJunction
	// 输入Junction ID，查找Junction，如果不存在则返回error
	GetOrError(id int32) (IJunction, error)
	Junctions() []IJunction // 所有路口，按ID升序

	Update(dt float64) // Coordinate阶段：推进本地时钟并处理收件箱
	Close()            // 停止后台信控任务
}

// entity/vehicle/manager.go的依赖倒置
type IVehicleManager interface {
	// 输入VIN，查找车辆，如果不存在则panic
	Get(vin int32) IVehicle
	// 输入VIN，查找车辆，如果不存在则返回error
	GetOrError(vin int32) (IVehicle, error)
	Vehicles() []IVehicle // 注册表中的全部车辆，按注册表顺序
}
