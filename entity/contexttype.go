package entity

import (
	"github.com/tsinghua-fib-lab/aimsim/clock"
	"github.com/tsinghua-fib-lab/aimsim/utils/config"
)

// ITaskContext 一次仿真运行的上下文，各模块通过它访问其他模块
type ITaskContext interface {
	Clock() *clock.Clock
	LaneManager() ILaneManager
	RoadManager() IRoadManager
	JunctionManager() IJunctionManager
	VehicleManager() IVehicleManager
	RuntimeConfig() *config.RuntimeConfig
}
