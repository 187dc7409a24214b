package junction

import (
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/tsinghua-fib-lab/aimsim/entity/junction/trafficlight"
)

// 依赖倒置，表达junction对信号灯实现的接口需求

// 给RPC提供的信控读取接口
type ITrafficLightGetter interface {
	Get() *mapv2.TrafficLight           // 当前程序
	PhaseAt(t float64) (int32, float64) // t时刻的相位与剩余时长
	Ok() bool                           // 当前信控开关情况
}

// 可修改的信号灯程序（固定周期或最大压力）
type ITrafficLight interface {
	ITrafficLightGetter

	Set(tl *mapv2.TrafficLight, now float64) error              // 修改信控程序
	Unset()                                                     // 删除信控程序（全绿）
	SetPhase(now float64, index int32, remaining float64) error // 修改信控相位到指定值
	SetOk(ok bool)                                              // 设置信控开关情况（true信控工作|false信控失效-全绿）

	// 程序中第stateIndex个状态对应车道的控制器
	Lane(stateIndex int) trafficlight.ISignalController
}

// 需要按车道压力更新的信号灯
type IPressureDriven interface {
	Update(now, dt float64, pressure []float64)
}
