// Package trafficlight 提供驶入车道的信号控制器：固定周期、外部文件驱动、最大压力与常量信号
package trafficlight

import (
	"git.fiblab.net/general/common/v2/mathutil"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
)

// ISignalController 单条驶入车道的信号控制器
// 说明：实现必须是并发安全的，每次查询只做一次原子读，不会读到更新到一半的状态
type ISignalController interface {
	// t时刻的信号状态
	SignalAt(t float64) mapv2.LightState
	// t时刻的信号状态及其剩余时长
	Lookup(t float64) (state mapv2.LightState, remaining float64)
}

// Fixed 恒定信号
type Fixed struct {
	State mapv2.LightState
}

var (
	// AlwaysGreen 全绿，用于纯预约网格策略与信控关闭时
	AlwaysGreen ISignalController = Fixed{State: mapv2.LightState_LIGHT_STATE_GREEN}
	// AlwaysRed 全红，用于无法确定信号的车道
	AlwaysRed ISignalController = Fixed{State: mapv2.LightState_LIGHT_STATE_RED}
)

func (f Fixed) SignalAt(float64) mapv2.LightState {
	return f.State
}

func (f Fixed) Lookup(float64) (mapv2.LightState, float64) {
	return f.State, mathutil.INF
}

// StateFromChar R、G、Y转换为信号状态
func StateFromChar(c byte) (mapv2.LightState, bool) {
	switch c {
	case 'R':
		return mapv2.LightState_LIGHT_STATE_RED, true
	case 'G':
		return mapv2.LightState_LIGHT_STATE_GREEN, true
	case 'Y':
		return mapv2.LightState_LIGHT_STATE_YELLOW, true
	}
	return mapv2.LightState_LIGHT_STATE_UNSPECIFIED, false
}
