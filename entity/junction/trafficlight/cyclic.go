package trafficlight

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"git.fiblab.net/general/common/v2/mathutil"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
)

var (
	ErrNoProgram = errors.New("no traffic light program")
)

// cyclicRuntime 固定周期信控的不可变快照
type cyclicRuntime struct {
	tl               *mapv2.TrafficLight
	starts           []float64   // 各相位在周期内的起始时刻
	total            float64     // 周期长度
	timeBeforeChange [][]float64 // [状态下标][相位]：本相位结束后该状态还将持续的时长
	offset           float64     // 周期内位置 = (t + offset) mod total
	ok               bool        // false时信控失效（全绿）
}

// CyclicProgram 一个路口的固定周期信控程序
// 功能：按程序相位循环，驶入车道的控制器通过Lane获取
// 说明：修改操作整体替换快照，查询只读一次快照
type CyclicProgram struct {
	junctionID int32
	numStates  int // 每个相位的状态数，即程序对应的路口车道数

	runtime atomic.Pointer[cyclicRuntime]
}

// NewCyclicProgram 创建空的固定周期信控程序（无程序时全绿）
func NewCyclicProgram(junctionID int32, numStates int) *CyclicProgram {
	p := &CyclicProgram{junctionID: junctionID, numStates: numStates}
	p.runtime.Store(&cyclicRuntime{ok: true})
	return p
}

// Set 设置信控程序
// 参数：tl-信控程序，now-当前时间
// 说明：与原有约定一致，设置后处于第 junctionID % 相位数 个相位的开始
func (p *CyclicProgram) Set(tl *mapv2.TrafficLight, now float64) error {
	if tl == nil || len(tl.Phases) == 0 {
		return fmt.Errorf("set with empty traffic light")
	}
	if tl.JunctionId != p.junctionID {
		return fmt.Errorf("set junction %d with wrong traffic light id %d", p.junctionID, tl.JunctionId)
	}
	starts := make([]float64, len(tl.Phases))
	total := 0.
	for i, phase := range tl.Phases {
		if len(phase.States) != p.numStates {
			return fmt.Errorf("number of lanes %d and traffic light states %d does not match", p.numStates, len(phase.States))
		}
		if phase.Duration < 0 {
			return fmt.Errorf("phase %d has negative duration %v", i, phase.Duration)
		}
		starts[i] = total
		total += phase.Duration
	}
	if total <= 0 {
		return fmt.Errorf("traffic light cycle length %v <= 0", total)
	}
	phaseIndex := int(p.junctionID) % len(tl.Phases)
	if phaseIndex < 0 {
		phaseIndex += len(tl.Phases)
	}
	old := p.runtime.Load()
	p.runtime.Store(&cyclicRuntime{
		tl:               tl,
		starts:           starts,
		total:            total,
		timeBeforeChange: timeBeforeChange(tl, p.numStates),
		offset:           math.Mod(starts[phaseIndex]-now, total),
		ok:               old.ok,
	})
	return nil
}

// Unset 删除信控程序（全绿）
func (p *CyclicProgram) Unset() {
	p.runtime.Store(&cyclicRuntime{ok: p.runtime.Load().ok})
}

// SetPhase 将now时刻的相位调整为index，剩余时长为remaining
func (p *CyclicProgram) SetPhase(now float64, index int32, remaining float64) error {
	rt := p.runtime.Load()
	if rt.tl == nil {
		return ErrNoProgram
	}
	if index < 0 || int(index) >= len(rt.tl.Phases) {
		return fmt.Errorf("phase index %d out of range [0, %d)", index, len(rt.tl.Phases))
	}
	duration := rt.tl.Phases[index].Duration
	if remaining <= 0 || remaining > duration {
		return fmt.Errorf("remaining time %v out of range (0, %v]", remaining, duration)
	}
	next := *rt
	pos := rt.starts[index] + duration - remaining
	next.offset = math.Mod(pos-now, rt.total)
	p.runtime.Store(&next)
	return nil
}

// SetOk 设置信控开关，false时全绿
func (p *CyclicProgram) SetOk(ok bool) {
	next := *p.runtime.Load()
	next.ok = ok
	p.runtime.Store(&next)
}

// Get 当前程序，没有时为nil
func (p *CyclicProgram) Get() *mapv2.TrafficLight {
	return p.runtime.Load().tl
}

// Ok 信控开关
func (p *CyclicProgram) Ok() bool {
	return p.runtime.Load().ok
}

// PhaseAt t时刻所处的相位及其剩余时长，没有程序时为(-1, INF)
func (p *CyclicProgram) PhaseAt(t float64) (int32, float64) {
	rt := p.runtime.Load()
	if rt.tl == nil {
		return -1, mathutil.INF
	}
	i, remaining := rt.phaseAt(t)
	return int32(i), remaining
}

func (rt *cyclicRuntime) phaseAt(t float64) (int, float64) {
	pos := math.Mod(t+rt.offset, rt.total)
	if pos < 0 {
		pos += rt.total
	}
	for i, phase := range rt.tl.Phases {
		end := rt.starts[i] + phase.Duration
		if pos < end {
			return i, end - pos
		}
	}
	// 浮点误差，pos落在周期末尾
	last := len(rt.tl.Phases) - 1
	return last, 0
}

// Lane 程序中第stateIndex个状态对应的驶入车道控制器
func (p *CyclicProgram) Lane(stateIndex int) ISignalController {
	if stateIndex < 0 || stateIndex >= p.numStates {
		log.Panicf("junction %d: state index %d out of range [0, %d)", p.junctionID, stateIndex, p.numStates)
	}
	return &cyclicLane{program: p, index: stateIndex}
}

type cyclicLane struct {
	program *CyclicProgram
	index   int
}

func (l *cyclicLane) SignalAt(t float64) mapv2.LightState {
	state, _ := l.Lookup(t)
	return state
}

// Lookup 本相位剩余时长加上后续相同状态相位的时长
func (l *cyclicLane) Lookup(t float64) (mapv2.LightState, float64) {
	rt := l.program.runtime.Load()
	if rt.tl == nil || !rt.ok {
		return mapv2.LightState_LIGHT_STATE_GREEN, mathutil.INF
	}
	i, remaining := rt.phaseAt(t)
	return rt.tl.Phases[i].States[l.index], remaining + rt.timeBeforeChange[l.index][i]
}

// timeBeforeChange 计算每个状态在每个相位结束后还将保持不变的时长
// 算法说明：
// 1. 从后往前遍历相位，下一相位状态相同则累加下一相位的时长
// 2. 所有相位状态相同则为无穷大
// 3. 首末相位状态相同时，末尾连续相同的相位还要加上从第0相位开始的持续时长
func timeBeforeChange(tl *mapv2.TrafficLight, numStates int) [][]float64 {
	numPhases := len(tl.Phases)
	res := make([][]float64, 0, numStates)
	for laneIndex := 0; laneIndex < numStates; laneIndex++ {
		time := make([]float64, numPhases)

		allTheSame := true
		for phaseIndex := numPhases - 2; phaseIndex >= 0; phaseIndex-- {
			state := tl.Phases[phaseIndex+1].States[laneIndex]
			if tl.Phases[phaseIndex].States[laneIndex] == state {
				time[phaseIndex] = time[phaseIndex+1] + tl.Phases[phaseIndex+1].Duration
			} else {
				allTheSame = false
			}
		}

		if allTheSame {
			for idx := range time {
				time[idx] = mathutil.INF
			}
		} else {
			t0 := time[0] + tl.Phases[0].Duration
			lastState := tl.Phases[numPhases-1].States[laneIndex]
			if lastState == tl.Phases[0].States[laneIndex] {
				for phaseIndex := numPhases - 1; phaseIndex >= 0; phaseIndex-- {
					if lastState != tl.Phases[phaseIndex].States[laneIndex] {
						break
					}
					time[phaseIndex] += t0
				}
			}
		}
		res = append(res, time)
	}
	return res
}
