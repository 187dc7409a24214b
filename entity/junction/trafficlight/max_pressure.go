// 提供Max Pressure信号灯控制算法
// 不会按照原来的相位顺序切换，而是在每个相位结束后计算所有相位的pressure，选取pressure最大的相位
package trafficlight

import (
	"errors"
	"flag"
	"slices"
	"sync/atomic"

	"git.fiblab.net/general/common/v2/mathutil"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/aimsim/utils/container"
)

var (
	yellowTime     = flag.Float64("tl.mp_yellow_time", 3, "最大压力法黄灯时间")
	allRedTime     = flag.Float64("tl.mp_all_red_time", 3, "最大压力法全红时间")
	phaseTime      = flag.Float64("tl.mp_phase_time", 15, "最大压力法相位时间")
	maxRepeatCount = flag.Int("tl.mp_max_repeat_count", 6, "最大压力法每个相位最多重复的次数")
)

var (
	ErrMaxPressure = errors.New("mp: cannot set traffic light with traffic light algorithm")
)

// mpSnapshot 最大压力信控对外发布的只读快照
type mpSnapshot struct {
	phase     []mapv2.LightState // 当前相位（nil表示无信控，全绿）
	nextPhase []mapv2.LightState // 下一相位
	at        float64            // 快照时刻
	remaining float64            // 快照时刻当前相位的剩余时间
}

// mpTlRuntime 最大压力信号灯运行时数据结构
// 功能：存储最大压力算法的运行时状态，包括相位信息、时间控制、过渡状态等
type mpTlRuntime struct {
	phases           [][]mapv2.LightState // 可供最大压力算法选择的相位列表
	index            int                  // 当前相位
	repeatCount      int                  // 当前相位重复的次数
	remainingT       float64              // 当前相位剩余时间
	transitionPhases [][]mapv2.LightState // 过渡相位 包含黄灯和全红相位
	transitionTimes  []float64            // 过渡相位持续时长

	nextIndex int // 黄灯状态后的下一个相位
}

// MaxPressure 最大压力信号灯控制器
// 功能：根据驶入与驶出车道的车辆数之差（压力）动态选择放行相位
// 说明：Update只在仿真主线程调用，驶入车道控制器通过原子快照读取状态
type MaxPressure struct {
	junctionID int32
	numStates  int
	runtime    mpTlRuntime
	ok         atomic.Bool

	snapshot atomic.Pointer[mpSnapshot]
}

// NewMaxPressure 创建最大压力信号灯控制器
// 参数：junctionID-路口ID，numStates-状态数，program-固定周期程序，其中含绿灯的相位作为候选相位
func NewMaxPressure(junctionID int32, numStates int, program *mapv2.TrafficLight) *MaxPressure {
	l := &MaxPressure{junctionID: junctionID, numStates: numStates}
	l.ok.Store(true)
	if program != nil {
		for _, phase := range program.Phases {
			if len(phase.States) != numStates {
				log.Warnf("mp: junction %d phase with %d states, expect %d", junctionID, len(phase.States), numStates)
				continue
			}
			if !lo.Contains(phase.States, mapv2.LightState_LIGHT_STATE_GREEN) {
				continue
			}
			duplicated := lo.ContainsBy(l.runtime.phases, func(p []mapv2.LightState) bool {
				return slices.Equal(p, phase.States)
			})
			if !duplicated {
				l.runtime.phases = append(l.runtime.phases, phase.States)
			}
		}
	}
	if len(l.runtime.phases) >= 2 {
		l.runtime.remainingT = *phaseTime
		l.runtime.repeatCount = 1
	}
	l.publish(0)
	return l
}

// Update 更新阶段，执行最大压力算法的核心逻辑
// 参数：now-更新后的路口时间，dt-时间步长，pressure-每个状态对应车道的压力
// 算法说明：
// 1. 为每个相位计算总压力（绿灯车道压力之和）
// 2. 选择压力最大的相位作为下一个相位
// 3. 如果最大压力相位未变化且未达到最大重复次数，则延长当前相位
// 4. 生成过渡相位（黄灯、全红）
func (l *MaxPressure) Update(now, dt float64, pressure []float64) {
	defer l.publish(now)
	if len(l.runtime.phases) < 2 || !l.ok.Load() {
		return
	}
	l.runtime.remainingT -= dt
	if l.runtime.remainingT > 0 {
		// 当前相位没走完
		return
	}
	if len(l.runtime.transitionPhases) == 1 {
		// 过渡相位->下一相位
		l.runtime.index = l.runtime.nextIndex
		l.runtime.remainingT += *phaseTime
		l.runtime.transitionPhases = nil
		l.runtime.transitionTimes = nil
	} else if len(l.runtime.transitionPhases) > 1 {
		// 过渡相位->下一个过渡相位
		l.runtime.transitionTimes = l.runtime.transitionTimes[1:]
		l.runtime.transitionPhases = l.runtime.transitionPhases[1:]
		l.runtime.remainingT += l.runtime.transitionTimes[0]
	} else {
		l.switchPhase(pressure)
	}
	if l.runtime.remainingT <= 0 {
		log.Warnf("traffic light %d remaining time %f <= 0", l.junctionID, l.runtime.remainingT)
	}
}

// switchPhase 正常相位结束，根据最大压力计算下一相位并生成过渡相位
func (l *MaxPressure) switchPhase(pressure []float64) {
	pressureHeap := container.NewPriorityQueue[int]()
	for i, phase := range l.runtime.phases {
		p := 0.
		for j, state := range phase {
			if state == mapv2.LightState_LIGHT_STATE_GREEN && j < len(pressure) {
				p += pressure[j]
			}
		}
		pressureHeap.HeapPush(i, -p) // 小顶堆，压力越大越靠前
	}
	maxIndex, _ := pressureHeap.HeapPop()
	if maxIndex == l.runtime.index {
		if l.runtime.repeatCount >= *maxRepeatCount {
			// 达到最大延时次数，切换到第二大压力的相位
			maxIndex, _ = pressureHeap.HeapPop()
		} else {
			l.runtime.remainingT += *phaseTime
			l.runtime.repeatCount++
			return
		}
	}
	l.runtime.nextIndex = maxIndex
	l.runtime.repeatCount = 1
	current := l.runtime.phases[l.runtime.index]
	nextPhase := l.runtime.phases[maxIndex]
	// 黄灯相位，把当前为绿灯、下一时刻为红灯的变为黄灯
	yellowPhase := make([]mapv2.LightState, l.numStates)
	copy(yellowPhase, current)
	// 全红相位，下一相位新放行的车道先保持红灯
	allRedPhase := make([]mapv2.LightState, l.numStates)
	copy(allRedPhase, nextPhase)
	hasAllRedPhase := false
	for i, state := range current {
		if state == mapv2.LightState_LIGHT_STATE_GREEN && nextPhase[i] == mapv2.LightState_LIGHT_STATE_RED {
			yellowPhase[i] = mapv2.LightState_LIGHT_STATE_YELLOW
		}
		if state == mapv2.LightState_LIGHT_STATE_RED && nextPhase[i] == mapv2.LightState_LIGHT_STATE_GREEN {
			allRedPhase[i] = mapv2.LightState_LIGHT_STATE_RED
			hasAllRedPhase = true
		}
	}
	// 顺序 信控相位1--黄灯相位--全红相位--信控相位2
	l.runtime.transitionPhases = [][]mapv2.LightState{yellowPhase}
	l.runtime.transitionTimes = []float64{*yellowTime}
	if hasAllRedPhase {
		l.runtime.transitionPhases = append(l.runtime.transitionPhases, allRedPhase)
		l.runtime.transitionTimes = append(l.runtime.transitionTimes, *allRedTime)
	}
	l.runtime.remainingT += l.runtime.transitionTimes[0]
}

func (l *MaxPressure) publish(now float64) {
	if len(l.runtime.phases) < 2 || !l.ok.Load() {
		l.snapshot.Store(&mpSnapshot{at: now, remaining: mathutil.INF})
		return
	}
	s := &mpSnapshot{at: now, remaining: l.runtime.remainingT}
	if len(l.runtime.transitionPhases) > 0 {
		s.phase = l.runtime.transitionPhases[0]
		s.nextPhase = l.runtime.phases[l.runtime.nextIndex]
		if len(l.runtime.transitionPhases) > 1 {
			s.nextPhase = l.runtime.transitionPhases[1]
		}
	} else {
		s.phase = l.runtime.phases[l.runtime.index]
		s.nextPhase = s.phase
	}
	l.snapshot.Store(s)
}

// Get 最大压力算法不保存外部程序，始终为nil
func (l *MaxPressure) Get() *mapv2.TrafficLight {
	return nil
}

// Set 最大压力算法不支持外部程序设置
func (l *MaxPressure) Set(*mapv2.TrafficLight, float64) error {
	return ErrMaxPressure
}

// Unset 最大压力算法不支持删除程序
func (l *MaxPressure) Unset() {}

// SetPhase 最大压力算法不支持外部相位设置
func (l *MaxPressure) SetPhase(float64, int32, float64) error {
	return ErrMaxPressure
}

// PhaseAt 动态相位没有固定下标，返回-1与t时刻当前相位的剩余时间
func (l *MaxPressure) PhaseAt(t float64) (int32, float64) {
	s := l.snapshot.Load()
	return -1, max(s.remaining-(t-s.at), 0)
}

// SetOk 设置信号灯的开关状态，false表示失效（全绿灯），下一次Update生效
func (l *MaxPressure) SetOk(ok bool) {
	l.ok.Store(ok)
}

// Ok 信号灯是否正常工作
func (l *MaxPressure) Ok() bool {
	return l.ok.Load()
}

// Phases 候选相位数
func (l *MaxPressure) Phases() int {
	return len(l.runtime.phases)
}

// Lane 第stateIndex个状态对应的驶入车道控制器
func (l *MaxPressure) Lane(stateIndex int) ISignalController {
	if stateIndex < 0 || stateIndex >= l.numStates {
		log.Panicf("mp: junction %d state index %d out of range [0, %d)", l.junctionID, stateIndex, l.numStates)
	}
	return &mpLane{tl: l, index: stateIndex}
}

type mpLane struct {
	tl    *MaxPressure
	index int
}

func (l *mpLane) SignalAt(t float64) mapv2.LightState {
	state, _ := l.Lookup(t)
	return state
}

// Lookup 如果下个相位还是绿灯，则把下个相位的时间也加上
func (l *mpLane) Lookup(t float64) (mapv2.LightState, float64) {
	s := l.tl.snapshot.Load()
	if s.phase == nil {
		return mapv2.LightState_LIGHT_STATE_GREEN, mathutil.INF
	}
	state := s.phase[l.index]
	remaining := max(s.remaining-(t-s.at), 0)
	if state == mapv2.LightState_LIGHT_STATE_GREEN && s.nextPhase[l.index] == mapv2.LightState_LIGHT_STATE_GREEN {
		remaining += *phaseTime
	}
	return state, remaining
}
