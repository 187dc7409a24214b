package clock

import (
	"fmt"
	"math"
	"sync/atomic"

	"git.fiblab.net/sim/protos/v2/go/city/clock/v1/clockv1connect"
	"github.com/tsinghua-fib-lab/aimsim/utils/config"
)

// Clock 仿真时钟
// 功能：维护当前仿真时间与步数，并通过RPC对外提供当前时间
type Clock struct {
	clockv1connect.UnimplementedClockServiceHandler

	DT         float64 // 每步时间间隔（秒）
	START_STEP int32   // 起始步
	END_STEP   int32   // 结束步，模拟区间[START, END)

	T            float64 // 当前时间（秒）
	InternalStep int32   // 当前步数

	published atomic.Uint64 // 步边界上发布的T（math.Float64bits），供RPC协程读取
}

// New 根据控制步配置创建时钟
// 参数：stepConfig-控制步配置，Interval需已填好默认值
// 返回：处于起始步的时钟
func New(stepConfig config.ControlStep) *Clock {
	c := &Clock{
		DT:         stepConfig.Interval,
		START_STEP: stepConfig.Start,
		END_STEP:   stepConfig.Start + stepConfig.Total,
	}
	c.Init()
	return c
}

// Init 重置到起始步
func (c *Clock) Init() {
	c.InternalStep = c.START_STEP
	c.T = float64(c.InternalStep) * c.DT
	c.publish()
}

// Advance 前进一步，dt为本步的时间间隔
// 说明：时间按步数累加计算，dt与DT不同时（离线调用Step(dt)）直接累加
func (c *Clock) Advance(dt float64) {
	c.InternalStep++
	if dt == c.DT {
		c.T = float64(c.InternalStep) * c.DT
	} else {
		c.T += dt
	}
	c.publish()
}

func (c *Clock) publish() {
	c.published.Store(math.Float64bits(c.T))
}

// Published 最近一次步边界上的时间
func (c *Clock) Published() float64 {
	return math.Float64frombits(c.published.Load())
}

// Finished 是否已到达结束步
func (c *Clock) Finished() bool {
	return c.InternalStep >= c.END_STEP
}

// String 格式化为HH:MM:SS
func (c *Clock) String() string {
	hour, minute, second := c.GetHourMinuteSecond()
	return fmt.Sprintf("%02d:%02d:%02d", hour, minute, int(second))
}

// GetHourMinuteSecond 将当前时间分解为小时、分钟、秒（秒为浮点数）
func (c *Clock) GetHourMinuteSecond() (int, int, float64) {
	hour := int(c.T) / 3600
	minute := int(c.T) % 3600 / 60
	second := c.T - float64(hour*3600+minute*60)
	return hour, minute, second
}
