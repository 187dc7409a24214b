package clock_test

import (
	"context"
	"testing"

	"connectrpc.com/connect"
	clockv1 "git.fiblab.net/sim/protos/v2/go/city/clock/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/aimsim/clock"
	"github.com/tsinghua-fib-lab/aimsim/utils/config"
)

func TestClockAdvance(t *testing.T) {
	c := clock.New(config.ControlStep{Start: 10, Total: 5, Interval: 0.5})
	assert.Equal(t, 5.0, c.T)
	for !c.Finished() {
		c.Advance(c.DT)
	}
	assert.Equal(t, int32(15), c.InternalStep)
	assert.InDelta(t, 7.5, c.T, 1e-9)
	assert.Equal(t, "00:00:07", c.String())

	res, err := c.Now(context.Background(), connect.NewRequest(&clockv1.NowRequest{}))
	require.NoError(t, err)
	assert.InDelta(t, 7.5, res.Msg.T, 1e-9)
}

func TestClockHourMinuteSecond(t *testing.T) {
	c := clock.New(config.ControlStep{Interval: 1})
	c.T = 3725.5
	h, m, s := c.GetHourMinuteSecond()
	assert.Equal(t, 1, h)
	assert.Equal(t, 2, m)
	assert.InDelta(t, 5.5, s, 1e-9)
}

func TestClockNowReadsPublishedTime(t *testing.T) {
	c := clock.New(config.ControlStep{Total: 10, Interval: 0.1})
	c.Advance(c.DT)
	c.Advance(c.DT)
	assert.InDelta(t, 0.2, c.Published(), 1e-9)

	// 步内对T的修改在下一次步边界前不对外可见
	c.T = 999
	res, err := c.Now(context.Background(), connect.NewRequest(&clockv1.NowRequest{}))
	require.NoError(t, err)
	assert.InDelta(t, 0.2, res.Msg.T, 1e-9)

	c.Advance(0.05)
	assert.InDelta(t, 999.05, c.Published(), 1e-9)
	c.Init()
	assert.Equal(t, 0.0, c.Published())
}
