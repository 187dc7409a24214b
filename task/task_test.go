package task_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/aimsim/task"
	"github.com/tsinghua-fib-lab/aimsim/utils/config"
)

func newTask(t *testing.T, c config.Config) *task.Context {
	rc, err := config.NewRuntimeConfig(c)
	require.NoError(t, err)
	ctx := task.NewContext("test", "", rc, nil, false)
	ctx.Init()
	t.Cleanup(ctx.Close)
	return ctx
}

func control(policy string, total int32) config.Control {
	return config.Control{
		Step:      config.ControlStep{Interval: 0.1, Total: total},
		Spawn:     config.Spawn{TrafficLevel: 0.2},
		Admission: config.Admission{Policy: policy},
	}
}

// checkInvariants 每步检查：VIN唯一、预约不重叠、每辆车至多持有一个预约
func checkInvariants(t *testing.T, ctx *task.Context) {
	seen := map[int32]bool{}
	for _, v := range ctx.Vehicles().All() {
		require.False(t, seen[v.VIN()], "duplicated vin %d", v.VIN())
		seen[v.VIN()] = true
	}
	for _, j := range ctx.Junctions().All() {
		require.False(t, j.Ledger().Overlaps())
		require.LessOrEqual(t, j.Ledger().Len(), len(seen))
	}
}

func runSteps(t *testing.T, ctx *task.Context, n int) (spawned, completed int) {
	last := ctx.Clock().T
	for range n {
		res := ctx.Step(ctx.Clock().DT)
		assert.InDelta(t, last+ctx.Clock().DT, res.Time, 1e-6)
		last = res.Time
		spawned += len(res.Spawned)
		completed += len(res.CompletedVINs)
		checkInvariants(t, ctx)
	}
	return
}

func TestStepSignalPolicy(t *testing.T) {
	ctx := newTask(t, config.Config{Control: control(config.PolicySignal, 900)})
	spawned, completed := runSteps(t, ctx, 900)
	assert.Positive(t, spawned)
	assert.Positive(t, completed)

	s := ctx.Summary()
	assert.Positive(t, s.Requests)
	assert.Positive(t, s.Confirms)
	assert.Equal(t, int32(spawned), s.NumSpawned)
	assert.Equal(t, int32(completed), s.NumCompletedTrips)
	assert.Equal(t, spawned-completed, s.NumActive)
	assert.Positive(t, s.BitsSent)
	assert.Positive(t, s.BitsReceived)
	// 驶出车辆都穿过了出口采集线
	exits := s.Crossings["E-out"] + s.Crossings["W-out"] + s.Crossings["N-out"] + s.Crossings["S-out"]
	assert.GreaterOrEqual(t, exits, completed)
}

func TestStepGridPolicy(t *testing.T) {
	ctx := newTask(t, config.Config{Control: control(config.PolicyGrid, 600)})
	_, completed := runSteps(t, ctx, 600)
	assert.Positive(t, completed)
	assert.Positive(t, ctx.Summary().Confirms)
}

func TestStepGreenSignal(t *testing.T) {
	c := control(config.PolicySignal, 300)
	c.Signal.Type = config.SignalGreen
	ctx := newTask(t, config.Config{Control: c})
	_, completed := runSteps(t, ctx, 300)
	assert.Positive(t, completed)
	assert.Positive(t, ctx.Summary().Confirms)
}

func TestVinReset(t *testing.T) {
	c := control(config.PolicySignal, 100)
	c.Spawn.TrafficLevel = 2
	c.VinResetInterval = 5
	ctx := newTask(t, config.Config{Control: c})
	reset := false
	for range 100 {
		res := ctx.Step(0.1)
		if res.Time >= 5-1e-9 && !reset {
			reset = true
			assert.NotEmpty(t, res.CompletedVINs)
			assert.Zero(t, ctx.Vehicles().Len())
			continue
		}
		if reset && len(res.Spawned) > 0 {
			assert.Equal(t, int32(1), res.Spawned[0])
			break
		}
	}
	assert.True(t, reset)
}

func TestStatusFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.txt")
	c := config.Config{Control: control(config.PolicySignal, 50), Output: config.Output{StatusFile: path}}
	c.Control.Spawn.TrafficLevel = 10
	ctx := newTask(t, c)
	runSteps(t, ctx, 20)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Equal(t, "2", lines[0])
	require.Len(t, lines, 1+ctx.Vehicles().Len())
	for _, l := range lines[1:] {
		fields := strings.Split(l, "\t")
		require.Len(t, fields, 7)
		assert.Equal(t, "2.00", fields[0])
		assert.Contains(t, []string{"E-in", "W-in", "N-in", "S-in"}, fields[4])
		assert.Contains(t, []string{"E-out", "W-out", "N-out", "S-out"}, fields[5])
	}
}

func TestFormatDistance(t *testing.T) {
	assert.Equal(t, "146.00", task.FormatDistance(200))
	assert.Equal(t, "146.00", task.FormatDistance(146))
	assert.Equal(t, "50.12", task.FormatDistance(50.123))
	assert.Equal(t, "0.90", task.FormatDistance(0.9))
	assert.Equal(t, "0.00", task.FormatDistance(0.5))
	assert.Equal(t, "0.00", task.FormatDistance(-3))
}

func TestRunOffline(t *testing.T) {
	rc, err := config.NewRuntimeConfig(config.Config{Control: control(config.PolicySignal, 50)})
	require.NoError(t, err)
	ctx := task.NewContext("offline", "", rc, nil, false)
	s := ctx.RunOffline()
	assert.Equal(t, int32(50), s.Steps)
	assert.InDelta(t, 5, s.Time, 1e-9)
}
