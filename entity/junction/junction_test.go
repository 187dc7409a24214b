package junction_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"connectrpc.com/connect"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/aimsim/clock"
	"github.com/tsinghua-fib-lab/aimsim/entity"
	"github.com/tsinghua-fib-lab/aimsim/entity/junction"
	"github.com/tsinghua-fib-lab/aimsim/entity/lane"
	"github.com/tsinghua-fib-lab/aimsim/entity/message"
	"github.com/tsinghua-fib-lab/aimsim/entity/road"
	"github.com/tsinghua-fib-lab/aimsim/utils/config"
	"github.com/tsinghua-fib-lab/aimsim/utils/input"
)

type testContext struct {
	clock *clock.Clock
	lm    *lane.LaneManager
	rm    *road.RoadManager
	jm    *junction.JunctionManager
	rc    *config.RuntimeConfig
}

func (c *testContext) Clock() *clock.Clock                      { return c.clock }
func (c *testContext) LaneManager() entity.ILaneManager         { return c.lm }
func (c *testContext) RoadManager() entity.IRoadManager         { return c.rm }
func (c *testContext) JunctionManager() entity.IJunctionManager { return c.jm }
func (c *testContext) VehicleManager() entity.IVehicleManager   { return nil }
func (c *testContext) RuntimeConfig() *config.RuntimeConfig     { return c.rc }

func newContext(t *testing.T, control config.Control) *testContext {
	rc, err := config.NewRuntimeConfig(config.Config{Control: control})
	require.NoError(t, err)
	ctx := &testContext{
		clock: clock.New(rc.C.Step),
		lm:    lane.NewManager(),
		rm:    road.NewManager(),
		rc:    rc,
	}
	ctx.jm = junction.NewManager(ctx)
	m := input.BuildLayout(rc.Layout)
	ctx.lm.Init(m.Lanes)
	ctx.rm.Init(m.Roads, ctx.lm)
	ctx.jm.Init(m.Junctions, ctx.lm)
	ctx.lm.InitAfterJunction()
	ctx.rm.InitAfterJunction()
	t.Cleanup(ctx.jm.Close)
	return ctx
}

func request(vin int32, arrivalTime float64) *message.Request {
	return &message.Request{
		Vin:       vin,
		Junction:  input.LayoutJunctionID,
		RequestID: 1,
		Proposals: []message.Proposal{{ArrivalLaneID: 100, DepartureLaneID: 1100, ArrivalTime: arrivalTime, ArrivalVelocity: 10}},
		Length:    4,
		Width:     1.75,
	}
}

func TestJunctionOfLayout(t *testing.T) {
	ctx := newContext(t, config.Control{})
	j := ctx.jm.All()[0]
	assert.Len(t, j.Lanes(), 36)
	assert.Len(t, j.ArrivalLanes(), 12)
	assert.InDelta(t, 150, j.Centroid().X, 1e-9)
	assert.InDelta(t, 150, j.Centroid().Y, 1e-9)
	b := j.Boundary().Bound()
	assert.InDelta(t, 136, b.Min[0], 1e-9)
	assert.InDelta(t, 164, b.Max[1], 1e-9)

	// 东向最右侧车道右转到南向最右侧车道
	dep, ok := j.DepartureLane(ctx.lm.Get(100), ctx.rm.Get(14))
	require.True(t, ok)
	assert.EqualValues(t, 1400, dep.ID())
	c, ok := j.ConnectorLane(100, 1100)
	require.True(t, ok)
	assert.Equal(t, mapv2.LaneTurn_LANE_TURN_STRAIGHT, c.Turn())
	assert.Equal(t, entity.IJunction(j), c.ParentJunction())
	_, ok = j.ConnectorLane(100, 1200)
	assert.False(t, ok)

	assert.Same(t, j, ctx.jm.Get(input.LayoutJunctionID))
	_, err := ctx.jm.GetOrError(99)
	assert.Error(t, err)
	assert.Panics(t, func() { ctx.jm.Get(99) })
}

func TestDefaultCyclicProgram(t *testing.T) {
	ctx := newContext(t, config.Control{})
	j := ctx.jm.All()[0]
	// 路口1从第1个相位（南北黄灯）开始
	state, remaining := j.Signal(100)
	assert.Equal(t, mapv2.LightState_LIGHT_STATE_RED, state)
	assert.InDelta(t, 5, remaining, 1e-9)
	state, remaining = j.Signal(300)
	assert.Equal(t, mapv2.LightState_LIGHT_STATE_YELLOW, state)
	assert.InDelta(t, 3, remaining, 1e-9)
	state, _ = j.Signal(4242)
	assert.Equal(t, mapv2.LightState_LIGHT_STATE_RED, state)
}

func TestRequestLifecycle(t *testing.T) {
	ctx := newContext(t, config.Control{})
	j := ctx.jm.All()[0]

	// 红灯拒绝
	j.Receive(request(1, 1))
	ctx.jm.Update(0.1)
	assert.InDelta(t, 0.1, j.Time(), 1e-9)
	out := j.PopOutbox()
	require.Len(t, out, 1)
	reject, ok := out[0].(*message.Reject)
	require.True(t, ok)
	assert.Equal(t, message.NO_CLEAR_PATH, reject.Reason)
	assert.Empty(t, j.PopOutbox())

	// 切换到东西绿灯后确认
	_, err := ctx.jm.SetTrafficLightPhase(context.Background(), connect.NewRequest(&mapv2.SetTrafficLightPhaseRequest{
		JunctionId: input.LayoutJunctionID, PhaseIndex: 3, TimeRemaining: 30,
	}))
	require.NoError(t, err)
	state, _ := j.Signal(100)
	assert.Equal(t, mapv2.LightState_LIGHT_STATE_GREEN, state)

	j.Receive(request(1, 1))
	ctx.jm.Update(0.1)
	out = j.PopOutbox()
	require.Len(t, out, 1)
	confirm, ok := out[0].(*message.Confirm)
	require.True(t, ok)
	assert.EqualValues(t, 1100, confirm.Proposal.DepartureLaneID)
	assert.True(t, j.HasReservation(1))
	assert.False(t, j.Ledger().Overlaps())

	// 第二个请求直接拒绝
	j.Receive(request(1, 2))
	ctx.jm.Update(0.1)
	reject, ok = j.PopOutbox()[0].(*message.Reject)
	require.True(t, ok)
	assert.Equal(t, message.CONFIRMED_ANOTHER_REQUEST, reject.Reason)

	// 错误的预约ID不会释放
	j.Receive(&message.Done{Vin: 1, Junction: input.LayoutJunctionID, ReservationID: confirm.ReservationID + 1})
	ctx.jm.Update(0.1)
	assert.True(t, j.HasReservation(1))
	j.Receive(&message.Done{Vin: 1, Junction: input.LayoutJunctionID, ReservationID: confirm.ReservationID})
	ctx.jm.Update(0.1)
	assert.False(t, j.HasReservation(1))
	assert.Equal(t, 0, j.Ledger().Cells())

	stats := j.Stats()
	assert.Equal(t, 3, stats.Requests)
	assert.Equal(t, 1, stats.Confirms)
	assert.Equal(t, 2, stats.Dones)
	assert.Equal(t, 1, stats.Rejects[message.CONFIRMED_ANOTHER_REQUEST])
}

func TestReservationExpiresAndReleasesOnCompletion(t *testing.T) {
	ctx := newContext(t, config.Control{Admission: config.Admission{Policy: config.PolicyGrid}})
	j := ctx.jm.All()[0]
	j.Receive(request(1, 0.5))
	j.Receive(request(2, 0.5))
	ctx.jm.Update(0.1)
	out := j.PopOutbox()
	require.Len(t, out, 2)
	_, ok := out[0].(*message.Confirm)
	assert.True(t, ok)
	reject, ok := out[1].(*message.Reject)
	require.True(t, ok)
	assert.Equal(t, message.NO_CLEAR_PATH, reject.Reason)

	j.VehicleCompleted(1)
	assert.False(t, j.HasReservation(1))

	j.Receive(request(3, 0.5))
	ctx.jm.Update(0.1)
	confirm, ok := j.PopOutbox()[0].(*message.Confirm)
	require.True(t, ok)
	for j.Time() <= confirm.ExitTime {
		ctx.jm.Update(0.1)
	}
	assert.False(t, j.HasReservation(3))
	assert.Equal(t, 1, j.Stats().Expired)
}

func TestTrafficLightRPC(t *testing.T) {
	ctx := newContext(t, config.Control{})
	bg := context.Background()

	res, err := ctx.jm.GetTrafficLight(bg, connect.NewRequest(&mapv2.GetTrafficLightRequest{JunctionId: input.LayoutJunctionID}))
	require.NoError(t, err)
	assert.Len(t, res.Msg.TrafficLight.Phases, 6)
	assert.EqualValues(t, 1, res.Msg.PhaseIndex)
	assert.InDelta(t, 3, res.Msg.TimeRemaining, 1e-9)

	_, err = ctx.jm.GetTrafficLight(bg, connect.NewRequest(&mapv2.GetTrafficLightRequest{JunctionId: 99}))
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
	_, err = ctx.jm.SetTrafficLightPhase(bg, connect.NewRequest(&mapv2.SetTrafficLightPhaseRequest{
		JunctionId: input.LayoutJunctionID, PhaseIndex: 0, TimeRemaining: -1,
	}))
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	_, err = ctx.jm.SetTrafficLightStatus(bg, connect.NewRequest(&mapv2.SetTrafficLightStatusRequest{JunctionId: input.LayoutJunctionID, Ok: false}))
	require.NoError(t, err)
	j := ctx.jm.All()[0]
	assert.False(t, j.HasTrafficLight())
	state, _ := j.Signal(100)
	assert.Equal(t, mapv2.LightState_LIGHT_STATE_GREEN, state)

	// 相位为空时删除程序
	_, err = ctx.jm.SetTrafficLight(bg, connect.NewRequest(&mapv2.SetTrafficLightRequest{
		TrafficLight: &mapv2.TrafficLight{JunctionId: input.LayoutJunctionID},
	}))
	require.NoError(t, err)
	res, err = ctx.jm.GetTrafficLight(bg, connect.NewRequest(&mapv2.GetTrafficLightRequest{JunctionId: input.LayoutJunctionID}))
	require.NoError(t, err)
	assert.Nil(t, res.Msg.TrafficLight)
}

func TestPhaseFileSignal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "phase.txt")
	require.NoError(t, os.WriteFile(path, []byte("100\nRRRRRRGRRRRR\n"), 0o644))
	ctx := newContext(t, config.Control{Signal: config.Signal{Type: config.SignalFile, PhaseFile: path, PollInterval: 0.01}})
	j := ctx.jm.All()[0]
	state, remaining := j.Signal(300)
	assert.Equal(t, mapv2.LightState_LIGHT_STATE_GREEN, state)
	assert.InDelta(t, 100, remaining, 1e-9)
	state, _ = j.Signal(100)
	assert.Equal(t, mapv2.LightState_LIGHT_STATE_RED, state)

	_, err := ctx.jm.GetTrafficLight(context.Background(), connect.NewRequest(&mapv2.GetTrafficLightRequest{JunctionId: input.LayoutJunctionID}))
	assert.ErrorIs(t, err, junction.ErrDisabledTrafficLight)
}
