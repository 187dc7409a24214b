package vehicle

import (
	"math"
	"testing"

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
	vm    *VehicleManager
	rc    *config.RuntimeConfig
}

func (c *testContext) Clock() *clock.Clock                      { return c.clock }
func (c *testContext) LaneManager() entity.ILaneManager         { return c.lm }
func (c *testContext) RoadManager() entity.IRoadManager         { return c.rm }
func (c *testContext) JunctionManager() entity.IJunctionManager { return c.jm }
func (c *testContext) VehicleManager() entity.IVehicleManager   { return c.vm }
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
	ctx.vm = NewManager(ctx)
	m := input.BuildLayout(rc.Layout)
	ctx.lm.Init(m.Lanes)
	ctx.rm.Init(m.Roads, ctx.lm)
	ctx.jm.Init(m.Junctions, ctx.lm)
	ctx.lm.InitAfterJunction()
	ctx.rm.InitAfterJunction()
	ctx.vm.Init(ctx.rm)
	t.Cleanup(ctx.jm.Close)
	return ctx
}

// place 在车道laneID的s处直接注册一辆车
func (c *testContext) place(vin int32, laneID int32, s float64) *Vehicle {
	l := c.lm.Get(laneID)
	dest := destinationRoad(c.rm.Roads(), l.ParentRoad(), SelectDestination(l.ParentRoad().Direction(), l.IndexInRoad()))
	v := newVehicle(c, vin, config.DefaultVehicleSpec, l, s, dest)
	c.vm.add(v)
	c.vm.vehicles.Prepare()
	return v
}

// run 执行n步Decide与Move，不投递消息
func (c *testContext) run(n int, each func()) {
	dt := c.clock.DT
	for range n {
		c.vm.Decide(dt)
		c.vm.Move(dt, nil)
		c.clock.Advance(dt)
		if each != nil {
			each()
		}
	}
}

func TestSelectDestination(t *testing.T) {
	cases := []struct {
		origin entity.Direction
		index  int
		want   entity.Direction
	}{
		{entity.DirectionE, 2, entity.DirectionN},
		{entity.DirectionE, 1, entity.DirectionE},
		{entity.DirectionE, 0, entity.DirectionS},
		{entity.DirectionW, 2, entity.DirectionS},
		{entity.DirectionW, 0, entity.DirectionN},
		{entity.DirectionN, 2, entity.DirectionW},
		{entity.DirectionN, 0, entity.DirectionE},
		{entity.DirectionS, 2, entity.DirectionE},
		{entity.DirectionS, 0, entity.DirectionW},
		{entity.DirectionS, 1, entity.DirectionS},
		{entity.DirectionN, 5, entity.DirectionN},
		{entity.DirectionUnknown, 0, entity.DirectionUnknown},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, SelectDestination(c.origin, c.index), "%v lane %d", c.origin, c.index)
	}
}

func TestSpawnPointsOfLayout(t *testing.T) {
	ctx := newContext(t, config.Control{})
	points := ctx.vm.SpawnPoints()
	require.Len(t, points, 12)
	for i := 1; i < len(points); i++ {
		assert.Less(t, points[i-1].ID(), points[i].ID())
	}
	dest := map[int32]string{}
	for _, p := range points {
		dest[p.ID()] = p.Destination().Name()
	}
	assert.Equal(t, "S-out", dest[100])
	assert.Equal(t, "E-out", dest[101])
	assert.Equal(t, "N-out", dest[102])
	assert.Equal(t, "W-out", dest[400])

	zone := points[0].Zone().Bound()
	assert.InDelta(t, 0, zone.Min[0], 1e-9)
	assert.InDelta(t, 28, zone.Max[0], 1e-9)
	assert.InDelta(t, 138, zone.Min[1], 1e-9)
	assert.InDelta(t, 142, zone.Max[1], 1e-9)
}

func alwaysSpawn() config.Control {
	return config.Control{
		Step:  config.ControlStep{Interval: 0.1},
		Spawn: config.Spawn{TrafficLevel: 10},
	}
}

func TestSpawnSuppressedOnZoneBoundary(t *testing.T) {
	ctx := newContext(t, alwaysSpawn())
	// 车尾恰好在禁止区末端（接触）
	blocker := ctx.place(1000, 100, 28+config.DefaultVehicleSpec.Length)

	spawned := ctx.vm.Spawn(0.1)
	require.Len(t, spawned, 11)
	seen := map[int32]bool{}
	for _, vin := range spawned {
		assert.NotEqual(t, blocker.VIN(), vin)
		assert.False(t, seen[vin])
		seen[vin] = true
		v := ctx.vm.Get(vin)
		assert.NotEqual(t, int32(100), v.Lane().ID())
		assert.Zero(t, v.S())
		assert.InDelta(t, 25, v.V(), 1e-9)
	}
	assert.Equal(t, int32(1), spawned[0])
	assert.Equal(t, 12, ctx.vm.Len())
}

func TestSpawnClearJustBeyondZone(t *testing.T) {
	ctx := newContext(t, alwaysSpawn())
	ctx.place(1000, 100, 28+config.DefaultVehicleSpec.Length+0.01)
	assert.Len(t, ctx.vm.Spawn(0.1), 12)
	// 新生成的车辆占据禁止区，下一步全部被抑制
	assert.Empty(t, ctx.vm.Spawn(0.1))
}

func TestDuplicateVINPanics(t *testing.T) {
	ctx := newContext(t, config.Control{})
	ctx.place(7, 100, 50)
	assert.Panics(t, func() { ctx.place(7, 200, 50) })
	_, err := ctx.vm.GetOrError(8)
	assert.Error(t, err)
	assert.Panics(t, func() { ctx.vm.Get(8) })
}

func TestResetRestartsVIN(t *testing.T) {
	ctx := newContext(t, alwaysSpawn())
	first := ctx.vm.Spawn(0.1)
	require.NotEmpty(t, first)
	cleared := ctx.vm.Reset()
	assert.ElementsMatch(t, first, cleared)
	assert.Zero(t, ctx.vm.Len())
	assert.Empty(t, ctx.vm.Vehicles())
	assert.Equal(t, int32(len(first)), ctx.vm.Runtime().NumCompletedTrips)
	again := ctx.vm.Spawn(0.1)
	assert.Equal(t, first, again)
}

func TestReapOutsideBoundary(t *testing.T) {
	ctx := newContext(t, config.Control{})
	inside := ctx.place(1, 1100, 10)
	// 驶出车道末端之后继续外推
	outside := ctx.place(2, 1100, ctx.lm.Get(1100).Length()+config.DefaultVehicleSpec.Length+1)
	outside.bitsSent = 96
	done := ctx.vm.Reap(input.BuildLayout(ctx.rc.Layout).Bound)
	assert.Equal(t, []int32{outside.VIN()}, done)
	assert.Equal(t, 1, ctx.vm.Len())
	assert.Equal(t, inside, ctx.vm.Get(1))
	assert.Equal(t, 96, ctx.vm.Runtime().BitsSent)
}

func TestDistanceToNextIntersection(t *testing.T) {
	ctx := newContext(t, config.Control{})
	v := ctx.place(1, 100, 100)
	assert.InDelta(t, 38, v.DistanceToNextIntersection(), 1e-9)
	assert.Equal(t, 0, v.LaneIndex())
	exit := ctx.place(2, 1100, 10)
	assert.Equal(t, math.MaxFloat64, exit.DistanceToNextIntersection())
}

func TestDriverStopsWithoutReservation(t *testing.T) {
	ctx := newContext(t, config.Control{})
	v := ctx.place(1, 100, 0)
	var requests []*message.Request
	ctx.run(300, func() {
		for _, msg := range v.PopOutbox() {
			if r, ok := msg.(*message.Request); ok {
				requests = append(requests, r)
			}
		}
		assert.LessOrEqual(t, v.S(), v.Lane().Length())
		assert.Equal(t, int32(100), v.Lane().ID())
	})
	assert.Less(t, v.V(), 0.5)
	assert.Greater(t, v.S(), v.Lane().Length()-3)

	// 没有回复时每秒重发一次
	require.Greater(t, len(requests), 10)
	assert.Equal(t, ReservationRequested, v.ReservationState())
	for i, r := range requests {
		assert.Equal(t, int32(i+1), r.RequestID)
		assert.Equal(t, int32(input.LayoutJunctionID), r.Junction)
		require.NotEmpty(t, r.Proposals)
		for _, p := range r.Proposals {
			assert.Equal(t, int32(100), p.ArrivalLaneID)
			// 最右侧车道右转到南向
			assert.Equal(t, int32(1400), p.DepartureLaneID)
			assert.LessOrEqual(t, p.ArrivalVelocity, 25.)
		}
	}
	assert.Equal(t, v.BitsSent(), func() int {
		sum := 0
		for _, r := range requests {
			sum += r.Bits()
		}
		return sum
	}())
}

func TestDriverTraversesWithReservation(t *testing.T) {
	ctx := newContext(t, config.Control{})
	v := ctx.place(1, 101, 100)
	v.v = 20
	v.Receive(&message.Confirm{
		Vin:           1,
		Junction:      input.LayoutJunctionID,
		RequestID:     1,
		ReservationID: 7,
		Proposal: message.Proposal{
			ArrivalLaneID:   101,
			DepartureLaneID: 1101,
			ArrivalTime:     ctx.clock.T + 2,
			ArrivalVelocity: 20,
		},
		ExitTime: ctx.clock.T + 4,
	})
	assert.Positive(t, v.BitsReceived())

	j := ctx.jm.Get(input.LayoutJunctionID)
	lanes := []int32{}
	var dones []*message.Done
	straddling := 0
	ctx.run(60, func() {
		if n := len(lanes); n == 0 || lanes[n-1] != v.Lane().ID() {
			lanes = append(lanes, v.Lane().ID())
		}
		// 上一步Decide时车身仍压在路口边界上则不应结束预约
		if v.Lane().ID() == 1101 && len(dones) == 0 && j.Intersects(v.Shape()) {
			straddling++
		}
		for _, msg := range v.PopOutbox() {
			if d, ok := msg.(*message.Done); ok {
				assert.False(t, j.Intersects(v.Shape()))
				dones = append(dones, d)
			}
		}
	})
	assert.Equal(t, []int32{101, 5001, 1101}, lanes)
	assert.Positive(t, straddling)
	require.Len(t, dones, 1)
	assert.Equal(t, int32(7), dones[0].ReservationID)
	assert.Equal(t, ReservationNone, v.ReservationState())
	assert.Nil(t, v.Reservation())
}

func TestDriverHoldsReservationUntilTailLeaves(t *testing.T) {
	ctx := newContext(t, config.Control{})
	// 驶出车道1101起点x=162，路口边界外扩到x=164，车长4米
	v := ctx.place(1, 1101, 3)
	v.driver.state = ReservationHeld
	v.driver.confirm = &message.Confirm{
		Vin:           1,
		Junction:      input.LayoutJunctionID,
		ReservationID: 9,
		Proposal:      message.Proposal{ArrivalLaneID: 101, DepartureLaneID: 1101, ArrivalTime: ctx.clock.T, ArrivalVelocity: 20},
	}
	j := ctx.jm.Get(input.LayoutJunctionID)
	require.True(t, j.Intersects(v.Shape()))

	for range 5 {
		v.driver.checkReservation(ctx.clock.T)
		ctx.clock.Advance(ctx.clock.DT)
	}
	assert.Empty(t, v.PopOutbox())
	assert.Equal(t, ReservationHeld, v.ReservationState())

	v.s = 6.5
	v.updatePose()
	require.False(t, j.Intersects(v.Shape()))
	v.driver.checkReservation(ctx.clock.T)
	out := v.PopOutbox()
	require.Len(t, out, 1)
	done, ok := out[0].(*message.Done)
	require.True(t, ok)
	assert.Equal(t, int32(9), done.ReservationID)
	assert.Equal(t, ReservationNone, v.ReservationState())
}

func TestDriverCancelsLateReservation(t *testing.T) {
	ctx := newContext(t, config.Control{})
	v := ctx.place(1, 100, 0)
	v.Receive(&message.Confirm{
		Vin:           1,
		Junction:      input.LayoutJunctionID,
		ReservationID: 3,
		Proposal:      message.Proposal{ArrivalLaneID: 100, DepartureLaneID: 1400, ArrivalTime: ctx.clock.T + 0.5, ArrivalVelocity: 25},
	})
	ctx.run(10, nil)
	assert.NotEqual(t, ReservationHeld, v.ReservationState())
	found := false
	for _, msg := range v.PopOutbox() {
		if d, ok := msg.(*message.Done); ok && d.ReservationID == 3 {
			found = true
		}
	}
	assert.True(t, found)
}

func TestProposals(t *testing.T) {
	ctx := newContext(t, config.Control{})
	v := ctx.place(1, 100, 100)
	v.v = 10
	ps := v.driver.proposals(0, 0.1, 100, 1400)
	require.Len(t, ps, 3)
	assert.InDelta(t, 25, ps[0].ArrivalVelocity, 1e-9)
	assert.InDelta(t, 10, ps[1].ArrivalVelocity, 1e-9)
	assert.InDelta(t, 12.5, ps[2].ArrivalVelocity, 1e-9)
	assert.InDelta(t, 10, ps[1].ArrivalTime, 1e-9)

	// 到达速度受限于可达速度sqrt(v0^2+2ad)
	ps = v.driver.proposals(0, 0.1, 38, 1400)
	assert.InDelta(t, math.Sqrt(442), ps[0].ArrivalVelocity, 1e-9)
	for _, p := range ps {
		assert.GreaterOrEqual(t, p.ArrivalTime, 0.3)
	}

	// 静止车辆：可达速度sqrt(2*a*d)，重复速度只保留一个
	v.v = 0
	ps = v.driver.proposals(0, 0.1, 1, 1400)
	require.Len(t, ps, 1)
	assert.InDelta(t, 3, ps[0].ArrivalVelocity, 1e-9)
}
