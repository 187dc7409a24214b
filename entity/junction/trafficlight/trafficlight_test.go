package trafficlight_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"git.fiblab.net/general/common/v2/mathutil"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/aimsim/entity"
	"github.com/tsinghua-fib-lab/aimsim/entity/junction/trafficlight"
)

const (
	red    = mapv2.LightState_LIGHT_STATE_RED
	yellow = mapv2.LightState_LIGHT_STATE_YELLOW
	green  = mapv2.LightState_LIGHT_STATE_GREEN
)

// 两个状态：0为东向驶入，1为北向驶入
func twoPhaseProgram(junctionID int32) *mapv2.TrafficLight {
	return &mapv2.TrafficLight{
		JunctionId: junctionID,
		Phases: []*mapv2.Phase{
			{Duration: 10, States: []mapv2.LightState{green, red}},
			{Duration: 2, States: []mapv2.LightState{yellow, red}},
			{Duration: 10, States: []mapv2.LightState{red, green}},
			{Duration: 2, States: []mapv2.LightState{red, yellow}},
		},
	}
}

func TestCyclicTiming(t *testing.T) {
	p := trafficlight.NewCyclicProgram(0, 2)
	east, north := p.Lane(0), p.Lane(1)
	// 没有程序时全绿
	assert.Equal(t, green, east.SignalAt(5))

	require.NoError(t, p.Set(twoPhaseProgram(0), 0))
	state, remaining := east.Lookup(3)
	assert.Equal(t, green, state)
	assert.InDelta(t, 7, remaining, 1e-9)
	assert.Equal(t, yellow, east.SignalAt(11))
	assert.Equal(t, red, east.SignalAt(12))
	// 北向红灯持续到第12秒
	state, remaining = north.Lookup(0)
	assert.Equal(t, red, state)
	assert.InDelta(t, 12, remaining, 1e-9)
	// 周期循环
	assert.Equal(t, green, east.SignalAt(24+1))
	assert.Equal(t, green, north.SignalAt(24+13))

	i, remaining := p.PhaseAt(13)
	assert.EqualValues(t, 2, i)
	assert.InDelta(t, 9, remaining, 1e-9)
}

func TestCyclicInitialPhaseByJunctionID(t *testing.T) {
	p := trafficlight.NewCyclicProgram(2, 2)
	require.NoError(t, p.Set(twoPhaseProgram(2), 100))
	i, remaining := p.PhaseAt(100)
	assert.EqualValues(t, 2, i)
	assert.InDelta(t, 10, remaining, 1e-9)
	assert.Equal(t, green, p.Lane(1).SignalAt(100))
}

func TestCyclicSetPhaseAndOk(t *testing.T) {
	p := trafficlight.NewCyclicProgram(0, 2)
	assert.ErrorIs(t, p.SetPhase(0, 1, 1), trafficlight.ErrNoProgram)
	require.NoError(t, p.Set(twoPhaseProgram(0), 0))

	require.NoError(t, p.SetPhase(50, 2, 4))
	i, remaining := p.PhaseAt(50)
	assert.EqualValues(t, 2, i)
	assert.InDelta(t, 4, remaining, 1e-9)
	assert.Equal(t, yellow, p.Lane(1).SignalAt(54.5))

	assert.Error(t, p.SetPhase(50, 4, 1))
	assert.Error(t, p.SetPhase(50, 1, 3))

	p.SetOk(false)
	state, remaining := p.Lane(0).Lookup(51)
	assert.Equal(t, green, state)
	assert.Equal(t, mathutil.INF, remaining)
	p.SetOk(true)
	assert.Equal(t, red, p.Lane(0).SignalAt(51))
}

func TestCyclicSetRejectsBadProgram(t *testing.T) {
	p := trafficlight.NewCyclicProgram(0, 2)
	assert.Error(t, p.Set(twoPhaseProgram(1), 0))
	assert.Error(t, p.Set(&mapv2.TrafficLight{JunctionId: 0}, 0))
	assert.Error(t, p.Set(&mapv2.TrafficLight{
		JunctionId: 0,
		Phases:     []*mapv2.Phase{{Duration: 1, States: []mapv2.LightState{green}}},
	}, 0))
	assert.Nil(t, p.Get())
}

func TestParsePhaseRecord(t *testing.T) {
	rec, err := trafficlight.ParsePhaseRecord([]byte("42.5\nGGGRRRYYYRRG\n"))
	require.NoError(t, err)
	assert.Equal(t, 42.5, rec.Timestamp)
	assert.Equal(t, green, rec.States[0])
	assert.Equal(t, red, rec.States[3])
	assert.Equal(t, yellow, rec.States[6])
	assert.Equal(t, green, rec.States[11])

	for _, bad := range []string{"", "abc\nGGGRRRYYYRRG", "1\nGGG", "1\nGGGRRRYYYRRX"} {
		_, err := trafficlight.ParsePhaseRecord([]byte(bad))
		assert.True(t, errors.Is(err, trafficlight.ErrMalformedRecord), bad)
	}
}

func TestPhaseFileKeepsPreviousRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "phase.txt")
	f := trafficlight.NewPhaseFile(path, 0.01)
	northLeft := f.Lane(entity.DirectionN, 2)
	westRight := f.Lane(entity.DirectionW, 0)

	// 文件不存在时为红灯
	assert.False(t, f.Poll())
	assert.Equal(t, red, northLeft.SignalAt(0))

	require.NoError(t, os.WriteFile(path, []byte("30\nRRRGRRRRGRRR\n"), 0o644))
	assert.True(t, f.Poll())
	state, remaining := northLeft.Lookup(10)
	assert.Equal(t, green, state)
	assert.InDelta(t, 20, remaining, 1e-9)
	assert.Equal(t, green, westRight.SignalAt(10))
	_, remaining = northLeft.Lookup(40)
	assert.Equal(t, 0.0, remaining)

	require.NoError(t, os.WriteFile(path, []byte("oops\nRRRRRRRRRRRR\n"), 0o644))
	assert.False(t, f.Poll())
	assert.Equal(t, green, northLeft.SignalAt(10))
	assert.Equal(t, 30.0, f.Record().Timestamp)

	// 超过2的车道下标按2处理
	assert.Equal(t, green, f.Lane(entity.DirectionN, 5).SignalAt(10))
}

func TestPhaseFileBackgroundPoll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "phase.txt")
	require.NoError(t, os.WriteFile(path, []byte("5\nRRRRRRRRRRRR\n"), 0o644))
	f := trafficlight.NewPhaseFile(path, 0.01)
	f.Start(context.Background())
	defer f.Close()
	lane := f.Lane(entity.DirectionE, 0)
	assert.Equal(t, red, lane.SignalAt(0))

	require.NoError(t, os.WriteFile(path, []byte("9\nGRRRRRRRRRRR\n"), 0o644))
	assert.Eventually(t, func() bool {
		return lane.SignalAt(0) == green
	}, 2*time.Second, 10*time.Millisecond)
}

func TestParsePhaseCSV(t *testing.T) {
	dirs := []entity.Direction{entity.DirectionE, entity.DirectionN, entity.DirectionW, entity.DirectionS}
	tl, err := trafficlight.ParsePhaseCSV(strings.NewReader("roads,green,yellow,red\nNS,30,3,2\n\nEW,20,3,0\n"), 7, dirs)
	require.NoError(t, err)
	assert.EqualValues(t, 7, tl.JunctionId)
	require.Len(t, tl.Phases, 5)
	assert.Equal(t, 30.0, tl.Phases[0].Duration)
	assert.Equal(t, []mapv2.LightState{red, green, red, green}, tl.Phases[0].States)
	assert.Equal(t, []mapv2.LightState{red, yellow, red, yellow}, tl.Phases[1].States)
	assert.Equal(t, []mapv2.LightState{red, red, red, red}, tl.Phases[2].States)
	assert.Equal(t, []mapv2.LightState{green, red, green, red}, tl.Phases[3].States)
	assert.Equal(t, 3.0, tl.Phases[4].Duration)

	_, err = trafficlight.ParsePhaseCSV(strings.NewReader("NS,30,3,2\nXY,1,1,1\n"), 7, dirs)
	assert.Error(t, err)
	_, err = trafficlight.ParsePhaseCSV(strings.NewReader("NS,30,3\n"), 7, dirs)
	assert.Error(t, err)
	_, err = trafficlight.ParsePhaseCSV(strings.NewReader(""), 7, dirs)
	assert.Error(t, err)

	tl, err = trafficlight.ParsePhaseCSV(strings.NewReader(trafficlight.DefaultPhaseCSV), 7, dirs)
	require.NoError(t, err)
	assert.Len(t, tl.Phases, 6)
}

func TestMaxPressureSwitchesToLoadedPhase(t *testing.T) {
	mp := trafficlight.NewMaxPressure(0, 2, twoPhaseProgram(0))
	require.Equal(t, 2, mp.Phases())
	east, north := mp.Lane(0), mp.Lane(1)
	assert.Equal(t, green, east.SignalAt(0))
	assert.Equal(t, red, north.SignalAt(0))

	now := 0.
	step := func(pressure []float64) {
		now += 1
		mp.Update(now, 1, pressure)
	}
	// 北向压力更大，相位结束后经过黄灯、全红切换到北向
	for range 15 {
		step([]float64{0, 10})
	}
	assert.Equal(t, yellow, east.SignalAt(now))
	for range 3 {
		step([]float64{0, 10})
	}
	assert.Equal(t, red, east.SignalAt(now))
	assert.Equal(t, red, north.SignalAt(now))
	for range 3 {
		step([]float64{0, 10})
	}
	assert.Equal(t, green, north.SignalAt(now))
	assert.Equal(t, red, east.SignalAt(now))

	assert.ErrorIs(t, mp.Set(twoPhaseProgram(0), now), trafficlight.ErrMaxPressure)
	mp.SetOk(false)
	step([]float64{0, 10})
	assert.Equal(t, green, east.SignalAt(now))
}

func TestMaxPressureSinglePhaseIsGreen(t *testing.T) {
	mp := trafficlight.NewMaxPressure(0, 2, nil)
	state, remaining := mp.Lane(1).Lookup(0)
	assert.Equal(t, green, state)
	assert.Equal(t, mathutil.INF, remaining)
}
