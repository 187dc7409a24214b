package dcl_test

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/tsinghua-fib-lab/aimsim/entity/dcl"
)

func TestLineIntersect(t *testing.T) {
	l := dcl.NewLine(1, "gate", orb.Point{10, 0}, orb.Point{10, 10}, true)
	assert.False(t, l.Intersect(1, 0.1, orb.Point{0, 5}, orb.Point{9, 5}))
	assert.True(t, l.Intersect(1, 0.2, orb.Point{9, 5}, orb.Point{11, 5}))
	// 同一车辆只记录一次
	assert.False(t, l.Intersect(1, 0.3, orb.Point{11, 5}, orb.Point{9, 5}))
	// 端点接触也算穿越
	assert.True(t, l.Intersect(2, 0.4, orb.Point{8, 5}, orb.Point{10, 5}))
	assert.Equal(t, 2, l.Count())
	assert.Equal(t, []dcl.Record{{VIN: 1, Time: 0.2}, {VIN: 2, Time: 0.4}}, l.Records())
}

func TestLineRepeat(t *testing.T) {
	l := dcl.NewLine(1, "gate", orb.Point{0, 0}, orb.Point{0, 10}, false)
	l.Intersect(1, 0, orb.Point{-1, 1}, orb.Point{1, 1})
	l.Intersect(1, 1, orb.Point{1, 1}, orb.Point{-1, 1})
	assert.Equal(t, 2, l.Count())
}

func TestManagerSummary(t *testing.T) {
	m := dcl.NewManager()
	m.Add(dcl.NewLine(1, "a", orb.Point{0, 0}, orb.Point{0, 10}, true))
	m.Add(dcl.NewLine(2, "b", orb.Point{5, 0}, orb.Point{5, 10}, true))
	m.Observe(1, 0, orb.Point{-1, 1}, orb.Point{1, 1})
	m.Observe(2, 0, orb.Point{-1, 2}, orb.Point{6, 2})
	assert.Equal(t, map[string]int{"a": 2, "b": 1}, m.Summary())
}
