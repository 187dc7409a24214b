package comm_test

import (
	"errors"
	"fmt"
	"testing"

	"git.fiblab.net/general/common/v2/geometry"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/tsinghua-fib-lab/aimsim/entity"
	"github.com/tsinghua-fib-lab/aimsim/entity/comm"
	"github.com/tsinghua-fib-lab/aimsim/entity/message"
)

type fakeVehicle struct {
	entity.IVehicle
	vin    int32
	pos    geometry.Point
	power  float64
	outbox []message.V2I
	inbox  []message.I2V
}

func (f *fakeVehicle) VIN() int32 { return f.vin }
func (f *fakeVehicle) Position() geometry.Point { return f.pos }
func (f *fakeVehicle) TransmissionPower() float64 { return f.power }
func (f *fakeVehicle) Receive(msg message.I2V) { f.inbox = append(f.inbox, msg) }
func (f *fakeVehicle) PopOutbox() []message.V2I {
	out := f.outbox
	f.outbox = nil
	return out
}

type fakeJunction struct {
	id     int32
	power  float64
	inbox  []message.V2I
	outbox []message.I2V
}

func (f *fakeJunction) ID() int32 { return f.id }
func (f *fakeJunction) Lanes() []entity.ILane { return nil }
func (f *fakeJunction) Centroid() geometry.Point { return geometry.Point{} }
func (f *fakeJunction) Boundary() orb.Ring { return nil }
func (f *fakeJunction) Intersects(orb.Ring) bool { return false }
func (f *fakeJunction) ConnectorLane(int32, int32) (entity.ILane, bool) { return nil, false }
func (f *fakeJunction) DepartureLane(entity.ILane, entity.IRoad) (entity.ILane, bool) {
	return nil, false
}
func (f *fakeJunction) Signal(int32) (mapv2.LightState, float64) {
	return mapv2.LightState_LIGHT_STATE_GREEN, 0
}
func (f *fakeJunction) TransmissionPower() float64 { return f.power }
func (f *fakeJunction) Receive(msg message.V2I) { f.inbox = append(f.inbox, msg) }
func (f *fakeJunction) PopOutbox() []message.I2V {
	out := f.outbox
	f.outbox = nil
	return out
}
func (f *fakeJunction) HasReservation(int32) bool { return false }
func (f *fakeJunction) VehicleCompleted(int32) {}

func TestTransmitInclusive(t *testing.T) {
	assert.True(t, comm.Transmit(100, 100))
	assert.True(t, comm.Transmit(99.9, 100))
	assert.False(t, comm.Transmit(100.0001, 100))
}

func TestDeliverAtExactPower(t *testing.T) {
	j := &fakeJunction{id: 1, power: 50}
	lookupJ := func(id int32) (entity.IJunction, error) {
		if id == j.id {
			return j, nil
		}
		return nil, fmt.Errorf("no junction %d", id)
	}
	// (30, 40)到原点距离正好50
	onEdge := &fakeVehicle{vin: 1, pos: geometry.Point{X: 30, Y: 40}, power: 50}
	far := &fakeVehicle{vin: 2, pos: geometry.Point{X: 30, Y: 41}, power: 50}
	lost := &fakeVehicle{vin: 3, pos: geometry.Point{}, power: 50}
	onEdge.outbox = []message.V2I{&message.Request{Vin: 1, Junction: 1}}
	far.outbox = []message.V2I{&message.Request{Vin: 2, Junction: 1}}
	lost.outbox = []message.V2I{&message.Done{Vin: 3, Junction: 7}}

	stats := comm.DeliverV2I([]entity.IVehicle{onEdge, far, lost}, lookupJ)
	assert.Equal(t, comm.Stats{Delivered: 1, Dropped: 2}, stats)
	assert.Len(t, j.inbox, 1)
	assert.Equal(t, int32(1), j.inbox[0].VIN())
	assert.Empty(t, far.outbox)

	vehicles := map[int32]*fakeVehicle{1: onEdge, 2: far}
	lookupV := func(vin int32) (entity.IVehicle, error) {
		if v, ok := vehicles[vin]; ok {
			return v, nil
		}
		return nil, errors.New("gone")
	}
	j.outbox = []message.I2V{
		&message.Reject{Vin: 1, Junction: 1, Reason: message.NO_CLEAR_PATH},
		&message.Reject{Vin: 2, Junction: 1, Reason: message.NO_CLEAR_PATH},
		&message.Reject{Vin: 9, Junction: 1, Reason: message.NO_CLEAR_PATH},
	}
	stats = comm.DeliverI2V([]entity.IJunction{j}, lookupV)
	assert.Equal(t, comm.Stats{Delivered: 1, Dropped: 2}, stats)
	assert.Len(t, onEdge.inbox, 1)
	assert.Empty(t, far.inbox)
}
