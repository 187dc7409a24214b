package admission

import (
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/tsinghua-fib-lab/aimsim/entity/junction/trafficlight"
	"github.com/tsinghua-fib-lab/aimsim/entity/message"
)

// Policy 驶入车道的可入性判断
type Policy interface {
	// now时刻提案的驶入车道是否允许进入路口
	Eligible(p message.Proposal, now float64) bool
	Name() string
}

// GridPolicy 纯预约网格策略：驶入车道由本路口管理且未被封闭即可进入
type GridPolicy struct {
	managed map[int32]struct{}
	blocked map[int32]struct{}
}

func NewGridPolicy(arrivalLaneIDs []int32) *GridPolicy {
	p := &GridPolicy{
		managed: make(map[int32]struct{}, len(arrivalLaneIDs)),
		blocked: make(map[int32]struct{}),
	}
	for _, id := range arrivalLaneIDs {
		p.managed[id] = struct{}{}
	}
	return p
}

// Block 封闭或开放驶入车道
func (p *GridPolicy) Block(laneID int32, blocked bool) {
	if blocked {
		p.blocked[laneID] = struct{}{}
	} else {
		delete(p.blocked, laneID)
	}
}

func (p *GridPolicy) Eligible(proposal message.Proposal, _ float64) bool {
	if _, ok := p.managed[proposal.ArrivalLaneID]; !ok {
		return false
	}
	_, blocked := p.blocked[proposal.ArrivalLaneID]
	return !blocked
}

func (p *GridPolicy) Name() string {
	return "grid"
}

// SignalPolicy 信号灯门控策略：驶入车道当前为绿灯才可进入
type SignalPolicy struct {
	controllers map[int32]trafficlight.ISignalController
}

func NewSignalPolicy(controllers map[int32]trafficlight.ISignalController) *SignalPolicy {
	return &SignalPolicy{controllers: controllers}
}

func (p *SignalPolicy) Eligible(proposal message.Proposal, now float64) bool {
	c, ok := p.controllers[proposal.ArrivalLaneID]
	if !ok || c == nil {
		log.Warnf("no signal controller for arrival lane %d, treat as not eligible", proposal.ArrivalLaneID)
		return false
	}
	return c.SignalAt(now) == mapv2.LightState_LIGHT_STATE_GREEN
}

func (p *SignalPolicy) Name() string {
	return "signal"
}
