// Package admission 路口管理器的准入控制：把车辆的通行请求转换为时空预约或拒绝
package admission

import (
	"github.com/tsinghua-fib-lab/aimsim/entity/junction/reservation"
	"github.com/tsinghua-fib-lab/aimsim/entity/message"
)

// PathFinder 由驶入车道与驶出车道找到路口内的行驶路径
type PathFinder func(arrivalLaneID, departureLaneID int32) (reservation.Path, bool)

// Options 准入控制参数
type Options struct {
	MaxFutureReservation float64 // 允许预约的最远未来时间（秒）
	CheckAllProposals    bool    // 为true时剔除不可入的提案，否则只检查首个提案
	Params               reservation.Params
}

// Handler 请求处理器
// 功能：按固定流程处理请求：已有预约检查、提案过滤、可入性检查、预约搜索
type Handler struct {
	junctionID int32
	policy     Policy
	grid       *reservation.Grid
	ledger     *reservation.Ledger
	paths      PathFinder
	opts       Options
}

func NewHandler(junctionID int32, policy Policy, grid *reservation.Grid, ledger *reservation.Ledger, paths PathFinder, opts Options) *Handler {
	return &Handler{
		junctionID: junctionID,
		policy:     policy,
		grid:       grid,
		ledger:     ledger,
		paths:      paths,
		opts:       opts,
	}
}

func (h *Handler) Policy() Policy {
	return h.policy
}

func (h *Handler) Ledger() *reservation.Ledger {
	return h.ledger
}

// ProcessRequest 处理一个通行请求
// 参数：req-请求，now-路口当前时间
// 返回：Confirm或Reject
// 算法说明：
// 1. 车辆已持有预约则直接拒绝（CONFIRMED_ANOTHER_REQUEST），不做任何过滤
// 2. 过滤掉到达时间已过或过远的提案，全部被过滤时以过滤原因拒绝
// 3. 检查首个提案的驶入车道可入性（CheckAllProposals时剔除所有不可入提案）
// 4. 按偏好顺序搜索第一个无冲突的时空占用并提交
func (h *Handler) ProcessRequest(req *message.Request, now float64) message.I2V {
	if h.ledger.Has(req.Vin) {
		return h.reject(req, message.CONFIRMED_ANOTHER_REQUEST)
	}
	proposals, reason := FilterProposals(req.Proposals, now, h.opts.MaxFutureReservation)
	if len(proposals) == 0 {
		return h.reject(req, reason)
	}
	if h.opts.CheckAllProposals {
		eligible := make([]message.Proposal, 0, len(proposals))
		for _, p := range proposals {
			if h.policy.Eligible(p, now) {
				eligible = append(eligible, p)
			}
		}
		proposals = eligible
	} else if !h.policy.Eligible(proposals[0], now) {
		proposals = nil
	}
	if len(proposals) == 0 {
		return h.reject(req, message.NO_CLEAR_PATH)
	}
	param := h.findReserveParam(req, proposals)
	if param == nil {
		return h.reject(req, message.NO_CLEAR_PATH)
	}
	id, ok := h.ledger.Reserve(param)
	if !ok {
		log.Errorf("junction %d: reserve failed for vin %d after a successful search", h.junctionID, req.Vin)
		return h.reject(req, message.NO_CLEAR_PATH)
	}
	return &message.Confirm{
		Vin:           req.Vin,
		Junction:      h.junctionID,
		RequestID:     req.RequestID,
		ReservationID: id,
		Proposal:      param.Proposal,
		ExitTime:      param.ExitTime,
	}
}

// findReserveParam 按顺序尝试提案，返回第一个时空格全部空闲的预约参数，没有时为nil
func (h *Handler) findReserveParam(req *message.Request, proposals []message.Proposal) *reservation.ReserveParam {
	for _, p := range proposals {
		path, ok := h.paths(p.ArrivalLaneID, p.DepartureLaneID)
		if !ok {
			log.Debugf("junction %d: no path from lane %d to lane %d", h.junctionID, p.ArrivalLaneID, p.DepartureLaneID)
			continue
		}
		cells, exitTime := h.grid.Footprint(path, p.ArrivalTime, p.ArrivalVelocity, req.Length, req.Width, h.opts.Params)
		if h.ledger.IsFree(cells) {
			return &reservation.ReserveParam{
				Vin:      req.Vin,
				Proposal: p,
				Cells:    cells,
				ExitTime: exitTime,
			}
		}
	}
	return nil
}

func (h *Handler) reject(req *message.Request, reason message.Reason) *message.Reject {
	return &message.Reject{
		Vin:       req.Vin,
		Junction:  h.junctionID,
		RequestID: req.RequestID,
		Reason:    reason,
	}
}

// FilterProposals 过滤时间上不可行的提案
// 返回：保留的提案（保持原顺序），以及最后一个被过滤提案的原因
func FilterProposals(proposals []message.Proposal, now, maxFuture float64) ([]message.Proposal, message.Reason) {
	kept := make([]message.Proposal, 0, len(proposals))
	reason := message.NO_CLEAR_PATH
	for _, p := range proposals {
		switch {
		case p.ArrivalTime < now:
			reason = message.ARRIVAL_TIME_TOO_LATE
		case p.ArrivalTime > now+maxFuture:
			reason = message.ARRIVAL_TIME_TOO_LARGE
		default:
			kept = append(kept, p)
		}
	}
	return kept, reason
}
