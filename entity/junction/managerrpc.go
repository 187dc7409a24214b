package junction

import (
	"context"
	"errors"
	"net/http"

	"connectrpc.com/connect"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	mapv2connect "git.fiblab.net/sim/protos/v2/go/city/map/v2/mapv2connect"
	"git.fiblab.net/sim/syncer/v3"
)

var (
	errNoJunction   = errors.New("junction id does not exist")
	errBadRemaining = errors.New("invalid remaining time")
)

// Register 将Junction管理器注册为信号灯RPC服务
func (m *JunctionManager) Register(sidecar *syncer.Sidecar) {
	sidecar.Register(
		mapv2connect.TrafficLightServiceName,
		func(opts ...connect.HandlerOption) (pattern string, handler http.Handler) {
			return mapv2connect.NewTrafficLightServiceHandler(m, opts...)
		},
	)
}

func (m *JunctionManager) junctionWithTrafficLight(id int32) (*Junction, error) {
	j, ok := m.data[id]
	if !ok {
		return nil, connect.NewError(connect.CodeInvalidArgument, errNoJunction)
	}
	if j.trafficLight == nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, ErrDisabledTrafficLight)
	}
	return j, nil
}

// GetTrafficLight RPC接口：获取指定Junction的信号灯状态
// 返回：当前程序、相位索引和剩余时间，没有程序时为空响应
func (m *JunctionManager) GetTrafficLight(
	ctx context.Context, in *connect.Request[mapv2.GetTrafficLightRequest],
) (*connect.Response[mapv2.GetTrafficLightResponse], error) {
	j, err := m.junctionWithTrafficLight(in.Msg.JunctionId)
	if err != nil {
		return nil, err
	}
	tl := j.trafficLight.Get()
	if tl == nil {
		return connect.NewResponse(&mapv2.GetTrafficLightResponse{}), nil
	}
	index, remaining := j.trafficLight.PhaseAt(m.ctx.Clock().T)
	return connect.NewResponse(&mapv2.GetTrafficLightResponse{
		TrafficLight:  tl,
		PhaseIndex:    index,
		TimeRemaining: remaining,
	}), nil
}

// SetTrafficLight RPC接口：设置指定Junction的信号灯程序
// 说明：相位为空时取消信号灯程序（全绿灯），否则设置程序并调整到指定相位
func (m *JunctionManager) SetTrafficLight(
	ctx context.Context, in *connect.Request[mapv2.SetTrafficLightRequest],
) (*connect.Response[mapv2.SetTrafficLightResponse], error) {
	req := in.Msg
	if req.TrafficLight == nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("traffic light is required"))
	}
	j, err := m.junctionWithTrafficLight(req.TrafficLight.JunctionId)
	if err != nil {
		return nil, err
	}
	if len(req.TrafficLight.Phases) == 0 {
		if err := j.unsetTrafficLight(); err != nil {
			return nil, connect.NewError(connect.CodeInvalidArgument, err)
		}
		return connect.NewResponse(&mapv2.SetTrafficLightResponse{}), nil
	}
	if req.TimeRemaining < 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errBadRemaining)
	}
	if err := j.SetTrafficLight(req.TrafficLight); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	if req.TimeRemaining > 0 {
		if err := j.setPhase(req.PhaseIndex, req.TimeRemaining); err != nil {
			return nil, connect.NewError(connect.CodeInvalidArgument, err)
		}
	}
	return connect.NewResponse(&mapv2.SetTrafficLightResponse{}), nil
}

// SetTrafficLightPhase RPC接口：设置指定Junction的当前相位和剩余时间，不改变信号灯程序
func (m *JunctionManager) SetTrafficLightPhase(
	ctx context.Context, in *connect.Request[mapv2.SetTrafficLightPhaseRequest],
) (*connect.Response[mapv2.SetTrafficLightPhaseResponse], error) {
	req := in.Msg
	j, err := m.junctionWithTrafficLight(req.JunctionId)
	if err != nil {
		return nil, err
	}
	if req.TimeRemaining < 0 {
		return nil, connect.NewError(connect.CodeInvalidArgument, errBadRemaining)
	}
	if err := j.setPhase(req.PhaseIndex, req.TimeRemaining); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	return connect.NewResponse(&mapv2.SetTrafficLightPhaseResponse{}), nil
}

// SetTrafficLightStatus RPC接口：设置指定Junction的信号灯开关状态
// 说明：true表示正常工作，false表示失效（全绿灯）
func (m *JunctionManager) SetTrafficLightStatus(
	ctx context.Context, in *connect.Request[mapv2.SetTrafficLightStatusRequest],
) (*connect.Response[mapv2.SetTrafficLightStatusResponse], error) {
	req := in.Msg
	j, err := m.junctionWithTrafficLight(req.JunctionId)
	if err != nil {
		return nil, err
	}
	if err := j.setStatus(req.Ok); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	return connect.NewResponse(&mapv2.SetTrafficLightStatusResponse{}), nil
}
