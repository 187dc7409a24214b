package clock

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
	clockv1 "git.fiblab.net/sim/protos/v2/go/city/clock/v1"
	"git.fiblab.net/sim/protos/v2/go/city/clock/v1/clockv1connect"
	"git.fiblab.net/sim/syncer/v3"
)

// Register 将ClockService注册到sidecar
// 说明：Now只读取步边界上发布的时间，不需要等待Step持有的锁
func (c *Clock) Register(sidecar *syncer.Sidecar) {
	sidecar.Register(
		clockv1connect.ClockServiceName,
		func(opts ...connect.HandlerOption) (string, http.Handler) {
			return clockv1connect.NewClockServiceHandler(c, opts...)
		},
		syncer.WithNoLock(),
	)
}

// Now 返回最近一次步边界上的仿真时间（秒）
func (c *Clock) Now(_ context.Context, _ *connect.Request[clockv1.NowRequest]) (*connect.Response[clockv1.NowResponse], error) {
	t := c.Published()
	log.Tracef("now: %.2f", t)
	return connect.NewResponse(&clockv1.NowResponse{T: t}), nil
}
