package task

import (
	"flag"
	"sort"
)

const (
	SelfName = "aimsim" // 本程序在模拟任务集群中的名字
)

var (
	heartBeatInterval = flag.Int("log.heartbeat_interval", 100, "心跳日志间隔步数")
)

// Summary 运行汇总
type Summary struct {
	Steps             int32
	Time              float64
	NumSpawned        int32
	NumCompletedTrips int32
	NumActive         int
	BitsSent          int            // 已完成车辆的发送比特数
	BitsReceived      int            // 已完成车辆的接收比特数
	Delivered         int            // 送达的消息数（V2I+I2V）
	Dropped           int            // 丢弃的消息数（V2I+I2V）
	Requests          int            // 各路口收到的请求数
	Confirms          int            // 各路口发出的确认数
	Rejects           map[string]int // 按原因统计的拒绝数
	Crossings         map[string]int // 各数据采集线的穿越次数
}

// heartbeat 心跳日志
func (ctx *Context) heartbeat() {
	if ctx.clock.InternalStep%int32(*heartBeatInterval) != 0 {
		return
	}
	hour, minute, second := ctx.clock.GetHourMinuteSecond()
	log.Infof(
		"STEP: %d(%d:%d:%.2f) vehicles: %d",
		ctx.clock.InternalStep,
		hour, minute, second,
		len(ctx.vehicleManager.All()),
	)
}

// Summary 汇总当前统计
func (ctx *Context) Summary() Summary {
	rt := ctx.vehicleManager.Runtime()
	s := Summary{
		Steps:             ctx.clock.InternalStep - ctx.clock.START_STEP,
		Time:              ctx.clock.T,
		NumSpawned:        rt.NumSpawned,
		NumCompletedTrips: rt.NumCompletedTrips,
		NumActive:         len(ctx.vehicleManager.All()),
		BitsSent:          rt.BitsSent,
		BitsReceived:      rt.BitsReceived,
		Delivered:         ctx.stats.V2I.Delivered + ctx.stats.I2V.Delivered,
		Dropped:           ctx.stats.V2I.Dropped + ctx.stats.I2V.Dropped,
		Rejects:           make(map[string]int),
		Crossings:         ctx.dclManager.Summary(),
	}
	for _, j := range ctx.junctionManager.All() {
		js := j.Stats()
		s.Requests += js.Requests
		s.Confirms += js.Confirms
		for reason, n := range js.Rejects {
			s.Rejects[reason.String()] += n
		}
	}
	return s
}

// LogSummary 输出运行汇总
func (ctx *Context) LogSummary() {
	s := ctx.Summary()
	log.Infof("steps: %d, time: %.2f", s.Steps, s.Time)
	log.Infof("vehicles: spawned %d, completed %d, active %d", s.NumSpawned, s.NumCompletedTrips, s.NumActive)
	log.Infof("messages: delivered %d, dropped %d, bits sent %d, bits received %d",
		s.Delivered, s.Dropped, s.BitsSent, s.BitsReceived)
	log.Infof("admission: requests %d, confirms %d, rejects %v", s.Requests, s.Confirms, s.Rejects)
	names := make([]string, 0, len(s.Crossings))
	for name := range s.Crossings {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		log.Infof("line %s: %d crossings", name, s.Crossings[name])
	}
}

// Run 在sidecar下运行
// 说明：每步先通知syncer准备完成，再执行Step，最后由syncer决定是否继续
func (ctx *Context) Run() {
	// 初始化
	ctx.Init()
	// init syncer
	ctx.sidecar.Step(false)
	for {
		ctx.heartbeat()
		// 通知准备阶段完成
		log.Debugf("step %d: prepare complete and call NotifyStepReady", ctx.clock.InternalStep)
		ctx.sidecar.NotifyStepReady()
		ctx.Step(ctx.clock.DT)
		log.Debugf("step %d: update complete", ctx.clock.InternalStep)
		close := false
		if ctx.clock.Finished() {
			close = ctx.sidecar.Step(true)
		} else {
			close = ctx.sidecar.Step(false)
		}
		if close || ctx.closed.Load() {
			break
		}
	}
	log.Infof("engine complete")
	ctx.LogSummary()
	ctx.Close()
}

// RunOffline 不依赖sidecar运行control.step.total步
func (ctx *Context) RunOffline() Summary {
	ctx.Init()
	for !ctx.clock.Finished() && !ctx.closed.Load() {
		ctx.heartbeat()
		ctx.Step(ctx.clock.DT)
	}
	log.Infof("engine complete")
	ctx.LogSummary()
	s := ctx.Summary()
	ctx.Close()
	return s
}
