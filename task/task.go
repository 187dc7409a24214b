package task

import (
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"git.fiblab.net/sim/syncer/v3"
	"github.com/paulmach/orb"
	"github.com/tsinghua-fib-lab/aimsim/clock"
	"github.com/tsinghua-fib-lab/aimsim/entity"
	"github.com/tsinghua-fib-lab/aimsim/entity/comm"
	"github.com/tsinghua-fib-lab/aimsim/entity/dcl"
	"github.com/tsinghua-fib-lab/aimsim/entity/junction"
	"github.com/tsinghua-fib-lab/aimsim/entity/lane"
	"github.com/tsinghua-fib-lab/aimsim/entity/road"
	"github.com/tsinghua-fib-lab/aimsim/entity/vehicle"
	"github.com/tsinghua-fib-lab/aimsim/utils/config"
	"github.com/tsinghua-fib-lab/aimsim/utils/input"
)

// WaitForServerReady 等待服务器就绪
// 功能：通过HTTP请求检查服务器是否已经启动并可以响应
// 参数：addr-服务器地址，retryCount-重试次数，interval-重试间隔
// 返回：错误信息，如果服务器就绪则返回nil
func WaitForServerReady(addr string, retryCount int, interval time.Duration) error {
	client := &http.Client{
		Timeout: interval,
	}
	for range retryCount {
		resp, err := client.Get(addr)
		if err == nil {
			resp.Body.Close()
			return nil
		}
		time.Sleep(interval)
	}
	return fmt.Errorf("server `%v` did not become ready after %d retries", addr, retryCount)
}

// Stats 运行统计
type Stats struct {
	V2I comm.Stats // 车辆到路口的投递统计
	I2V comm.Stats // 路口到车辆的投递统计
}

// Context 仿真任务上下文
// 功能：包含一次仿真任务的所有变量和状态，不使用全局变量
// 说明：各管理器通过entity.ITaskContext访问其他模块
type Context struct {

	// 任务名
	job string
	// 关闭指令
	closed atomic.Bool

	// 时钟
	clock *clock.Clock

	// 辅助程序，处理与syncer、其他服务的交互；离线运行时为nil
	sidecar *syncer.Sidecar
	// sidecar close channel
	sidecarCloseCh chan struct{}
	// 是否由本任务启动sidecar服务
	serving bool
	// 缓存文件夹
	cacheDir string

	// Lane管理器
	laneManager *lane.LaneManager
	// Road管理器
	roadManager *road.RoadManager
	// Junction管理器
	junctionManager *junction.JunctionManager
	// Vehicle管理器
	vehicleManager *vehicle.VehicleManager
	// 数据采集线
	dclManager *dcl.Manager

	// 运行时配置文件
	runtimeConfig *config.RuntimeConfig

	// 用于初始化的输入
	initRes *input.Input
	// 地图边界，外廓与之不相交的车辆被回收
	bound orb.Bound

	// 最近一次构建的车道占用索引
	index *lane.OccupancyIndex
	// 逐车状态输出，未配置时为nil
	status *StatusWriter

	stats Stats
}

// NewContext 创建新的仿真任务上下文
// 参数：
//   - job: 任务名称
//   - cacheDir: 缓存目录
//   - rc: 已填充默认值的运行时配置
//   - sidecar: 外部sidecar实例，离线运行时为nil
//   - startSidecarServe: 是否启动sidecar服务
//
// 返回：创建完成的Context实例，需调用Init完成初始化
// 算法说明：
// 1. 初始化时钟，加载地图数据
// 2. 创建车道、道路、路口、车辆管理器与数据采集线
// 3. 注册RPC服务到sidecar，按需启动sidecar服务
func NewContext(
	job string,
	cacheDir string,
	rc *config.RuntimeConfig,
	sidecar *syncer.Sidecar,
	startSidecarServe bool,
) *Context {
	ctx := &Context{
		job:            job,
		cacheDir:       cacheDir,
		sidecar:        sidecar,
		sidecarCloseCh: make(chan struct{}),
		runtimeConfig:  rc,
	}
	ctx.clock = clock.New(rc.C.Step)

	// 下载所有模拟器启动所需的数据
	ctx.initRes = input.Init(rc.All, rc.Layout, ctx.cacheDir)
	ctx.bound = ctx.initRes.Map.Bound

	// 新建各类模拟对象
	ctx.laneManager = lane.NewManager()
	ctx.roadManager = road.NewManager()
	ctx.junctionManager = junction.NewManager(ctx)
	ctx.vehicleManager = vehicle.NewManager(ctx)
	ctx.dclManager = dcl.NewManager()

	if ctx.sidecar != nil {
		ctx.clock.Register(ctx.sidecar)
		ctx.junctionManager.Register(ctx.sidecar)

		// sidecar协程，用于提供RPC服务
		if startSidecarServe {
			ctx.serving = true
			go func() {
				err := ctx.sidecar.Serve()
				if err != nil {
					log.Panicf("failed to serve: %v", err)
				}
				ctx.sidecarCloseCh <- struct{}{}
			}()
		}
	}

	return ctx
}

func (ctx *Context) Job() string {
	return ctx.job
}

func (ctx *Context) GetInput() *input.Input {
	return ctx.initRes
}

func (ctx *Context) Clock() *clock.Clock {
	return ctx.clock
}

func (ctx *Context) LaneManager() entity.ILaneManager {
	return ctx.laneManager
}

func (ctx *Context) RoadManager() entity.IRoadManager {
	return ctx.roadManager
}

func (ctx *Context) JunctionManager() entity.IJunctionManager {
	return ctx.junctionManager
}

func (ctx *Context) VehicleManager() entity.IVehicleManager {
	return ctx.vehicleManager
}

func (ctx *Context) RuntimeConfig() *config.RuntimeConfig {
	return ctx.runtimeConfig
}

// Vehicles 车辆管理器（具体类型）
func (ctx *Context) Vehicles() *vehicle.VehicleManager {
	return ctx.vehicleManager
}

// Junctions 路口管理器（具体类型）
func (ctx *Context) Junctions() *junction.JunctionManager {
	return ctx.junctionManager
}

// DataCollectionLines 数据采集线管理器
func (ctx *Context) DataCollectionLines() *dcl.Manager {
	return ctx.dclManager
}

// Stats 消息投递统计
func (ctx *Context) Stats() Stats {
	return ctx.stats
}

// Init 初始化
// 说明：初始化顺序为车道、道路、路口，再补全依赖路口的车道与道路关系，最后建立生成点与采集线
func (ctx *Context) Init() {
	ctx.clock.Init()

	mapData := ctx.initRes.Map
	log.Infof("Lane: %v", len(mapData.Lanes))
	log.Infof("Road: %v", len(mapData.Roads))
	log.Infof("Junction: %v", len(mapData.Junctions))

	ctx.laneManager.Init(mapData.Lanes) // 先完成lane的所有初始化
	ctx.roadManager.Init(mapData.Roads, ctx.laneManager)
	ctx.junctionManager.Init(mapData.Junctions, ctx.laneManager)
	// lane的NextLane与road的前驱后继路口依赖junction
	ctx.laneManager.InitAfterJunction()
	ctx.roadManager.InitAfterJunction()

	ctx.vehicleManager.Init(ctx.roadManager)
	ctx.dclManager.Init(ctx.roadManager.Roads())

	if path := ctx.runtimeConfig.All.Output.StatusFile; path != "" {
		w, err := NewStatusWriter(path)
		if err != nil {
			log.Panicf("failed to open status file: %v", err)
		}
		ctx.status = w
	}
}

// Close 关闭任务：停止信控后台任务、关闭输出与sidecar
func (ctx *Context) Close() {
	if ctx.closed.Load() {
		return
	}
	ctx.junctionManager.Close()
	if ctx.status != nil {
		if err := ctx.status.Close(); err != nil {
			log.Errorf("failed to close status file: %v", err)
		}
	}
	if ctx.sidecar != nil && ctx.serving {
		ctx.sidecar.Close()
		// wait for graceful stop
		<-ctx.sidecarCloseCh
	}
	ctx.closed.Store(true)
}
