package config

import (
	"errors"
	"fmt"
)

const (
	PolicySignal = "signal" // 信号灯门控准入
	PolicyGrid   = "grid"   // 纯预约网格准入

	SignalCyclic      = "cyclic"       // 固定周期信控
	SignalMaxPressure = "max_pressure" // 最大压力自适应信控
	SignalFile        = "file"         // 外部文件驱动信控
	SignalGreen       = "green"        // 全绿
)

var (
	ErrBadPolicy = errors.New("admission policy must be signal or grid")
	ErrBadSignal = errors.New("signal type must be cyclic, max_pressure, file or green")
)

// RuntimeConfig 运行时配置
// 功能：存储仿真运行时的配置信息，其中缺省项已被填充为默认值
type RuntimeConfig struct {
	All    Config  // 全部配置
	C      Control // 全局控制配置（已填充默认值）
	Layout Layout  // 内置网格地图参数（已填充默认值）
}

// NewRuntimeConfig 根据配置初始化运行时配置
// 功能：创建运行时配置对象，填充默认值并进行配置验证
// 参数：config-原始配置对象
// 返回：初始化的运行时配置指针，配置非法时返回错误
// 算法说明：
// 1. 填充准入控制、信控、车辆生成、驾驶员的默认参数
// 2. 检查枚举类配置项的取值
func NewRuntimeConfig(config Config) (*RuntimeConfig, error) {
	rc := &RuntimeConfig{All: config, C: config.Control}
	if config.Input.Layout != nil {
		rc.Layout = *config.Input.Layout
	}
	fillLayout(&rc.Layout)

	c := &rc.C
	if c.Step.Interval <= 0 {
		c.Step.Interval = 0.1
	}
	a := &c.Admission
	if a.Policy == "" {
		a.Policy = PolicySignal
	}
	if a.Policy != PolicySignal && a.Policy != PolicyGrid {
		return nil, fmt.Errorf("%w: got %q", ErrBadPolicy, a.Policy)
	}
	if a.MaxFutureReservation <= 0 {
		a.MaxFutureReservation = 10
	}
	if a.Granularity <= 0 {
		a.Granularity = 1.0
	}
	if a.GridTimeStep <= 0 {
		a.GridTimeStep = c.Step.Interval
	}
	if a.StaticBuffer < 0 {
		a.StaticBuffer = 0
	}
	if a.InternalTimeBuffer <= 0 {
		a.InternalTimeBuffer = 0.15
	}
	if a.MinTraversalVelocity <= 0 {
		a.MinTraversalVelocity = 3
	}
	if a.TransmissionPower <= 0 {
		a.TransmissionPower = 200
	}

	s := &c.Signal
	if s.Type == "" {
		s.Type = SignalCyclic
	}
	if s.Type != SignalCyclic && s.Type != SignalMaxPressure && s.Type != SignalFile && s.Type != SignalGreen {
		return nil, fmt.Errorf("%w: got %q", ErrBadSignal, s.Type)
	}
	if s.Type == SignalFile && s.PhaseFile == "" {
		return nil, errors.New("signal type file requires phase_file")
	}
	if s.PollInterval <= 0 {
		s.PollInterval = 0.05
	}

	sp := &c.Spawn
	if sp.MaxSpawnsPerPointPerTick <= 0 {
		sp.MaxSpawnsPerPointPerTick = 1
	}
	if sp.NoVehicleZoneLength <= 0 {
		sp.NoVehicleZoneLength = 28
	}
	if len(sp.Vehicles) == 0 {
		sp.Vehicles = []VehicleSpec{DefaultVehicleSpec}
	}
	for i, v := range sp.Vehicles {
		if v.Length <= 0 || v.Width <= 0 || v.MaxVelocity <= 0 || v.MaxAccel <= 0 || v.MaxDecel <= 0 {
			return nil, fmt.Errorf("vehicle spec %d (%s) has non-positive dimension or limit", i, v.Name)
		}
		if v.Weight <= 0 {
			sp.Vehicles[i].Weight = 1
		}
	}

	d := &c.Driver
	if d.StopDistanceBeforeIntersection <= 0 {
		d.StopDistanceBeforeIntersection = 1.0
	}
	if d.RequestInterval <= 0 {
		d.RequestInterval = 1.0
	}
	if d.RequestDistance <= 0 {
		d.RequestDistance = 80
	}
	if d.TransmissionPower <= 0 {
		d.TransmissionPower = 200
	}
	if c.VinResetInterval < 0 {
		c.VinResetInterval = 0
	}
	return rc, nil
}

// DefaultVehicleSpec 默认车辆规格（普通轿车）
var DefaultVehicleSpec = VehicleSpec{
	Name:        "COUPE",
	Length:      4.0,
	Width:       1.75,
	MaxVelocity: 60,
	MaxAccel:    4.5,
	MaxDecel:    4.5,
	Weight:      1,
}

func fillLayout(l *Layout) {
	if l.LanesPerRoad <= 0 {
		l.LanesPerRoad = 3
	}
	if l.LaneWidth <= 0 {
		l.LaneWidth = 4
	}
	if l.SpeedLimit <= 0 {
		l.SpeedLimit = 25
	}
	if l.MedianSize < 0 {
		l.MedianSize = 0
	}
	if l.DistanceBetween <= 0 {
		l.DistanceBetween = 150
	}
}
