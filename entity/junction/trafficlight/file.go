package trafficlight

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"git.fiblab.net/general/common/v2/mathutil"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/tsinghua-fib-lab/aimsim/entity"
)

const (
	// 信号行长度：E、W、N、S四个方向各3个字符
	phaseLineLength = 12
	lanesPerDir     = 3
)

var (
	ErrMalformedRecord = errors.New("malformed phase record")
)

// PhaseRecord 外部相位文件的一条记录
type PhaseRecord struct {
	Timestamp float64                           // 当前信号状态持续到的时刻
	States    [phaseLineLength]mapv2.LightState // 按E、W、N、S顺序，每个方向3个字符
}

// ParsePhaseRecord 解析外部相位文件内容
// 格式：第一行为时间戳，第二行为12个R/G/Y字符，其余行忽略
func ParsePhaseRecord(data []byte) (PhaseRecord, error) {
	var rec PhaseRecord
	lines := bytes.Split(bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n")), []byte("\n"))
	if len(lines) < 2 {
		return rec, fmt.Errorf("%w: expect 2 lines, got %d", ErrMalformedRecord, len(lines))
	}
	ts, err := strconv.ParseFloat(string(bytes.TrimSpace(lines[0])), 64)
	if err != nil || math.IsNaN(ts) || math.IsInf(ts, 0) {
		return rec, fmt.Errorf("%w: bad timestamp %q", ErrMalformedRecord, lines[0])
	}
	rec.Timestamp = ts
	line := bytes.TrimSpace(lines[1])
	if len(line) != phaseLineLength {
		return rec, fmt.Errorf("%w: signal line %q has length %d", ErrMalformedRecord, line, len(line))
	}
	for i, c := range line {
		state, ok := StateFromChar(c)
		if !ok {
			return rec, fmt.Errorf("%w: bad signal %q at %d", ErrMalformedRecord, c, i)
		}
		rec.States[i] = state
	}
	return rec, nil
}

// PhaseFile 外部文件驱动的信控
// 功能：后台goroutine周期性读取相位文件，以不可变快照的形式发布最新的合法记录
// 说明：在读到第一条合法记录之前，所有车道为红灯
type PhaseFile struct {
	path     string
	interval time.Duration

	record atomic.Pointer[PhaseRecord]
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPhaseFile 创建外部文件驱动的信控，pollInterval单位为秒（墙钟时间）
func NewPhaseFile(path string, pollInterval float64) *PhaseFile {
	interval := time.Duration(pollInterval * float64(time.Second))
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	return &PhaseFile{path: path, interval: interval}
}

// Poll 读取一次相位文件，格式错误或读取失败时保留上一条记录
// 返回：是否读到了合法记录
func (f *PhaseFile) Poll() bool {
	data, err := os.ReadFile(f.path)
	if err != nil {
		log.Debugf("read phase file %s: %v", f.path, err)
		return false
	}
	rec, err := ParsePhaseRecord(data)
	if err != nil {
		log.Warnf("phase file %s: %v, keep previous record", f.path, err)
		return false
	}
	f.record.Store(&rec)
	return true
}

// Start 同步读取一次后启动后台轮询
func (f *PhaseFile) Start(ctx context.Context) {
	if f.cancel != nil {
		log.Panicf("phase file %s started twice", f.path)
	}
	f.Poll()
	ctx, f.cancel = context.WithCancel(ctx)
	f.done = make(chan struct{})
	go func() {
		defer close(f.done)
		ticker := time.NewTicker(f.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				f.Poll()
			}
		}
	}()
}

// Close 停止后台轮询并等待其退出
func (f *PhaseFile) Close() {
	if f.cancel == nil {
		return
	}
	f.cancel()
	<-f.done
	f.cancel = nil
}

// Record 当前记录，没有合法记录时为nil
func (f *PhaseFile) Record() *PhaseRecord {
	return f.record.Load()
}

// Lane 驶入车道的控制器
// 参数：dir-驶入道路方向，index-车道在道路中的下标（0为最右侧），超过2的按2处理
func (f *PhaseFile) Lane(dir entity.Direction, index int) ISignalController {
	if dir < entity.DirectionE || dir > entity.DirectionS {
		log.Warnf("phase file %s: lane with unknown direction, always red", f.path)
		return AlwaysRed
	}
	return &fileLane{file: f, offset: int(dir)*lanesPerDir + min(max(index, 0), lanesPerDir-1)}
}

type fileLane struct {
	file   *PhaseFile
	offset int
}

func (l *fileLane) SignalAt(t float64) mapv2.LightState {
	state, _ := l.Lookup(t)
	return state
}

func (l *fileLane) Lookup(t float64) (mapv2.LightState, float64) {
	rec := l.file.record.Load()
	if rec == nil {
		return mapv2.LightState_LIGHT_STATE_RED, mathutil.INF
	}
	return rec.States[l.offset], max(rec.Timestamp-t, 0)
}
