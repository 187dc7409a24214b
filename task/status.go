package task

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/tsinghua-fib-lab/aimsim/entity/vehicle"
)

// 状态行中距离的截断范围
const (
	statusMaxDistance = 146
	statusMinDistance = 0.9
	// 等待时间的输出倍率
	statusWaitScale = 25
)

// StatusWriter 逐车状态输出
// 功能：每步覆盖写入一份快照，首行为整数秒，之后每辆车一行，字段以制表符分隔
type StatusWriter struct {
	f *os.File
	w *bufio.Writer
}

// NewStatusWriter 创建（截断）状态文件
func NewStatusWriter(path string) (*StatusWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create status file %s: %w", path, err)
	}
	return &StatusWriter{f: f, w: bufio.NewWriter(f)}, nil
}

// Write 覆盖写入t时刻的快照
func (s *StatusWriter) Write(t float64, vehicles []*vehicle.Vehicle) error {
	if err := s.f.Truncate(0); err != nil {
		return err
	}
	if _, err := s.f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	s.w.Reset(s.f)
	if err := WriteStatus(s.w, t, vehicles); err != nil {
		return err
	}
	return s.w.Flush()
}

func (s *StatusWriter) Close() error {
	if err := s.w.Flush(); err != nil {
		s.f.Close()
		return err
	}
	return s.f.Close()
}

// WriteStatus 输出一份快照
func WriteStatus(w io.Writer, t float64, vehicles []*vehicle.Vehicle) error {
	if _, err := fmt.Fprintf(w, "%d\n", int(math.Floor(t+1e-9))); err != nil {
		return err
	}
	for _, v := range vehicles {
		if _, err := io.WriteString(w, StatusLine(t, v)); err != nil {
			return err
		}
	}
	return nil
}

// StatusLine 单辆车的状态行
// 字段：时间、VIN、到路口距离、预计等待时间*25、驶入道路名、驶出道路名、车道序号
func StatusLine(t float64, v *vehicle.Vehicle) string {
	origin, destination := "", ""
	if v.Origin() != nil {
		origin = v.Origin().Name()
	}
	if v.Destination() != nil {
		destination = v.Destination().Name()
	}
	return fmt.Sprintf("%.2f\t%d\t%s\t%.2f\t%s\t%s\t%d\n",
		t, v.VIN(),
		FormatDistance(v.DistanceToNextIntersection()),
		statusWaitScale*v.WaitTime(),
		origin, destination,
		v.LaneIndex(),
	)
}

// FormatDistance 到路口距离的输出格式：大于146记为146.00，小于0.9记为0.00
func FormatDistance(d float64) string {
	switch {
	case d > statusMaxDistance:
		d = statusMaxDistance
	case d < statusMinDistance:
		d = 0
	}
	return fmt.Sprintf("%.2f", d)
}
