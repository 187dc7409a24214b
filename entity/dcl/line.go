// Package dcl 数据采集线：统计车辆车头轨迹穿过给定线段的次数与时间
package dcl

import (
	"fmt"
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/tsinghua-fib-lab/aimsim/entity"
	"github.com/tsinghua-fib-lab/aimsim/utils/shape"
)

// Record 一次穿越记录
type Record struct {
	VIN  int32
	Time float64
}

// Line 数据采集线
type Line struct {
	id       int32
	name     string
	p1, p2   orb.Point
	noRepeat bool // 为true时同一VIN只记录一次

	records []Record
	seen    map[int32]struct{}
}

// NewLine 创建数据采集线
func NewLine(id int32, name string, p1, p2 orb.Point, noRepeat bool) *Line {
	return &Line{
		id:       id,
		name:     name,
		p1:       p1,
		p2:       p2,
		noRepeat: noRepeat,
		seen:     make(map[int32]struct{}),
	}
}

func (l *Line) ID() int32 {
	return l.id
}

func (l *Line) Name() string {
	return l.name
}

func (l *Line) String() string {
	return fmt.Sprintf("Line %d(%s)", l.id, l.name)
}

// Endpoints 线段端点
func (l *Line) Endpoints() (orb.Point, orb.Point) {
	return l.p1, l.p2
}

// Intersect 车头从from移动到to的线段与采集线相交（接触也算）时记录一次穿越
// 返回：是否记录
func (l *Line) Intersect(vin int32, t float64, from, to orb.Point) bool {
	if !shape.SegmentsIntersect(l.p1, l.p2, from, to) {
		return false
	}
	if l.noRepeat {
		if _, ok := l.seen[vin]; ok {
			return false
		}
		l.seen[vin] = struct{}{}
	}
	l.records = append(l.records, Record{VIN: vin, Time: t})
	return true
}

// Count 穿越次数
func (l *Line) Count() int {
	return len(l.records)
}

// Records 全部穿越记录，按时间顺序
func (l *Line) Records() []Record {
	return l.records
}

// Manager 数据采集线管理器
type Manager struct {
	lines []*Line
}

func NewManager() *Manager {
	return &Manager{}
}

// Init 在每条道路的末端建立横跨整条道路的采集线
// 说明：驶入道路的末端即停车线，驶出道路的末端为地图出口；采集线ID与道路ID相同，名称为道路名
func (m *Manager) Init(roads []entity.IRoad) {
	m.lines = nil
	for _, r := range roads {
		lanes := r.Lanes()
		if len(lanes) == 0 {
			continue
		}
		left, right := lanes[0], lanes[len(lanes)-1]
		p1 := edgePoint(left, left.Width()/2)
		p2 := edgePoint(right, -right.Width()/2)
		m.lines = append(m.lines, NewLine(r.ID(), r.Name(), p1, p2, true))
	}
	sort.Slice(m.lines, func(i, j int) bool { return m.lines[i].id < m.lines[j].id })
	log.Infof("%d data collection lines", len(m.lines))
}

// edgePoint 车道末端中心点沿左侧法向偏移offset（负值为右侧）
func edgePoint(l entity.ILane, offset float64) orb.Point {
	end := l.GetPositionByS(l.Length())
	heading := l.GetDirectionByS(l.Length()).Direction
	return orb.Point{end.X - math.Sin(heading)*offset, end.Y + math.Cos(heading)*offset}
}

// Add 添加自定义采集线
func (m *Manager) Add(line *Line) {
	m.lines = append(m.lines, line)
}

func (m *Manager) Lines() []*Line {
	return m.lines
}

// Observe 用车头一步的位移检测所有采集线
func (m *Manager) Observe(vin int32, t float64, from, to orb.Point) {
	for _, l := range m.lines {
		if l.Intersect(vin, t, from, to) {
			log.Debugf("vehicle %d crosses %v at %.2f", vin, l, t)
		}
	}
}

// Summary 各采集线的穿越次数
func (m *Manager) Summary() map[string]int {
	res := make(map[string]int, len(m.lines))
	for _, l := range m.lines {
		res[l.name] = l.Count()
	}
	return res
}
