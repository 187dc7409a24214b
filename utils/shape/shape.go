// Package shape 提供车辆外廓、区域相交与距离计算等二维几何工具
package shape

import (
	"math"

	"git.fiblab.net/general/common/v2/geometry"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// FromPoint geometry.Point转orb.Point（忽略Z）
func FromPoint(p geometry.Point) orb.Point {
	return orb.Point{p.X, p.Y}
}

// Distance 两点间的直线距离
func Distance(a, b orb.Point) float64 {
	return planar.Distance(a, b)
}

// VehicleRing 车辆外廓矩形
// 参数：front-车头中心点，heading-朝向（弧度，atan2），length-车长，width-车宽
// 返回：闭合环，顺序为左前、右前、右后、左后、左前
func VehicleRing(front orb.Point, heading, length, width float64) orb.Ring {
	dx, dy := math.Cos(heading), math.Sin(heading)
	// 左侧法向量
	nx, ny := -dy, dx
	hw := width / 2
	rear := orb.Point{front[0] - dx*length, front[1] - dy*length}
	fl := orb.Point{front[0] + nx*hw, front[1] + ny*hw}
	fr := orb.Point{front[0] - nx*hw, front[1] - ny*hw}
	rr := orb.Point{rear[0] - nx*hw, rear[1] - ny*hw}
	rl := orb.Point{rear[0] + nx*hw, rear[1] + ny*hw}
	return orb.Ring{fl, fr, rr, rl, fl}
}

// Inflate 将车辆外廓四周扩大buffer
func Inflate(front orb.Point, heading, length, width, buffer float64) orb.Ring {
	dx, dy := math.Cos(heading), math.Sin(heading)
	f := orb.Point{front[0] + dx*buffer, front[1] + dy*buffer}
	return VehicleRing(f, heading, length+2*buffer, width+2*buffer)
}

// Intersects 两个闭合环（凸或凹多边形）是否相交，接触也算相交
// 算法说明：
// 1. 外接矩形不相交则直接返回false
// 2. 任一顶点落在另一多边形内（含边界）则相交
// 3. 任意两边相交则相交
func Intersects(a, b orb.Ring) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	if !a.Bound().Intersects(b.Bound()) {
		return false
	}
	for _, p := range a {
		if planar.RingContains(b, p) {
			return true
		}
	}
	for _, p := range b {
		if planar.RingContains(a, p) {
			return true
		}
	}
	for i := 0; i+1 < len(a); i++ {
		for j := 0; j+1 < len(b); j++ {
			if SegmentsIntersect(a[i], a[i+1], b[j], b[j+1]) {
				return true
			}
		}
	}
	return false
}

// IntersectsBound 闭合环与轴对齐矩形是否相交，接触也算相交
func IntersectsBound(r orb.Ring, b orb.Bound) bool {
	return Intersects(r, b.ToRing())
}

// DistanceToEdges 点到多边形的距离
// 返回：点在多边形内（含边界）时为0，否则为到各边的最小距离
func DistanceToEdges(p orb.Point, r orb.Ring) float64 {
	if len(r) == 0 {
		return math.MaxFloat64
	}
	if planar.RingContains(r, p) {
		return 0
	}
	d := math.MaxFloat64
	for i := 0; i+1 < len(r); i++ {
		d = math.Min(d, planar.DistanceFromSegment(r[i], r[i+1], p))
	}
	return d
}

// cross 向量(b-a)与(c-a)的叉积
func cross(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

func onSegment(a, b, p orb.Point) bool {
	return math.Min(a[0], b[0]) <= p[0] && p[0] <= math.Max(a[0], b[0]) &&
		math.Min(a[1], b[1]) <= p[1] && p[1] <= math.Max(a[1], b[1])
}

// SegmentsIntersect 线段a1a2与b1b2是否相交（含端点接触与共线重叠）
func SegmentsIntersect(a1, a2, b1, b2 orb.Point) bool {
	d1 := cross(b1, b2, a1)
	d2 := cross(b1, b2, a2)
	d3 := cross(a1, a2, b1)
	d4 := cross(a1, a2, b2)
	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	switch {
	case d1 == 0 && onSegment(b1, b2, a1):
		return true
	case d2 == 0 && onSegment(b1, b2, a2):
		return true
	case d3 == 0 && onSegment(a1, a2, b1):
		return true
	case d4 == 0 && onSegment(a1, a2, b2):
		return true
	}
	return false
}
