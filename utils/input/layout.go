package input

import (
	"git.fiblab.net/general/common/v2/geometry"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/paulmach/orb"
	"github.com/tsinghua-fib-lab/aimsim/utils/config"
)

// 内置地图的ID分配
const (
	LayoutJunctionID      = 1
	approachRoadIDBase    = 1
	exitRoadIDBase        = 11
	approachLaneIDBase    = 100
	exitLaneIDBase        = 1100
	connectorLaneIDBase   = 5000
	connectorBezierPieces = 8
)

// 行驶方向，顺序与外部相位文件中的E、W、N、S一致
var layoutDirections = []struct {
	name string
	u    geometry.Point
}{
	{"E", geometry.Point{X: 1}},
	{"W", geometry.Point{X: -1}},
	{"N", geometry.Point{Y: 1}},
	{"S", geometry.Point{Y: -1}},
}

// BuildLayout 生成单路口的十字形地图
// 功能：四个方向各有一条驶入道路和一条驶出道路，路口内为每个驶入车道生成到
// 其余三个方向同序号驶出车道的连接车道（直行、左转、右转，不含掉头）
// 参数：l-已填充默认值的网格参数
// 返回：路口中心位于(D, D)、边界为[0, 2D]x[0, 2D]的地图，D为distance_between
// 算法说明：
// 1. 车道序号0为最右侧车道，距道路中心线最远
// 2. 路口半宽h = median/2 + lanes*width，驶入车道止于距中心h处
// 3. 转弯车道为二次贝塞尔曲线，控制点为两条车道中心线延长线的交点
func BuildLayout(l config.Layout) *Map {
	n := l.LanesPerRoad
	w := l.LaneWidth
	d := l.DistanceBetween
	h := l.MedianSize/2 + float64(n)*w
	center := geometry.Point{X: d, Y: d}
	m := &Map{
		Bound: orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{2 * d, 2 * d}},
	}

	// pointAt 方向dir上纵向坐标a（相对路口中心）、序号i车道中心线上的点
	pointAt := func(dir int, i int, a float64) geometry.Point {
		u := layoutDirections[dir].u
		right := geometry.Point{X: u.Y, Y: -u.X}
		off := l.MedianSize/2 + w*float64(n-1-i) + w/2
		return geometry.Point{
			X: center.X + u.X*a + right.X*off,
			Y: center.Y + u.Y*a + right.Y*off,
		}
	}

	approach := make([][]*Lane, len(layoutDirections))
	exit := make([][]*Lane, len(layoutDirections))
	for dir, info := range layoutDirections {
		in := &Road{ID: int32(approachRoadIDBase + dir), Name: info.name + "-in"}
		out := &Road{ID: int32(exitRoadIDBase + dir), Name: info.name + "-out"}
		approach[dir] = make([]*Lane, n)
		exit[dir] = make([]*Lane, n)
		for i := 0; i < n; i++ {
			approach[dir][i] = &Lane{
				ID:       int32(approachLaneIDBase + 100*dir + i),
				Type:     mapv2.LaneType_LANE_TYPE_DRIVING,
				Turn:     mapv2.LaneTurn_LANE_TURN_STRAIGHT,
				MaxSpeed: l.SpeedLimit,
				Width:    w,
				Line:     []geometry.Point{pointAt(dir, i, -d), pointAt(dir, i, -h)},
			}
			exit[dir][i] = &Lane{
				ID:       int32(exitLaneIDBase + 100*dir + i),
				Type:     mapv2.LaneType_LANE_TYPE_DRIVING,
				Turn:     mapv2.LaneTurn_LANE_TURN_STRAIGHT,
				MaxSpeed: l.SpeedLimit,
				Width:    w,
				Line:     []geometry.Point{pointAt(dir, i, h), pointAt(dir, i, d)},
			}
		}
		// 从左到右
		for i := n - 1; i >= 0; i-- {
			in.LaneIDs = append(in.LaneIDs, approach[dir][i].ID)
			out.LaneIDs = append(out.LaneIDs, exit[dir][i].ID)
			m.Lanes = append(m.Lanes, approach[dir][i], exit[dir][i])
		}
		m.Roads = append(m.Roads, in, out)
	}

	junction := &Junction{ID: LayoutJunctionID}
	nextID := int32(connectorLaneIDBase)
	for from := range layoutDirections {
		for to := range layoutDirections {
			if to == from^1 {
				// 掉头
				continue
			}
			turn := layoutTurn(layoutDirections[from].u, layoutDirections[to].u)
			for i := 0; i < n; i++ {
				arrival, departure := approach[from][i], exit[to][i]
				p0 := arrival.Line[len(arrival.Line)-1]
				p2 := departure.Line[0]
				line := []geometry.Point{p0, p2}
				if turn != mapv2.LaneTurn_LANE_TURN_STRAIGHT {
					line = bezier(p0, controlPoint(p0, layoutDirections[from].u, p2), p2)
				}
				c := &Lane{
					ID:           nextID,
					Type:         mapv2.LaneType_LANE_TYPE_DRIVING,
					Turn:         turn,
					MaxSpeed:     l.SpeedLimit,
					Width:        w,
					Line:         line,
					Predecessors: []int32{arrival.ID},
					Successors:   []int32{departure.ID},
				}
				nextID++
				arrival.Successors = append(arrival.Successors, c.ID)
				departure.Predecessors = append(departure.Predecessors, c.ID)
				junction.LaneIDs = append(junction.LaneIDs, c.ID)
				m.Lanes = append(m.Lanes, c)
			}
		}
	}
	m.Junctions = []*Junction{junction}
	log.Infof("built-in layout: %d lanes, %d roads, junction half size %.2f", len(m.Lanes), len(m.Roads), h)
	return m
}

func layoutTurn(from, to geometry.Point) mapv2.LaneTurn {
	cross := from.X*to.Y - from.Y*to.X
	switch {
	case cross > 0:
		return mapv2.LaneTurn_LANE_TURN_LEFT
	case cross < 0:
		return mapv2.LaneTurn_LANE_TURN_RIGHT
	default:
		return mapv2.LaneTurn_LANE_TURN_STRAIGHT
	}
}

// controlPoint 过p0沿u的直线与过p2且垂直于u的直线的交点
func controlPoint(p0, u, p2 geometry.Point) geometry.Point {
	if u.X != 0 {
		return geometry.Point{X: p2.X, Y: p0.Y}
	}
	return geometry.Point{X: p0.X, Y: p2.Y}
}

func bezier(p0, q, p2 geometry.Point) []geometry.Point {
	line := make([]geometry.Point, 0, connectorBezierPieces+1)
	for k := 0; k <= connectorBezierPieces; k++ {
		t := float64(k) / connectorBezierPieces
		a, b, c := (1-t)*(1-t), 2*(1-t)*t, t*t
		line = append(line, geometry.Point{
			X: a*p0.X + b*q.X + c*p2.X,
			Y: a*p0.Y + b*q.Y + c*p2.Y,
		})
	}
	return line
}
