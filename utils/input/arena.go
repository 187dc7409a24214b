package input

import (
	"git.fiblab.net/general/common/v2/geometry"
	geov2 "git.fiblab.net/sim/protos/v2/go/city/geo/v2"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/paulmach/orb"
	"github.com/samber/lo"
)

// Lane 车道描述，车道之间只通过ID互相引用
type Lane struct {
	ID           int32
	Type         mapv2.LaneType
	Turn         mapv2.LaneTurn
	MaxSpeed     float64
	Width        float64
	Line         []geometry.Point // 中心线
	Predecessors []int32
	Successors   []int32
}

// Road 道路描述，LaneIDs按从左到右排列
type Road struct {
	ID      int32
	Name    string
	LaneIDs []int32
}

// Junction 路口描述
type Junction struct {
	ID      int32
	LaneIDs []int32             // 路口内的连接车道（行车道）
	Program *mapv2.TrafficLight // 固定信控程序，可为nil
	// Program.Phases[].States的下标对应的车道ID，为nil时与LaneIDs相同
	ProgramLaneIDs []int32
}

// Map 地图
// 功能：以稳定的int32 ID组织车道、道路、路口，Bound为地图边界
type Map struct {
	Lanes     []*Lane
	Roads     []*Road
	Junctions []*Junction
	Bound     orb.Bound
}

// FromPb 将protobuf地图转换为Map
// 说明：只保留行车道；边界为所有车道中心线外扩半个车道宽后的外接矩形
func FromPb(pb *mapv2.Map) *Map {
	m := &Map{}
	driving := make(map[int32]struct{})
	for _, l := range pb.Lanes {
		if l.Type != mapv2.LaneType_LANE_TYPE_DRIVING {
			continue
		}
		driving[l.Id] = struct{}{}
		m.Lanes = append(m.Lanes, &Lane{
			ID:       l.Id,
			Type:     l.Type,
			Turn:     l.Turn,
			MaxSpeed: l.MaxSpeed,
			Width:    l.Width,
			Line: lo.Map(l.CenterLine.Nodes, func(node *geov2.XYPosition, _ int) geometry.Point {
				return geometry.NewPointFromPb(node)
			}),
			Predecessors: lo.Map(l.Predecessors, func(c *mapv2.LaneConnection, _ int) int32 { return c.Id }),
			Successors:   lo.Map(l.Successors, func(c *mapv2.LaneConnection, _ int) int32 { return c.Id }),
		})
	}
	isDriving := func(id int32, _ int) bool {
		_, ok := driving[id]
		return ok
	}
	for _, l := range m.Lanes {
		l.Predecessors = lo.Filter(l.Predecessors, isDriving)
		l.Successors = lo.Filter(l.Successors, isDriving)
	}
	for _, r := range pb.Roads {
		ids := lo.Filter(r.LaneIds, isDriving)
		if len(ids) == 0 {
			continue
		}
		m.Roads = append(m.Roads, &Road{ID: r.Id, Name: r.Name, LaneIDs: ids})
	}
	for _, j := range pb.Junctions {
		ids := lo.Filter(j.LaneIds, isDriving)
		if len(ids) == 0 {
			continue
		}
		m.Junctions = append(m.Junctions, &Junction{
			ID:             j.Id,
			LaneIDs:        ids,
			Program:        j.FixedProgram,
			ProgramLaneIDs: j.LaneIds,
		})
	}
	m.Bound = laneBound(m.Lanes)
	return m
}

func laneBound(lanes []*Lane) orb.Bound {
	var b orb.Bound
	first := true
	for _, l := range lanes {
		for _, p := range l.Line {
			pb := orb.Bound{
				Min: orb.Point{p.X - l.Width/2, p.Y - l.Width/2},
				Max: orb.Point{p.X + l.Width/2, p.Y + l.Width/2},
			}
			if first {
				b = pb
				first = false
			} else {
				b = b.Union(pb)
			}
		}
	}
	return b
}
