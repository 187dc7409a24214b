// Package reservation 路口的时空预约网格：把路口划分为方格，把时间划分为时间步，
// 车辆通过路口所占的(时间步, 方格)集合即为其预约
package reservation

import (
	"fmt"
	"math"
	"sort"

	"git.fiblab.net/general/common/v2/geometry"
	"github.com/paulmach/orb"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/aimsim/utils/shape"
)

// Path 车辆在路口内行驶的路径，即连接车道
type Path interface {
	Length() float64
	GetPositionByS(s float64) geometry.Point
	GetDirectionByS(s float64) geometry.PolylineDirection
}

// Cell 时空格
type Cell struct {
	Step int64 // 时间步
	Tile int32 // 方格编号 = 行 * 列数 + 列
}

func (c Cell) String() string {
	return fmt.Sprintf("(%d, %d)", c.Step, c.Tile)
}

// Params 时空占用的计算参数
type Params struct {
	StaticBuffer         float64 // 车辆外廓四周的静态缓冲（米）
	InternalTimeBuffer   float64 // 前后各加的时间缓冲（秒）
	MinTraversalVelocity float64 // 路口内的最小通行速度（米/秒）
}

// Grid 覆盖路口外接矩形的时空网格
type Grid struct {
	bound       orb.Bound
	granularity float64
	timeStep    float64
	cols, rows  int
}

// NewGrid 创建时空网格
// 参数：bound-路口外接矩形，granularity-方格边长，timeStep-时间步长
func NewGrid(bound orb.Bound, granularity, timeStep float64) *Grid {
	if granularity <= 0 || timeStep <= 0 {
		log.Panicf("bad grid granularity %v or time step %v", granularity, timeStep)
	}
	cols := max(int(math.Ceil((bound.Max[0]-bound.Min[0])/granularity)), 1)
	rows := max(int(math.Ceil((bound.Max[1]-bound.Min[1])/granularity)), 1)
	return &Grid{
		bound:       bound,
		granularity: granularity,
		timeStep:    timeStep,
		cols:        cols,
		rows:        rows,
	}
}

// Bound 网格覆盖范围
func (g *Grid) Bound() orb.Bound {
	return g.bound
}

// NumTiles 方格总数
func (g *Grid) NumTiles() int {
	return g.cols * g.rows
}

// StepOf t时刻所在的时间步
func (g *Grid) StepOf(t float64) int64 {
	return int64(math.Floor(t / g.timeStep))
}

// TileBound 方格的范围
func (g *Grid) TileBound(tile int32) orb.Bound {
	col, row := int(tile)%g.cols, int(tile)/g.cols
	origin := orb.Point{g.bound.Min[0] + float64(col)*g.granularity, g.bound.Min[1] + float64(row)*g.granularity}
	return orb.Bound{Min: origin, Max: orb.Point{origin[0] + g.granularity, origin[1] + g.granularity}}
}

// TilesOf 与多边形相交（含接触）的方格，升序
func (g *Grid) TilesOf(r orb.Ring) []int32 {
	rb := r.Bound()
	if !rb.Intersects(g.bound) {
		return nil
	}
	col0 := g.clampCol(int(math.Floor((rb.Min[0] - g.bound.Min[0]) / g.granularity)))
	col1 := g.clampCol(int(math.Floor((rb.Max[0] - g.bound.Min[0]) / g.granularity)))
	row0 := g.clampRow(int(math.Floor((rb.Min[1] - g.bound.Min[1]) / g.granularity)))
	row1 := g.clampRow(int(math.Floor((rb.Max[1] - g.bound.Min[1]) / g.granularity)))
	tiles := make([]int32, 0, (col1-col0+1)*(row1-row0+1))
	for row := row0; row <= row1; row++ {
		for col := col0; col <= col1; col++ {
			tile := int32(row*g.cols + col)
			if shape.IntersectsBound(r, g.TileBound(tile)) {
				tiles = append(tiles, tile)
			}
		}
	}
	return tiles
}

func (g *Grid) clampCol(c int) int {
	return lo.Clamp(c, 0, g.cols-1)
}

func (g *Grid) clampRow(r int) int {
	return lo.Clamp(r, 0, g.rows-1)
}

// Footprint 车辆沿路径匀速通过路口所占的时空格
// 参数：path-连接车道，arrivalTime-车头到达路径起点的时间，velocity-通行速度（不低于MinTraversalVelocity），
// length/width-车辆尺寸，p-计算参数
// 返回：去重并排序后的时空格，车尾离开路径终点的时间
// 算法说明：
// 1. 从车头位于s=0开始，每个时间步采样一次车辆外廓（四周扩大StaticBuffer），直到车尾越过路径终点
// 2. 每个采样占用[t-InternalTimeBuffer, t+InternalTimeBuffer]内的所有时间步
func (g *Grid) Footprint(path Path, arrivalTime, velocity, length, width float64, p Params) ([]Cell, float64) {
	v := max(velocity, p.MinTraversalVelocity)
	if v <= 0 {
		log.Panicf("footprint with non-positive velocity %v", v)
	}
	total := path.Length() + length
	duration := total / v
	exitTime := arrivalTime + duration
	samples := int(math.Ceil(duration / g.timeStep))

	set := make(map[Cell]struct{})
	for k := 0; k <= samples; k++ {
		dt := min(float64(k)*g.timeStep, duration)
		s := v * dt
		t := arrivalTime + dt
		front := shape.FromPoint(path.GetPositionByS(s))
		heading := path.GetDirectionByS(s).Direction
		ring := shape.Inflate(front, heading, length, width, p.StaticBuffer)
		tiles := g.TilesOf(ring)
		if len(tiles) == 0 {
			continue
		}
		for step := g.StepOf(t - p.InternalTimeBuffer); step <= g.StepOf(t+p.InternalTimeBuffer); step++ {
			for _, tile := range tiles {
				set[Cell{Step: step, Tile: tile}] = struct{}{}
			}
		}
	}
	cells := lo.Keys(set)
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].Step != cells[j].Step {
			return cells[i].Step < cells[j].Step
		}
		return cells[i].Tile < cells[j].Tile
	})
	return cells, exitTime
}
