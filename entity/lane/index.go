package lane

import (
	"math"
	"sort"

	"github.com/tsinghua-fib-lab/aimsim/entity"
	"github.com/tsinghua-fib-lab/aimsim/utils/container"
	"github.com/tsinghua-fib-lab/aimsim/utils/shape"
)

type (
	// VehicleNode 索引链表节点，Extra为节点所在的原始车道ID
	VehicleNode = container.ListNode[entity.IVehicle, int32]
	// VehicleList 按车道链合并后的有序车辆链表
	VehicleList = container.List[entity.IVehicle, int32]
)

// chainRef 车道在所属车道链中的位置
type chainRef struct {
	head   int32   // 链首车道ID
	offset float64 // 本车道起点相对链首车道起点的距离
}

// OccupancyIndex 车道占用索引
// 功能：每步从零重建，给出每条车道链上按距离排序的车辆，以及由此推导的传感器读数
// 说明：不做增量维护，车辆位置、车道成员在步与步之间都会变化
type OccupancyIndex struct {
	lists map[int32]*VehicleList // 链首车道ID -> 合并后的链表
	heads []int32                // 链首车道ID，升序
	chain map[int32]chainRef     // 车道ID -> 链中位置
	nodes map[int32]*VehicleNode // VIN -> 当前车道对应的节点
}

// BuildIndex 构建车道占用索引
// 参数：lanes-全部车道（按ID升序），vehicles-全部车辆（按注册表顺序），
// exclude-额外的排除条件（已进入路口的车辆），可为nil
// 算法说明：
// 1. 逐车道收集车辆，键为车辆在该车道上的s坐标；变道中的车辆同时加入目标车道
// 2. 位于路口连接车道上的车辆以及exclude为true的车辆不加入索引
// 3. 沿NextLane从链首向下游遍历，将下游车道的节点按累计偏移量并入链首车道的链表，
// 下游车道不再单独成表
// 4. 链首为不是任何车道NextLane的车道，按ID升序处理；剩余未访问的车道（成环）再按ID升序处理
func BuildIndex(lanes []entity.ILane, vehicles []entity.IVehicle, exclude func(entity.IVehicle) bool) *OccupancyIndex {
	x := &OccupancyIndex{
		lists: make(map[int32]*VehicleList),
		chain: make(map[int32]chainRef),
		nodes: make(map[int32]*VehicleNode),
	}

	perLane := make(map[int32][]*VehicleNode)
	for _, v := range vehicles {
		cur := v.Lane()
		if cur == nil || cur.InJunction() || (exclude != nil && exclude(v)) {
			continue
		}
		node := &VehicleNode{S: v.S(), Value: v, Extra: cur.ID()}
		perLane[cur.ID()] = append(perLane[cur.ID()], node)
		x.nodes[v.VIN()] = node
		if tl := v.TrackingLane(); tl != nil && tl.ID() != cur.ID() && !tl.InJunction() {
			perLane[tl.ID()] = append(perLane[tl.ID()], &VehicleNode{
				S:     tl.ProjectToLane(v.Position()),
				Value: v,
				Extra: tl.ID(),
			})
		}
	}

	sorted := make([]entity.ILane, len(lanes))
	copy(sorted, lanes)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID() < sorted[j].ID() })
	isNext := make(map[int32]bool)
	for _, l := range sorted {
		if next := l.NextLane(); next != nil {
			isNext[next.ID()] = true
		}
	}
	walk := func(head entity.ILane) {
		list := &VehicleList{}
		adds := make([]*VehicleNode, 0)
		offset := 0.
		for cur := head; cur != nil; cur = cur.NextLane() {
			if _, ok := x.chain[cur.ID()]; ok {
				break
			}
			x.chain[cur.ID()] = chainRef{head: head.ID(), offset: offset}
			for _, node := range perLane[cur.ID()] {
				node.S += offset
				adds = append(adds, node)
			}
			offset += cur.NextLaneOffset()
		}
		list.Merge(adds)
		x.lists[head.ID()] = list
		x.heads = append(x.heads, head.ID())
	}
	for _, l := range sorted {
		if l.InJunction() || isNext[l.ID()] {
			continue
		}
		walk(l)
	}
	for _, l := range sorted {
		if _, ok := x.chain[l.ID()]; !ok && !l.InJunction() {
			walk(l)
		}
	}
	sort.Slice(x.heads, func(i, j int) bool { return x.heads[i] < x.heads[j] })
	return x
}

// Orderings 每条链首车道上按距离排序的VIN序列
func (x *OccupancyIndex) Orderings() map[int32][]int32 {
	res := make(map[int32][]int32, len(x.lists))
	for head, list := range x.lists {
		vins := make([]int32, 0, list.Len())
		for node := list.First(); node != nil; node = node.Next() {
			vins = append(vins, node.Value.VIN())
		}
		res[head] = vins
	}
	return res
}

// Heads 链首车道ID，升序
func (x *OccupancyIndex) Heads() []int32 {
	return x.heads
}

// Indexed 车辆是否在索引中
func (x *OccupancyIndex) Indexed(vin int32) bool {
	_, ok := x.nodes[vin]
	return ok
}

// NextVehicle 同一车道链上紧邻的前车
func (x *OccupancyIndex) NextVehicle(vin int32) (entity.IVehicle, bool) {
	node, ok := x.nodes[vin]
	if !ok {
		return nil, false
	}
	for next := node.Next(); next != nil; next = next.Next() {
		if next.Value.VIN() != vin {
			return next.Value, true
		}
	}
	return nil, false
}

// Interval 车头到前车外廓的距离
// 返回：车头已在前车外廓内时为0，无前车时为math.MaxFloat64
func (x *OccupancyIndex) Interval(v entity.IVehicle) float64 {
	leader, ok := x.NextVehicle(v.VIN())
	if !ok {
		return math.MaxFloat64
	}
	return shape.DistanceToEdges(shape.FromPoint(v.Position()), leader.Shape())
}

// Tracking 目标车道上严格在前与严格在后的最近车辆
// 返回：前车距离（前车键 - 本车键 - 前车长度）与速度，后车距离（本车键 - 后车键）与速度；
// 不存在时距离与速度均为math.MaxFloat64
func (x *OccupancyIndex) Tracking(v entity.IVehicle, target entity.ILane) (frontD, frontV, rearD, rearV float64) {
	frontD, frontV, rearD, rearV = math.MaxFloat64, math.MaxFloat64, math.MaxFloat64, math.MaxFloat64
	ref, ok := x.chain[target.ID()]
	if !ok {
		return
	}
	list := x.lists[ref.head]
	key := ref.offset + target.ProjectToLane(v.Position())
	for front := list.FirstAfter(key); front != nil; front = front.Next() {
		if front.Value.VIN() != v.VIN() {
			frontD = front.S - key - front.L()
			frontV = front.V()
			break
		}
	}
	for rear := list.LastBefore(key); rear != nil; rear = rear.Prev() {
		if rear.Value.VIN() != v.VIN() {
			rearD = key - rear.S
			rearV = rear.V()
			break
		}
	}
	return
}

// Sense 将传感器读数推送给车辆
// 说明：不在索引中的车辆（已进入路口）间距记为无穷远
func (x *OccupancyIndex) Sense(vehicles []entity.IVehicle) {
	for _, v := range vehicles {
		if !x.Indexed(v.VIN()) {
			v.RecordInterval(math.MaxFloat64)
			continue
		}
		v.RecordInterval(x.Interval(v))
		if tl := v.TrackingLane(); tl != nil {
			frontD, frontV, rearD, rearV := x.Tracking(v, tl)
			v.RecordFront(frontD, frontV)
			v.RecordRear(rearD, rearV)
		}
	}
}
