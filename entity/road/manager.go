package road

import (
	"fmt"
	"sort"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/aimsim/entity"
	"github.com/tsinghua-fib-lab/aimsim/utils/input"
)

// RoadManager Road管理器
// 功能：管理所有Road实体，提供创建、查找、初始化等功能
type RoadManager struct {
	data  map[int32]*Road
	roads []*Road
}

// NewManager 创建Road管理器实例
func NewManager() *RoadManager {
	return &RoadManager{
		data:  make(map[int32]*Road),
		roads: make([]*Road, 0),
	}
}

// Init 初始化所有Road
// 说明：车道的父对象在此设置，不能并行
func (m *RoadManager) Init(bases []*input.Road, laneManager entity.ILaneManager) {
	m.roads = lo.Map(bases, func(base *input.Road, _ int) *Road {
		return newRoad(base, laneManager)
	})
	sort.Slice(m.roads, func(i, j int) bool { return m.roads[i].id < m.roads[j].id })
	m.data = lo.SliceToMap(m.roads, func(r *Road) (int32, *Road) {
		return r.id, r
	})
}

// InitAfterJunction 初始化所有Road的Junction关系
func (m *RoadManager) InitAfterJunction() {
	for _, r := range m.roads {
		r.initAfterJunction()
	}
}

// Get 根据ID获取Road，不存在则panic
func (m *RoadManager) Get(id int32) entity.IRoad {
	if road, ok := m.data[id]; !ok {
		log.Panicf("no id %d in road data", id)
		return nil
	} else {
		return road
	}
}

// GetOrError 根据ID获取Road，不存在则返回错误
func (m *RoadManager) GetOrError(id int32) (entity.IRoad, error) {
	if road, ok := m.data[id]; !ok {
		return nil, fmt.Errorf("no id %d in road data", id)
	} else {
		return road, nil
	}
}

// Roads 所有道路，按ID升序
func (m *RoadManager) Roads() []entity.IRoad {
	return lo.Map(m.roads, func(r *Road, _ int) entity.IRoad { return r })
}
