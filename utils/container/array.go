package container

import (
	"sync"
)

// IIncrementalItem 增量数组元素接口
// 功能：元素需要记录自身在数组中的位置，以支持O(1)删除
type IIncrementalItem interface {
	Index() int         // 获取元素的索引
	SetIndex(index int) // 设置元素的索引
}

// IncrementalItemBase 增量数组元素基础实现，嵌入即可满足IIncrementalItem
type IncrementalItemBase struct {
	index int // 元素在数组中的索引，-1表示不在数组中
}

func (b *IncrementalItemBase) Index() int {
	return b.index
}

func (b *IncrementalItemBase) SetIndex(index int) {
	b.index = index
}

// IncrementalArray 增量数组
// 功能：缓冲添加和删除操作，在Prepare时统一生效
// 说明：遍历顺序只取决于操作序列，同样的操作序列得到同样的顺序
type IncrementalArray[T IIncrementalItem] struct {
	data        []T        // 主数据数组
	add         []T        // 待添加的元素列表
	remove      []T        // 待删除的元素列表
	addMutex    sync.Mutex // 添加操作的互斥锁
	removeMutex sync.Mutex // 删除操作的互斥锁
}

// NewIncrementalArray 创建增量数组
func NewIncrementalArray[T IIncrementalItem]() *IncrementalArray[T] {
	return &IncrementalArray[T]{
		data:   make([]T, 0),
		add:    make([]T, 0),
		remove: make([]T, 0),
	}
}

func (a *IncrementalArray[T]) Len() int {
	return len(a.data)
}

// Data 当前生效的数据（不含缓冲中的操作）
func (a *IncrementalArray[T]) Data() []T {
	return a.data
}

// Add 添加元素（Prepare后生效）
func (a *IncrementalArray[T]) Add(value T) {
	a.addMutex.Lock()
	defer a.addMutex.Unlock()
	a.add = append(a.add, value)
}

// Remove 删除元素（Prepare后生效）
func (a *IncrementalArray[T]) Remove(value T) {
	a.removeMutex.Lock()
	defer a.removeMutex.Unlock()
	a.remove = append(a.remove, value)
}

// Prepare 应用缓冲区中的添加和删除操作
// 算法说明：
// 1. 按删除顺序逐个删除：用末尾元素填补空位并更新其索引
// 2. 重复删除同一元素时忽略（索引已置为-1）
// 3. 按添加顺序追加新元素
func (a *IncrementalArray[T]) Prepare() {
	for _, x := range a.remove {
		ind := x.Index()
		if ind < 0 || ind >= len(a.data) || any(a.data[ind]) != any(x) {
			continue
		}
		last := len(a.data) - 1
		if ind != last {
			a.data[ind] = a.data[last]
			a.data[ind].SetIndex(ind)
		}
		var zero T
		a.data[last] = zero
		a.data = a.data[:last]
		x.SetIndex(-1)
	}
	for _, x := range a.add {
		x.SetIndex(len(a.data))
		a.data = append(a.data, x)
	}
	a.add = a.add[:0]
	a.remove = a.remove[:0]
}

// Clear 清空数组与缓冲区
func (a *IncrementalArray[T]) Clear() {
	for _, x := range a.data {
		x.SetIndex(-1)
	}
	a.data = a.data[:0]
	a.add = a.add[:0]
	a.remove = a.remove[:0]
}
