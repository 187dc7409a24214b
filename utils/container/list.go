package container

import (
	"fmt"
	"sort"
)

// IHasVAndLength 具有速度和长度属性的接口
// 功能：定义车辆作为有序链表元素时需要的关键信息接口
type IHasVAndLength interface {
	V() float64      // 获取速度
	Length() float64 // 获取长度
}

// ListNode 有序双向链表中的节点
// 说明：S为排序键（通常是沿车道的距离），Extra为附加数据
type ListNode[T IHasVAndLength, E any] struct {
	parent     *List[T, E]     // 所属链表
	prev, next *ListNode[T, E] // 前驱和后继节点
	S          float64         // 键值（沿车道距离）
	Value      T               // 主要值
	Extra      E               // 额外信息
}

func (n *ListNode[T, E]) String() string {
	return fmt.Sprintf("Node{Key:%v, Value:%+v, Extra:%+v}", n.S, n.Value, n.Extra)
}

// Prev 前驱节点，第一个节点返回nil
func (n *ListNode[T, E]) Prev() *ListNode[T, E] {
	return n.prev
}

// Next 后继节点，最后一个节点返回nil
func (n *ListNode[T, E]) Next() *ListNode[T, E] {
	return n.next
}

// Parent 节点所在的链表
func (n *ListNode[T, E]) Parent() *List[T, E] {
	return n.parent
}

// V 节点值的速度
func (n *ListNode[T, E]) V() float64 {
	return n.Value.V()
}

// L 节点值的长度
func (n *ListNode[T, E]) L() float64 {
	return n.Value.Length()
}

// InsertBefore 在节点前插入新节点
// 参数：add-要插入的新节点，不能已在某个链表中
func (n *ListNode[T, E]) InsertBefore(add *ListNode[T, E]) {
	if add.parent != nil {
		panic("insert node who already in list")
	}
	add.parent = n.parent
	add.next = n
	add.prev = n.prev
	n.prev = add
	if add.prev != nil {
		add.prev.next = add
	} else {
		add.parent.head = add
	}
	n.parent.length++
}

// InsertAfter 在节点后插入新节点
// 参数：add-要插入的新节点，不能已在某个链表中
func (n *ListNode[T, E]) InsertAfter(add *ListNode[T, E]) {
	if add.parent != nil {
		panic("insert node who already in list")
	}
	add.parent = n.parent
	add.prev = n
	add.next = n.next
	n.next = add
	if add.next != nil {
		add.next.prev = add
	} else {
		add.parent.tail = add
	}
	n.parent.length++
}

// List 按键S升序排列的双向链表
// 功能：存储车道上的车辆，支持批量有序合并与按键查找前后车
type List[T IHasVAndLength, E any] struct {
	ID         string          // 链表标识符
	head, tail *ListNode[T, E] // 头尾节点指针
	length     int             // 链表长度
}

func (l *List[T, E]) String() string {
	return fmt.Sprintf("List{ID:%v}", l.ID)
}

// Keys 按顺序返回所有键
func (l *List[T, E]) Keys() []float64 {
	keys := make([]float64, 0, l.length)
	for node := l.head; node != nil; node = node.next {
		keys = append(keys, node.S)
	}
	return keys
}

// Values 按顺序返回所有值
func (l *List[T, E]) Values() []T {
	values := make([]T, 0, l.length)
	for node := l.head; node != nil; node = node.next {
		values = append(values, node.Value)
	}
	return values
}

func (l *List[T, E]) Len() int {
	return l.length
}

func (l *List[T, E]) First() *ListNode[T, E] {
	return l.head
}

func (l *List[T, E]) Last() *ListNode[T, E] {
	return l.tail
}

func (l *List[T, E]) PushFront(add *ListNode[T, E]) {
	if add.parent != nil {
		panic("push front node who already in list")
	}
	add.next = nil
	add.prev = nil
	if l.head == nil {
		add.parent = l
		l.head = add
		l.tail = add
		l.length++
	} else {
		// length++和add.parent在InsertBefore中处理
		l.head.InsertBefore(add)
	}
}

func (l *List[T, E]) PushBack(add *ListNode[T, E]) {
	if add.parent != nil {
		panic("push back node who already in list")
	}
	add.next = nil
	add.prev = nil
	if l.tail == nil {
		add.parent = l
		l.head = add
		l.tail = add
		l.length++
	} else {
		// length++和add.parent在InsertAfter中处理
		l.tail.InsertAfter(add)
	}
}

func (l *List[T, E]) Remove(node *ListNode[T, E]) {
	if node.parent != l {
		panic("remove node from wrong list")
	}
	if node.prev != nil {
		node.prev.next = node.next
	} else {
		l.head = node.next
	}
	if node.next != nil {
		node.next.prev = node.prev
	} else {
		l.tail = node.prev
	}
	node.prev = nil
	node.next = nil
	node.parent = nil
	l.length--
}

// Clear 清空链表，所有节点脱离链表
func (l *List[T, E]) Clear() {
	for node := l.head; node != nil; {
		next := node.next
		node.prev, node.next, node.parent = nil, nil, nil
		node = next
	}
	l.head, l.tail, l.length = nil, nil, 0
}

// Merge 将一组节点有序并入链表
// 算法说明：
// 1. 对待插入节点按S稳定排序
// 2. 归并插入，键相同时已有节点在前、新节点在后
// 说明：保证同一输入得到同一顺序
func (l *List[T, E]) Merge(adds []*ListNode[T, E]) {
	sort.SliceStable(adds, func(i, j int) bool {
		return adds[i].S < adds[j].S
	})
	node := l.head
	for _, add := range adds {
		for node != nil && node.S <= add.S {
			node = node.next
		}
		if node != nil {
			node.InsertBefore(add)
		} else {
			l.PushBack(add)
		}
	}
}

// FirstAfter 第一个键严格大于s的节点，不存在时返回nil
func (l *List[T, E]) FirstAfter(s float64) *ListNode[T, E] {
	for node := l.head; node != nil; node = node.next {
		if node.S > s {
			return node
		}
	}
	return nil
}

// LastBefore 最后一个键严格小于s的节点，不存在时返回nil
func (l *List[T, E]) LastBefore(s float64) *ListNode[T, E] {
	for node := l.tail; node != nil; node = node.prev {
		if node.S < s {
			return node
		}
	}
	return nil
}
