package container_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tsinghua-fib-lab/aimsim/utils/container"
)

type testData struct {
	name string
}

func (t testData) V() float64 {
	return 0
}

func (t testData) Length() float64 {
	return 0
}

func node(s float64, name string) *container.ListNode[testData, struct{}] {
	return &container.ListNode[testData, struct{}]{S: s, Value: testData{name: name}}
}

func TestListInit(t *testing.T) {
	l := &container.List[testData, struct{}]{}
	assert.Nil(t, l.First())
	assert.Nil(t, l.Last())
	assert.Equal(t, 0, l.Len())
}

func TestListOperation(t *testing.T) {
	l := &container.List[testData, struct{}]{}

	// ^, 1, ^
	n1 := node(1, "")
	l.PushBack(n1)
	// ^, 2, 1, ^
	n2 := node(2, "")
	l.PushFront(n2)
	// ^, 3, 2, 1, ^
	n3 := node(3, "")
	n2.InsertBefore(n3)
	// ^, 3, 2, 1, 4, ^
	n4 := node(4, "")
	n1.InsertAfter(n4)
	assert.Equal(t, 4, l.Len())

	n := l.First()
	assert.Equal(t, n3, n)
	n = n.Next()
	assert.Equal(t, n2, n)
	n = n.Next()
	assert.Equal(t, n1, n)
	assert.Equal(t, n, n.Next().Prev())
	assert.Equal(t, n, n.Prev().Next())
	n = n.Next()
	assert.Equal(t, n4, n)
	assert.Equal(t, n4, l.Last())

	l.Remove(n4)
	assert.Equal(t, n1, l.Last())
	assert.Equal(t, 3, l.Len())
	assert.Nil(t, n4.Parent())
}

func TestListMergeKeepsOrderAndTies(t *testing.T) {
	l := &container.List[testData, struct{}]{}
	l.Merge([]*container.ListNode[testData, struct{}]{
		node(5, "a"), node(1, "b"), node(3, "c"),
	})
	assert.Equal(t, []float64{1, 3, 5}, l.Keys())

	// 相同键：已有节点在前，新节点按输入顺序在后
	l.Merge([]*container.ListNode[testData, struct{}]{
		node(3, "d"), node(3, "e"), node(0, "f"), node(9, "g"),
	})
	assert.Equal(t, []float64{0, 1, 3, 3, 3, 5, 9}, l.Keys())
	names := make([]string, 0)
	for _, v := range l.Values() {
		names = append(names, v.name)
	}
	assert.Equal(t, []string{"f", "b", "c", "d", "e", "a", "g"}, names)
}

func TestListFirstAfterLastBefore(t *testing.T) {
	l := &container.List[testData, struct{}]{}
	l.Merge([]*container.ListNode[testData, struct{}]{
		node(10, "x"), node(20, "y"), node(30, "z"),
	})
	assert.Equal(t, 20.0, l.FirstAfter(10).S)
	assert.Equal(t, 10.0, l.FirstAfter(5).S)
	assert.Nil(t, l.FirstAfter(30))
	assert.Equal(t, 20.0, l.LastBefore(30).S)
	assert.Nil(t, l.LastBefore(10))

	l.Clear()
	assert.Equal(t, 0, l.Len())
	assert.Nil(t, l.First())
	assert.Nil(t, l.Last())
}
