package container_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tsinghua-fib-lab/aimsim/utils/container"
)

type item struct {
	container.IncrementalItemBase
	id int
}

func ids(a *container.IncrementalArray[*item]) []int {
	res := make([]int, 0, a.Len())
	for i, x := range a.Data() {
		if x.Index() != i {
			panic("index out of sync")
		}
		res = append(res, x.id)
	}
	return res
}

func TestIncrementalArray(t *testing.T) {
	a := container.NewIncrementalArray[*item]()
	items := make([]*item, 5)
	for i := range items {
		items[i] = &item{id: i}
		a.Add(items[i])
	}
	assert.Equal(t, 0, a.Len())
	a.Prepare()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, ids(a))

	// 删除尾部元素与中间元素
	a.Remove(items[4])
	a.Remove(items[1])
	a.Remove(items[1])
	a.Prepare()
	assert.Equal(t, []int{0, 3, 2}, ids(a))
	assert.Equal(t, -1, items[1].Index())

	// 删除多于添加
	n := &item{id: 9}
	a.Add(n)
	a.Remove(items[0])
	a.Remove(items[2])
	a.Prepare()
	assert.Equal(t, []int{3, 9}, ids(a))

	a.Clear()
	assert.Equal(t, 0, a.Len())
	assert.Equal(t, -1, n.Index())
}
