package randengine

import (
	"flag"
	"fmt"
	"sync"

	"golang.org/x/exp/rand"
)

var (
	seedOffset = flag.Uint64("rand.seed_offset", 0, "seed offset") // 种子偏移量，用于调整随机数生成
)

// Engine 随机数生成器
// 功能：封装golang.org/x/exp/rand，按实体ID播种以保证同一配置的运行可复现
type Engine struct {
	*rand.Rand            // 底层随机数生成器
	mtx        sync.Mutex // 互斥锁，用于*Safe系列函数
}

// New 以seed+rand.seed_offset为种子创建随机数生成器
func New(seed uint64) *Engine {
	return &Engine{Rand: rand.New(rand.NewSource(seed + *seedOffset))}
}

// DiscreteDistribution 按权重抽取下标
// 参数：weight-非负权重列表，总和必须大于0
// 返回：抽中的下标
func (e *Engine) DiscreteDistribution(weight []float64) int {
	total := .0
	for _, w := range weight {
		total += w
	}
	if total <= 0 {
		panic(fmt.Sprintf("randengine: DiscreteDistribution with non-positive total weight %f", total))
	}
	random := total * e.Float64()
	sum := 0.
	for i, w := range weight {
		sum += w
		if sum > random {
			return i
		}
	}
	return len(weight) - 1
}

// PTrue 以概率p返回true
func (e *Engine) PTrue(p float64) bool {
	return e.Float64() < p
}

// PTrueSafe 线程安全版本的PTrue
func (e *Engine) PTrueSafe(p float64) bool {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	return e.Float64() < p
}
