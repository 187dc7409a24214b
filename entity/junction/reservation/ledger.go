package reservation

import (
	"github.com/tsinghua-fib-lab/aimsim/entity/message"
	"github.com/tsinghua-fib-lab/aimsim/utils/container"
)

// ReserveParam 一次成功的准入检查得到的预约参数
type ReserveParam struct {
	Vin      int32
	Proposal message.Proposal // 被接受的提案
	Cells    []Cell           // 占用的时空格
	ExitTime float64          // 车尾驶离路口的时间
}

type holding struct {
	id    int32
	param *ReserveParam
}

type expiry struct {
	vin int32
	id  int32
}

// Ledger 路口的预约台账
// 功能：记录每个时空格被哪辆车占用，保证任意两个预约的时空格不重叠
// 说明：每辆车最多持有一个预约；预约在Release或过期时整体删除
type Ledger struct {
	cells   map[Cell]int32 // 时空格 -> VIN
	byVin   map[int32]*holding
	expires *container.PriorityQueue[expiry] // 按驶离时间排序
	nextID  int32
}

func NewLedger() *Ledger {
	return &Ledger{
		cells:   make(map[Cell]int32),
		byVin:   make(map[int32]*holding),
		expires: container.NewPriorityQueue[expiry](),
	}
}

// IsFree 时空格是否都未被占用
func (l *Ledger) IsFree(cells []Cell) bool {
	for _, c := range cells {
		if _, ok := l.cells[c]; ok {
			return false
		}
	}
	return true
}

// Reserve 提交预约，全部时空格空闲且车辆没有其他预约时成功
// 返回：预约ID，是否成功
func (l *Ledger) Reserve(p *ReserveParam) (int32, bool) {
	if p == nil {
		log.Warn("reserve with nil param")
		return 0, false
	}
	if _, ok := l.byVin[p.Vin]; ok {
		return 0, false
	}
	if !l.IsFree(p.Cells) {
		return 0, false
	}
	l.nextID++
	id := l.nextID
	for _, c := range p.Cells {
		l.cells[c] = p.Vin
	}
	l.byVin[p.Vin] = &holding{id: id, param: p}
	l.expires.HeapPush(expiry{vin: p.Vin, id: id}, p.ExitTime)
	return id, true
}

// Has 车辆是否持有预约
func (l *Ledger) Has(vin int32) bool {
	_, ok := l.byVin[vin]
	return ok
}

// Get 车辆持有的预约
func (l *Ledger) Get(vin int32) (param *ReserveParam, id int32, ok bool) {
	h, ok := l.byVin[vin]
	if !ok {
		return nil, 0, false
	}
	return h.param, h.id, true
}

// Release 删除车辆的预约
func (l *Ledger) Release(vin int32) bool {
	h, ok := l.byVin[vin]
	if !ok {
		return false
	}
	for _, c := range h.param.Cells {
		if l.cells[c] == vin {
			delete(l.cells, c)
		}
	}
	delete(l.byVin, vin)
	return true
}

// ReleaseReservation 仅当车辆当前预约的ID为id时删除
func (l *Ledger) ReleaseReservation(vin, id int32) bool {
	h, ok := l.byVin[vin]
	if !ok || h.id != id {
		return false
	}
	return l.Release(vin)
}

// Expire 删除驶离时间早于now的预约
// 返回：被删除预约的VIN
func (l *Ledger) Expire(now float64) []int32 {
	var vins []int32
	for l.expires.Len() > 0 {
		e, exitTime := l.expires.First()
		if exitTime >= now {
			break
		}
		l.expires.HeapPop()
		// 已提前释放的预约留在队列中，弹出时按ID核对
		if h, ok := l.byVin[e.vin]; ok && h.id == e.id {
			l.Release(e.vin)
			vins = append(vins, e.vin)
		}
	}
	return vins
}

// Len 当前预约数
func (l *Ledger) Len() int {
	return len(l.byVin)
}

// Cells 当前被占用的时空格数
func (l *Ledger) Cells() int {
	return len(l.cells)
}

// Occupant 占用时空格的车辆
func (l *Ledger) Occupant(c Cell) (int32, bool) {
	vin, ok := l.cells[c]
	return vin, ok
}

// Overlaps 由全部预约重新统计时空格，检查是否存在重叠或台账不一致
func (l *Ledger) Overlaps() bool {
	count := make(map[Cell]int, len(l.cells))
	for _, h := range l.byVin {
		for _, c := range h.param.Cells {
			count[c]++
			if count[c] > 1 {
				return true
			}
		}
	}
	return len(count) != len(l.cells)
}
