package message

// Reason 拒绝原因
type Reason int32

const (
	// 该车辆已持有一个确认的预约
	CONFIRMED_ANOTHER_REQUEST Reason = iota + 1
	// 无可用的无冲突通行方案，或入口车道不可通行
	NO_CLEAR_PATH
	// 所有方案的到达时间都已过去
	ARRIVAL_TIME_TOO_LATE
	// 所有方案的到达时间都超出最大预约提前量
	ARRIVAL_TIME_TOO_LARGE
)

var reasonNames = map[Reason]string{
	CONFIRMED_ANOTHER_REQUEST: "CONFIRMED_ANOTHER_REQUEST",
	NO_CLEAR_PATH:             "NO_CLEAR_PATH",
	ARRIVAL_TIME_TOO_LATE:     "ARRIVAL_TIME_TOO_LATE",
	ARRIVAL_TIME_TOO_LARGE:    "ARRIVAL_TIME_TOO_LARGE",
}

func (r Reason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return "UNKNOWN"
}
