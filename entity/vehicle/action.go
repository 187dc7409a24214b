package vehicle

// Action 一步的控制动作
// 功能：描述驾驶员在Decide阶段给出的加速度指令
type Action struct {
	A float64 // 加速度（米/秒²），负值为减速

	Reason string // 给出该加速度的规则，用于调试输出
}

// Update 合并多个动作
// 功能：采用取最小的方式设置加速度，即多条规则同时生效时执行最保守的一条
func (a *Action) Update(others ...Action) {
	for _, o := range others {
		if o.A < a.A {
			a.A = o.A
			a.Reason = o.Reason
		}
	}
}

// SetBrakeAcc 设置在brakeDistance内从速度v刹停所需的加速度
// 说明：a = -v²/(2d)，已静止或刹车距离无效时不修改
func (a *Action) SetBrakeAcc(brakeDistance, v float64) {
	if v <= 0 || brakeDistance <= 0 {
		return
	}
	a.A = -v * v / brakeDistance / 2
}
