package trafficlight

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/tsinghua-fib-lab/aimsim/entity"
)

// DefaultPhaseCSV 未配置相位文件时使用的两相位程序
const DefaultPhaseCSV = "NS,30,3,2\nEW,30,3,2\n"

// ParsePhaseCSV 解析相位配置CSV，生成一个路口的固定周期信控程序
// 参数：r-CSV内容，每行为"roads,green,yellow,red"，roads为N/S/E/W字母组合，表示该相位放行的驶入道路方向；
// junctionID-路口ID；directions-程序中每个状态对应的驶入车道方向
// 返回：信控程序，每行依次展开为绿灯、黄灯、全红三个相位，时长为0的相位省略
// 说明：首行时长无法解析时视为表头跳过，空行与#开头的行忽略
func ParsePhaseCSV(r io.Reader, junctionID int32, directions []entity.Direction) (*mapv2.TrafficLight, error) {
	tl := &mapv2.TrafficLight{JunctionId: junctionID}
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		tokens := strings.Split(line, ",")
		if len(tokens) != 4 {
			return nil, fmt.Errorf("phase csv line %d: expect 4 fields, got %d", lineNo, len(tokens))
		}
		durations := make([]float64, 3)
		var err error
		for i := range durations {
			durations[i], err = strconv.ParseFloat(strings.TrimSpace(tokens[i+1]), 64)
			if err != nil {
				break
			}
			if durations[i] < 0 {
				err = fmt.Errorf("negative duration %v", durations[i])
				break
			}
		}
		if err != nil {
			if lineNo == 1 {
				continue
			}
			return nil, fmt.Errorf("phase csv line %d: %w", lineNo, err)
		}
		active := make(map[entity.Direction]bool)
		for _, c := range strings.ToUpper(strings.TrimSpace(tokens[0])) {
			dir, ok := directionFromLetter(c)
			if !ok {
				return nil, fmt.Errorf("phase csv line %d: unknown road %q", lineNo, c)
			}
			active[dir] = true
		}
		for i, activeState := range []mapv2.LightState{
			mapv2.LightState_LIGHT_STATE_GREEN,
			mapv2.LightState_LIGHT_STATE_YELLOW,
			mapv2.LightState_LIGHT_STATE_RED,
		} {
			if durations[i] == 0 {
				continue
			}
			states := make([]mapv2.LightState, len(directions))
			for j, dir := range directions {
				if active[dir] {
					states[j] = activeState
				} else {
					states[j] = mapv2.LightState_LIGHT_STATE_RED
				}
			}
			tl.Phases = append(tl.Phases, &mapv2.Phase{Duration: durations[i], States: states})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read phase csv: %w", err)
	}
	if len(tl.Phases) == 0 {
		return nil, fmt.Errorf("phase csv has no phase")
	}
	return tl, nil
}

func directionFromLetter(c rune) (entity.Direction, bool) {
	switch c {
	case 'E':
		return entity.DirectionE, true
	case 'W':
		return entity.DirectionW, true
	case 'N':
		return entity.DirectionN, true
	case 'S':
		return entity.DirectionS, true
	}
	return entity.DirectionUnknown, false
}
