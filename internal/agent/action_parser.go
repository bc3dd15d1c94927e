package agent

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/nextlevelbuilder/argus/internal/device"
	"github.com/nextlevelbuilder/argus/pkg/protocol"
)

// GUI action names understood by the parser.
const (
	ActionClick       = "click"
	ActionLeftDouble  = "left_double"
	ActionRightSingle = "right_single"
	ActionDrag        = "drag"
	ActionHotkey      = "hotkey"
	ActionType        = "type"
	ActionScroll      = "scroll"
	ActionWait        = "wait"
	ActionFinished    = "finished"
)

var (
	actionCallRe = regexp.MustCompile(`^(\w+)\((.*)\)`)
	// key='value' or key="value"; backslash escapes are allowed inside the quotes.
	actionArgRe = regexp.MustCompile(`(\w+)=(?:'((?:[^'\\]|\\.)*)'|"((?:[^"\\]|\\.)*)")`)
	pointRe     = regexp.MustCompile(`<point>(\d+)\s+(\d+)</point>`)
	unescaper   = strings.NewReplacer(`\n`, "\n", `\'`, "'", `\"`, `"`)
)

// Action is one parsed GUI step.
type Action struct {
	Name string
	Args map[string]string
}

// ExtractAction returns the text after the last "Action:" marker, or the
// whole reply when there is none.
func ExtractAction(reply string) string {
	if i := strings.LastIndex(reply, "Action:"); i >= 0 {
		reply = reply[i+len("Action:"):]
	}
	return strings.TrimSpace(reply)
}

// ParseAction parses a model reply into an Action.
func ParseAction(reply string) (Action, error) {
	text := ExtractAction(reply)
	m := actionCallRe.FindStringSubmatch(text)
	if m == nil {
		if name, ok := strings.CutSuffix(text, "()"); ok && name != "" {
			return Action{Name: name, Args: map[string]string{}}, nil
		}
		return Action{}, fmt.Errorf("no action found in %q", truncateRunes(text, 80))
	}

	act := Action{Name: m[1], Args: map[string]string{}}
	for _, am := range actionArgRe.FindAllStringSubmatch(m[2], -1) {
		value := am[2]
		if value == "" {
			value = am[3]
		}
		act.Args[am[1]] = unescaper.Replace(value)
	}
	return act, nil
}

// ExtractPoint reads x and y out of "<point>x y</point>".
func ExtractPoint(s string) (x, y int, ok bool) {
	m := pointRe.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, false
	}
	x, _ = strconv.Atoi(m[1])
	y, _ = strconv.Atoi(m[2])
	return x, y, true
}

// step is one device tool invocation.
type step struct {
	tool string
	args map[string]interface{}
}

// plan converts an action into device tool steps, mapping relative points
// onto the screenshot's absolute coordinates. The returned ActionPoint is nil
// for actions without a position.
func plan(act Action, shot *device.Screenshot) ([]step, *protocol.ActionPoint, error) {
	point := func(key string) (int, int, error) {
		raw, ok := act.Args[key]
		if !ok {
			return 0, 0, fmt.Errorf("%s: missing %s", act.Name, key)
		}
		rx, ry, ok := ExtractPoint(raw)
		if !ok {
			return 0, 0, fmt.Errorf("%s: malformed %s %q", act.Name, key, raw)
		}
		x, y := shot.ToScreen(float64(rx), float64(ry))
		return x, y, nil
	}

	switch act.Name {
	case ActionClick, ActionLeftDouble, ActionRightSingle:
		x, y, err := point("point")
		if err != nil {
			return nil, nil, err
		}
		tool := map[string]string{
			ActionClick:       "mouse_click",
			ActionLeftDouble:  "mouse_double_click",
			ActionRightSingle: "mouse_right_click",
		}[act.Name]
		return []step{{tool, map[string]interface{}{"x": x, "y": y}}},
			&protocol.ActionPoint{Action: act.Name, X: x, Y: y}, nil

	case ActionDrag:
		x1, y1, err := point("start_point")
		if err != nil {
			return nil, nil, err
		}
		x2, y2, err := point("end_point")
		if err != nil {
			return nil, nil, err
		}
		return []step{{"mouse_drag", map[string]interface{}{"start_x": x1, "start_y": y1, "end_x": x2, "end_y": y2}}},
			&protocol.ActionPoint{Action: act.Name, X: x1, Y: y1, EndX: x2, EndY: y2}, nil

	case ActionScroll:
		x, y, err := point("point")
		if err != nil {
			return nil, nil, err
		}
		dir := act.Args["direction"]
		if dir != "up" && dir != "down" {
			return nil, nil, fmt.Errorf("scroll: unsupported direction %q", dir)
		}
		return []step{{"mouse_scroll", map[string]interface{}{"x": x, "y": y, "direction": dir, "clicks": 5}}},
			&protocol.ActionPoint{Action: act.Name, X: x, Y: y}, nil

	case ActionHotkey:
		keys := strings.Fields(act.Args["key"])
		if len(keys) == 0 {
			return nil, nil, fmt.Errorf("hotkey: missing key")
		}
		return []step{{"keyboard_hotkey", map[string]interface{}{"keys": keys}}}, nil, nil

	case ActionType:
		content, ok := act.Args["content"]
		if !ok {
			return nil, nil, fmt.Errorf("type: missing content")
		}
		text, submit := strings.CutSuffix(content, "\n")
		var steps []step
		if text != "" {
			steps = append(steps, step{"keyboard_type", map[string]interface{}{"text": text}})
		}
		if submit {
			steps = append(steps, step{"keyboard_press", map[string]interface{}{"key": "enter"}})
		}
		return steps, nil, nil

	case ActionWait, ActionFinished:
		return nil, nil, nil
	}
	return nil, nil, fmt.Errorf("unknown action %q", act.Name)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
