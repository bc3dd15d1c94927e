package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/nextlevelbuilder/argus/internal/device"
)

// funcTool adapts a function to Tool.
type funcTool struct {
	name, desc string
	params     map[string]interface{}
	fn         func(ctx context.Context, args map[string]interface{}) *Result
}

func (t *funcTool) Name() string                       { return t.name }
func (t *funcTool) Description() string                { return t.desc }
func (t *funcTool) Parameters() map[string]interface{} { return t.params }
func (t *funcTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	return t.fn(ctx, args)
}

func object(required []string, props map[string]interface{}) map[string]interface{} {
	m := map[string]interface{}{"type": "object", "properties": props}
	if len(required) > 0 {
		m["required"] = required
	}
	return m
}

func prop(typ, desc string) map[string]interface{} {
	return map[string]interface{}{"type": typ, "description": desc}
}

func xy() map[string]interface{} {
	return map[string]interface{}{
		"x": prop("integer", "X coordinate in screen pixels"),
		"y": prop("integer", "Y coordinate in screen pixels"),
	}
}

func deviceResult(err error, format string, a ...interface{}) *Result {
	if err != nil {
		return ErrorResult(err.Error()).WithError(err)
	}
	return NewResult(fmt.Sprintf(format, a...))
}

// DeviceTools builds the mouse, keyboard and screenshot tools.
func DeviceTools(ctrl device.Controller, screen device.Screen) []Tool {
	click := xy()
	click["button"] = map[string]interface{}{
		"type":        "string",
		"enum":        []interface{}{"left", "right", "middle"},
		"description": "Mouse button, default left",
	}
	click["clicks"] = prop("integer", "Number of clicks, default 1")

	scroll := xy()
	scroll["direction"] = map[string]interface{}{
		"type": "string",
		"enum": []interface{}{"up", "down"},
	}
	scroll["clicks"] = prop("integer", "Scroll amount, default 5")

	return []Tool{
		&funcTool{
			name: "mouse_click", desc: "Click the mouse at a position",
			params: object([]string{"x", "y"}, click),
			fn: func(ctx context.Context, a map[string]interface{}) *Result {
				x, y := argInt(a, "x", 0), argInt(a, "y", 0)
				button := device.Button(argString(a, "button"))
				if button == "" {
					button = device.ButtonLeft
				}
				clicks := argInt(a, "clicks", 1)
				return deviceResult(ctrl.Click(ctx, x, y, button, clicks), "clicked %s x%d at (%d, %d)", button, clicks, x, y)
			},
		},
		&funcTool{
			name: "mouse_double_click", desc: "Double-click the left mouse button at a position",
			params: object([]string{"x", "y"}, xy()),
			fn: func(ctx context.Context, a map[string]interface{}) *Result {
				x, y := argInt(a, "x", 0), argInt(a, "y", 0)
				return deviceResult(ctrl.Click(ctx, x, y, device.ButtonLeft, 2), "double-clicked at (%d, %d)", x, y)
			},
		},
		&funcTool{
			name: "mouse_right_click", desc: "Right-click at a position",
			params: object([]string{"x", "y"}, xy()),
			fn: func(ctx context.Context, a map[string]interface{}) *Result {
				x, y := argInt(a, "x", 0), argInt(a, "y", 0)
				return deviceResult(ctrl.Click(ctx, x, y, device.ButtonRight, 1), "right-clicked at (%d, %d)", x, y)
			},
		},
		&funcTool{
			name: "mouse_move", desc: "Move the mouse to a position",
			params: object([]string{"x", "y"}, xy()),
			fn: func(ctx context.Context, a map[string]interface{}) *Result {
				x, y := argInt(a, "x", 0), argInt(a, "y", 0)
				return deviceResult(ctrl.Move(ctx, x, y), "moved to (%d, %d)", x, y)
			},
		},
		&funcTool{
			name: "mouse_drag", desc: "Press the left button at one position, drag to another and release",
			params: object([]string{"start_x", "start_y", "end_x", "end_y"}, map[string]interface{}{
				"start_x": prop("integer", "Start X"),
				"start_y": prop("integer", "Start Y"),
				"end_x":   prop("integer", "End X"),
				"end_y":   prop("integer", "End Y"),
			}),
			fn: func(ctx context.Context, a map[string]interface{}) *Result {
				x1, y1 := argInt(a, "start_x", 0), argInt(a, "start_y", 0)
				x2, y2 := argInt(a, "end_x", 0), argInt(a, "end_y", 0)
				return deviceResult(ctrl.Drag(ctx, x1, y1, x2, y2), "dragged (%d, %d) -> (%d, %d)", x1, y1, x2, y2)
			},
		},
		&funcTool{
			name: "mouse_scroll", desc: "Scroll the mouse wheel at a position",
			params: object([]string{"x", "y", "direction"}, scroll),
			fn: func(ctx context.Context, a map[string]interface{}) *Result {
				x, y := argInt(a, "x", 0), argInt(a, "y", 0)
				clicks := argInt(a, "clicks", 5)
				dir := argString(a, "direction")
				if dir == "down" {
					clicks = -clicks
				}
				return deviceResult(ctrl.Scroll(ctx, x, y, clicks), "scrolled %s at (%d, %d)", dir, x, y)
			},
		},
		&funcTool{
			name: "keyboard_type", desc: "Type text at the current focus",
			params: object([]string{"text"}, map[string]interface{}{"text": prop("string", "Text to type")}),
			fn: func(ctx context.Context, a map[string]interface{}) *Result {
				text := argString(a, "text")
				return deviceResult(ctrl.Type(ctx, text), "typed %d characters", len([]rune(text)))
			},
		},
		&funcTool{
			name: "keyboard_press", desc: "Press and release one key, e.g. enter, tab, esc",
			params: object([]string{"key"}, map[string]interface{}{"key": prop("string", "Key name")}),
			fn: func(ctx context.Context, a map[string]interface{}) *Result {
				key := argString(a, "key")
				return deviceResult(ctrl.Press(ctx, key), "pressed %s", key)
			},
		},
		&funcTool{
			name: "keyboard_hotkey", desc: "Press a key combination, e.g. [\"ctrl\", \"c\"]",
			params: object([]string{"keys"}, map[string]interface{}{
				"keys": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"description": "Keys pressed together, in order",
				},
			}),
			fn: func(ctx context.Context, a map[string]interface{}) *Result {
				keys := argStrings(a, "keys")
				if len(keys) == 0 {
					return ErrorResult("keys is empty")
				}
				return deviceResult(ctrl.Hotkey(ctx, keys...), "pressed %s", strings.Join(keys, "+"))
			},
		},
		&funcTool{
			name: "keyboard_key_down", desc: "Hold a key down",
			params: object([]string{"key"}, map[string]interface{}{"key": prop("string", "Key name")}),
			fn: func(ctx context.Context, a map[string]interface{}) *Result {
				key := argString(a, "key")
				return deviceResult(ctrl.KeyDown(ctx, key), "holding %s", key)
			},
		},
		&funcTool{
			name: "keyboard_key_up", desc: "Release a held key",
			params: object([]string{"key"}, map[string]interface{}{"key": prop("string", "Key name")}),
			fn: func(ctx context.Context, a map[string]interface{}) *Result {
				key := argString(a, "key")
				return deviceResult(ctrl.KeyUp(ctx, key), "released %s", key)
			},
		},
		&funcTool{
			name: "screenshot", desc: "Capture the screen",
			params: object(nil, map[string]interface{}{}),
			fn: func(ctx context.Context, a map[string]interface{}) *Result {
				shot, err := screen.Capture(ctx)
				if err != nil {
					return ErrorResult(err.Error()).WithError(err)
				}
				return ImageResult(fmt.Sprintf("screenshot %dx%d", shot.Width, shot.Height), shot.Image, shot.MIME)
			},
		},
	}
}
