package device

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/mattn/go-shellwords"
	"golang.org/x/time/rate"
)

// XdotoolTemplates drive an X11 desktop. Placeholders are replaced after the
// template is split into words, so a value never spans arguments.
var XdotoolTemplates = map[string]string{
	"click":   "xdotool mousemove {x} {y} click --repeat {clicks} {button}",
	"move":    "xdotool mousemove {x} {y}",
	"drag":    "xdotool mousemove {x} {y} mousedown 1 mousemove {x2} {y2} mouseup 1",
	"scroll":  "xdotool mousemove {x} {y} click --repeat {clicks} {button}",
	"type":    "xdotool type --delay 12 -- {text}",
	"press":   "xdotool key {key}",
	"hotkey":  "xdotool key {keys}",
	"keydown": "xdotool keydown {key}",
	"keyup":   "xdotool keyup {key}",
}

var xdotoolButtons = map[Button]string{ButtonLeft: "1", ButtonMiddle: "2", ButtonRight: "3"}

// CommandController implements Controller by running an external tool.
type CommandController struct {
	templates map[string][]string
	limiter   *rate.Limiter
	run       Runner
}

// NewCommandController parses templates (nil = xdotool) and paces actions to
// perSecond (0 = unpaced).
func NewCommandController(templates map[string]string, perSecond float64) (*CommandController, error) {
	if templates == nil {
		templates = XdotoolTemplates
	}
	c := &CommandController{templates: make(map[string][]string, len(templates)), run: execRunner}
	for op, tmpl := range templates {
		words, err := shellwords.Parse(tmpl)
		if err != nil {
			return nil, fmt.Errorf("device: parse %s template: %w", op, err)
		}
		if len(words) == 0 {
			return nil, fmt.Errorf("device: empty %s template", op)
		}
		c.templates[op] = words
	}
	if perSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
	return c, nil
}

// WithRunner replaces the process runner.
func (c *CommandController) WithRunner(r Runner) *CommandController {
	c.run = r
	return c
}

func (c *CommandController) exec(ctx context.Context, op string, vars map[string]string) error {
	words, ok := c.templates[op]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupported, op)
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	argv := make([]string, len(words))
	for i, w := range words {
		for k, v := range vars {
			w = strings.ReplaceAll(w, "{"+k+"}", v)
		}
		argv[i] = w
	}

	slog.Debug("device: exec", "op", op, "argv", argv)
	out, err := c.run(ctx, argv)
	if err != nil {
		return fmt.Errorf("device: %s: %w: %s", op, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func itoa(n int) string { return strconv.Itoa(n) }

func (c *CommandController) Click(ctx context.Context, x, y int, button Button, clicks int) error {
	if clicks < 1 {
		clicks = 1
	}
	b, ok := xdotoolButtons[button]
	if !ok {
		return fmt.Errorf("device: unknown button %q", button)
	}
	return c.exec(ctx, "click", map[string]string{"x": itoa(x), "y": itoa(y), "clicks": itoa(clicks), "button": b})
}

func (c *CommandController) Move(ctx context.Context, x, y int) error {
	return c.exec(ctx, "move", map[string]string{"x": itoa(x), "y": itoa(y)})
}

func (c *CommandController) Drag(ctx context.Context, fromX, fromY, toX, toY int) error {
	return c.exec(ctx, "drag", map[string]string{"x": itoa(fromX), "y": itoa(fromY), "x2": itoa(toX), "y2": itoa(toY)})
}

func (c *CommandController) Scroll(ctx context.Context, x, y, clicks int) error {
	button := "4"
	if clicks < 0 {
		button, clicks = "5", -clicks
	}
	if clicks == 0 {
		return nil
	}
	return c.exec(ctx, "scroll", map[string]string{"x": itoa(x), "y": itoa(y), "clicks": itoa(clicks), "button": button})
}

func (c *CommandController) Type(ctx context.Context, text string) error {
	return c.exec(ctx, "type", map[string]string{"text": text})
}

func (c *CommandController) Press(ctx context.Context, key string) error {
	return c.exec(ctx, "press", map[string]string{"key": xdotoolKey(key)})
}

func (c *CommandController) Hotkey(ctx context.Context, keys ...string) error {
	mapped := make([]string, len(keys))
	for i, k := range keys {
		mapped[i] = xdotoolKey(k)
	}
	return c.exec(ctx, "hotkey", map[string]string{"keys": strings.Join(mapped, "+")})
}

func (c *CommandController) KeyDown(ctx context.Context, key string) error {
	return c.exec(ctx, "keydown", map[string]string{"key": xdotoolKey(key)})
}

func (c *CommandController) KeyUp(ctx context.Context, key string) error {
	return c.exec(ctx, "keyup", map[string]string{"key": xdotoolKey(key)})
}

// xdotoolKey maps common key names to X keysyms.
func xdotoolKey(key string) string {
	switch strings.ToLower(key) {
	case "enter", "return":
		return "Return"
	case "ctrl", "control":
		return "ctrl"
	case "win", "super", "cmd", "command":
		return "super"
	case "esc", "escape":
		return "Escape"
	case "backspace":
		return "BackSpace"
	case "tab":
		return "Tab"
	case "space":
		return "space"
	case "delete", "del":
		return "Delete"
	case "up", "down", "left", "right", "home", "end":
		return strings.ToUpper(key[:1]) + strings.ToLower(key[1:])
	case "pageup":
		return "Prior"
	case "pagedown":
		return "Next"
	}
	return key
}
