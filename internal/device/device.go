// Package device drives the local mouse, keyboard and screen.
package device

import (
	"context"
	"errors"
)

// ErrUnsupported is returned by backends that cannot perform an operation.
var ErrUnsupported = errors.New("device: operation not supported")

// Button is a mouse button name.
type Button string

const (
	ButtonLeft   Button = "left"
	ButtonRight  Button = "right"
	ButtonMiddle Button = "middle"
)

// Controller performs mouse and keyboard input. Coordinates are absolute
// screen pixels.
type Controller interface {
	Click(ctx context.Context, x, y int, button Button, clicks int) error
	Move(ctx context.Context, x, y int) error
	Drag(ctx context.Context, fromX, fromY, toX, toY int) error
	// Scroll scrolls at (x, y); positive clicks scroll up, negative down.
	Scroll(ctx context.Context, x, y, clicks int) error
	Type(ctx context.Context, text string) error
	Press(ctx context.Context, key string) error
	Hotkey(ctx context.Context, keys ...string) error
	KeyDown(ctx context.Context, key string) error
	KeyUp(ctx context.Context, key string) error
}

// Screenshot is a captured frame. Image may be downscaled; Width and Height
// are the original pixel dimensions and OffsetX/OffsetY the position of the
// captured region on the virtual desktop.
type Screenshot struct {
	Image   []byte
	MIME    string
	Width   int
	Height  int
	OffsetX int
	OffsetY int
}

// ToScreen maps a point in 0..1000 relative space onto absolute pixels.
func (s *Screenshot) ToScreen(relX, relY float64) (int, int) {
	x := int(relX/1000*float64(s.Width)) + s.OffsetX
	y := int(relY/1000*float64(s.Height)) + s.OffsetY
	return x, y
}

// Screen captures the display.
type Screen interface {
	Capture(ctx context.Context) (*Screenshot, error)
}
