package device

import "context"

// Nop is a Controller and Screen that refuses every operation. It stands in
// when no device backend is configured.
type Nop struct{}

func (Nop) Click(context.Context, int, int, Button, int) error { return ErrUnsupported }
func (Nop) Move(context.Context, int, int) error               { return ErrUnsupported }
func (Nop) Drag(context.Context, int, int, int, int) error     { return ErrUnsupported }
func (Nop) Scroll(context.Context, int, int, int) error        { return ErrUnsupported }
func (Nop) Type(context.Context, string) error                 { return ErrUnsupported }
func (Nop) Press(context.Context, string) error                { return ErrUnsupported }
func (Nop) Hotkey(context.Context, ...string) error            { return ErrUnsupported }
func (Nop) KeyDown(context.Context, string) error              { return ErrUnsupported }
func (Nop) KeyUp(context.Context, string) error                { return ErrUnsupported }
func (Nop) Capture(context.Context) (*Screenshot, error)       { return nil, ErrUnsupported }
