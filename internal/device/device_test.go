package device

import (
	"bytes"
	"context"
	"errors"
	"image/color"
	"reflect"
	"testing"

	"github.com/disintegration/imaging"
	"golang.org/x/image/bmp"
)

type recorder struct {
	calls [][]string
}

func (r *recorder) run(_ context.Context, argv []string) ([]byte, error) {
	r.calls = append(r.calls, argv)
	return nil, nil
}

func TestCommandController_Templates(t *testing.T) {
	rec := &recorder{}
	c, err := NewCommandController(nil, 0)
	if err != nil {
		t.Fatalf("NewCommandController: %v", err)
	}
	c.WithRunner(rec.run)
	ctx := context.Background()

	c.Click(ctx, 10, 20, ButtonRight, 2)
	c.Type(ctx, "hello world; rm -rf /")
	c.Hotkey(ctx, "ctrl", "enter")
	c.Scroll(ctx, 5, 6, -3)

	want := [][]string{
		{"xdotool", "mousemove", "10", "20", "click", "--repeat", "2", "3"},
		{"xdotool", "type", "--delay", "12", "--", "hello world; rm -rf /"},
		{"xdotool", "key", "ctrl+Return"},
		{"xdotool", "mousemove", "5", "6", "click", "--repeat", "3", "5"},
	}
	if !reflect.DeepEqual(rec.calls, want) {
		t.Errorf("expected %v, got %v", want, rec.calls)
	}
}

func TestCommandController_MissingTemplate(t *testing.T) {
	c, err := NewCommandController(map[string]string{"move": "mv {x} {y}"}, 0)
	if err != nil {
		t.Fatalf("NewCommandController: %v", err)
	}
	c.WithRunner((&recorder{}).run)
	if err := c.Press(context.Background(), "a"); !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
}

func TestCommandController_RunnerError(t *testing.T) {
	c, _ := NewCommandController(nil, 0)
	c.WithRunner(func(context.Context, []string) ([]byte, error) {
		return []byte("no display"), errors.New("exit status 1")
	})
	err := c.Move(context.Background(), 1, 1)
	if err == nil || !bytes.Contains([]byte(err.Error()), []byte("no display")) {
		t.Errorf("expected output in error, got %v", err)
	}
}

func TestCommandScreen_DownscalesAndKeepsDimensions(t *testing.T) {
	img := imaging.New(2000, 1000, color.NRGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		t.Fatalf("encode: %v", err)
	}

	s, err := NewCommandScreen("capture --png", 1000)
	if err != nil {
		t.Fatalf("NewCommandScreen: %v", err)
	}
	s.WithOffset(100, 50).WithRunner(func(context.Context, []string) ([]byte, error) {
		return buf.Bytes(), nil
	})

	shot, err := s.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if shot.Width != 2000 || shot.Height != 1000 {
		t.Errorf("expected original 2000x1000, got %dx%d", shot.Width, shot.Height)
	}
	if shot.MIME != "image/png" {
		t.Errorf("expected image/png, got %s", shot.MIME)
	}
	small, err := imaging.Decode(bytes.NewReader(shot.Image))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if small.Bounds().Dx() != 1000 {
		t.Errorf("expected downscaled width 1000, got %d", small.Bounds().Dx())
	}

	x, y := shot.ToScreen(500, 500)
	if x != 1100 || y != 550 {
		t.Errorf("expected (1100, 550), got (%d, %d)", x, y)
	}
}

func TestCommandScreen_BMPReencodedAsPNG(t *testing.T) {
	var buf bytes.Buffer
	if err := bmp.Encode(&buf, imaging.New(64, 32, color.NRGBA{B: 255, A: 255})); err != nil {
		t.Fatalf("encode: %v", err)
	}

	s, err := NewCommandScreen("capture --bmp", 0)
	if err != nil {
		t.Fatalf("NewCommandScreen: %v", err)
	}
	s.WithRunner(func(context.Context, []string) ([]byte, error) {
		return buf.Bytes(), nil
	})

	shot, err := s.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if shot.MIME != "image/png" {
		t.Errorf("expected image/png, got %s", shot.MIME)
	}
	if shot.Width != 64 || shot.Height != 32 {
		t.Errorf("expected 64x32, got %dx%d", shot.Width, shot.Height)
	}
	if !bytes.HasPrefix(shot.Image, []byte("\x89PNG")) {
		t.Error("expected PNG bytes")
	}
}

func TestNop(t *testing.T) {
	var n Nop
	if _, err := n.Capture(context.Background()); !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
}
