package device

import (
	"bytes"
	"context"
	"fmt"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"github.com/mattn/go-shellwords"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// DefaultScreenshotCommand writes a PNG of the root window to stdout.
const DefaultScreenshotCommand = "import -window root png:-"

var llmImageTypes = map[string]bool{"image/png": true, "image/jpeg": true}

// CommandScreen captures the display by running a command that writes an
// image to stdout.
type CommandScreen struct {
	argv     []string
	maxWidth int
	offsetX  int
	offsetY  int
	run      Runner
}

// NewCommandScreen parses command ("" = ImageMagick import). Frames wider
// than maxWidth are downscaled (0 = never).
func NewCommandScreen(command string, maxWidth int) (*CommandScreen, error) {
	if command == "" {
		command = DefaultScreenshotCommand
	}
	argv, err := shellwords.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("device: parse screenshot command: %w", err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("device: empty screenshot command")
	}
	return &CommandScreen{argv: argv, maxWidth: maxWidth, run: execOutput}, nil
}

// WithOffset records where the captured region sits on the virtual desktop.
func (s *CommandScreen) WithOffset(x, y int) *CommandScreen {
	s.offsetX, s.offsetY = x, y
	return s
}

// WithRunner replaces the process runner.
func (s *CommandScreen) WithRunner(r Runner) *CommandScreen {
	s.run = r
	return s
}

func (s *CommandScreen) Capture(ctx context.Context) (*Screenshot, error) {
	raw, err := s.run(ctx, s.argv)
	if err != nil {
		return nil, fmt.Errorf("device: capture: %w", err)
	}

	mt := mimetype.Detect(raw)
	img, err := imaging.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("device: decode %s capture: %w", mt.String(), err)
	}

	bounds := img.Bounds()
	shot := &Screenshot{
		Image:   raw,
		MIME:    mt.String(),
		Width:   bounds.Dx(),
		Height:  bounds.Dy(),
		OffsetX: s.offsetX,
		OffsetY: s.offsetY,
	}

	// LLM endpoints accept PNG and JPEG only; BMP and WebP captures are re-encoded.
	resize := s.maxWidth > 0 && shot.Width > s.maxWidth
	if resize || !llmImageTypes[mt.String()] {
		if resize {
			img = imaging.Resize(img, s.maxWidth, 0, imaging.Lanczos)
		}
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
			return nil, fmt.Errorf("device: encode capture: %w", err)
		}
		shot.Image = buf.Bytes()
		shot.MIME = "image/png"
	}
	return shot, nil
}
