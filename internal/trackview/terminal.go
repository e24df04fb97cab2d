package trackview

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

var ErrNotTerminal = errors.New("output is not a terminal")

// Terminal draws the strip with ANSI 256-color grayscale cells. Each text
// line holds two image rows using the upper half block.
type Terminal struct {
	w     io.Writer
	scale int
}

// NewTerminal draws to w, sampling every scale-th row and column. When w is
// a file it must be a terminal.
func NewTerminal(w io.Writer, scale int) (*Terminal, error) {
	if f, ok := w.(*os.File); ok {
		if !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd()) {
			return nil, ErrNotTerminal
		}
	}
	if scale < 1 {
		scale = 1
	}
	return &Terminal{w: w, scale: scale}, nil
}

// grayLevel maps 0..255 onto the 24 step grayscale ramp 232..255.
func grayLevel(v uint8) int {
	return 232 + int(v)*23/255
}

func (t *Terminal) Render(img *image.Gray) error {
	b := img.Bounds()
	out := bufio.NewWriter(t.w)
	// home the cursor so the strip is redrawn in place
	fmt.Fprint(out, "\x1b[H")

	step := t.scale
	for y := b.Min.Y; y < b.Max.Y; y += 2 * step {
		for x := b.Min.X; x < b.Max.X; x += step {
			top := img.GrayAt(x, y).Y
			bottom := top
			if y+step < b.Max.Y {
				bottom = img.GrayAt(x, y+step).Y
			}
			fmt.Fprintf(out, "\x1b[38;5;%dm\x1b[48;5;%dm▀", grayLevel(top), grayLevel(bottom))
		}
		fmt.Fprint(out, "\x1b[0m\n")
	}
	return out.Flush()
}

func (t *Terminal) Close() error {
	_, err := fmt.Fprint(t.w, "\x1b[0m")
	return err
}
