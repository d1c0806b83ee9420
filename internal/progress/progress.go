// Package progress renders a terminal progress bar over the target space.
package progress

import (
	"io"
	"os"

	"github.com/cheggaaa/pb/v3"
	"github.com/mattn/go-isatty"
)

const template = `{{counters . }} {{bar . }} {{percent . }} {{rtime . "ETA %s"}}`

// Bar counts completed targets. A nil *Bar is a valid no-op bar.
type Bar struct {
	bar *pb.ProgressBar
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Start draws a bar of total steps on w.
func Start(total int64, w io.Writer) *Bar {
	bar := pb.New64(total)
	bar.SetTemplateString(template)
	bar.SetWriter(w)

	return &Bar{bar: bar.Start()}
}

// Increment advances the bar by one target.
func (b *Bar) Increment() {
	if b == nil {
		return
	}
	b.bar.Increment()
}

// Current returns the number of completed steps.
func (b *Bar) Current() int64 {
	if b == nil {
		return 0
	}

	return b.bar.Current()
}

// Finish draws the final state and stops refreshing.
func (b *Bar) Finish() {
	if b == nil {
		return
	}
	b.bar.Finish()
}
