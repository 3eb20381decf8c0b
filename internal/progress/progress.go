// Package progress renders per-transfer and per-run progress bars with
// cheggaaa/pb. Bars are drawn only when the output is a terminal; otherwise
// every method is a no-op so callers never branch on it.
package progress

import (
	"io"
	"os"

	"github.com/cheggaaa/pb/v3"
	"github.com/mattn/go-isatty"
)

// Func receives cumulative progress for one transfer. total is -1 when the
// size is unknown. Implementations must be cheap; they run on the data path.
type Func func(transferred, total int64)

// Nop discards progress.
func Nop(int64, int64) {}

const (
	transferTemplate = `{{string . "label"}} {{counters . }} {{bar . }} {{percent . }} {{speed . }}`
	runTemplate      = `{{string . "label"}} {{counters . }} {{bar . }} {{percent . }} {{etime . }}`
)

// Enabled reports whether bars should be drawn on f.
func Enabled(f *os.File, quiet bool) bool {
	if quiet {
		return false
	}

	fd := f.Fd()

	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Bars creates progress bars on a shared writer.
type Bars struct {
	out     io.Writer
	enabled bool
}

// NewBars returns a Bars that draws to out when enabled is true.
func NewBars(out io.Writer, enabled bool) *Bars {
	return &Bars{out: out, enabled: enabled}
}

// Transfer returns a progress Func for one download or upload, and a finish
// function that must be called when the transfer ends. The bar is created on
// the first callback so its total is known.
func (b *Bars) Transfer(label string) (Func, func()) {
	if b == nil || !b.enabled {
		return Nop, func() {}
	}

	var bar *pb.ProgressBar

	fn := func(transferred, total int64) {
		if bar == nil {
			bar = pb.New64(total)
			bar.Set(pb.Bytes, true)
			bar.Set("label", label)
			bar.SetTemplateString(transferTemplate)
			bar.SetWriter(b.out)
			bar.Start()
		}

		if total >= 0 && total != bar.Total() {
			bar.SetTotal(total)
		}

		bar.SetCurrent(transferred)
	}

	finish := func() {
		if bar != nil {
			bar.Finish()
		}
	}

	return fn, finish
}

// Run tracks files processed across a whole migration.
type Run struct {
	bar *pb.ProgressBar
}

// Run starts a per-file bar over total files. The returned Run is safe to
// use when bars are disabled.
func (b *Bars) Run(label string, total int) *Run {
	if b == nil || !b.enabled {
		return &Run{}
	}

	bar := pb.New(total)
	bar.Set("label", label)
	bar.SetTemplateString(runTemplate)
	bar.SetWriter(b.out)
	bar.Start()

	return &Run{bar: bar}
}

// Increment advances the run by one file.
func (r *Run) Increment() {
	if r.bar != nil {
		r.bar.Increment()
	}
}

// Finish stops the run bar.
func (r *Run) Finish() {
	if r.bar != nil {
		r.bar.Finish()
	}
}

// Reader wraps an io.Reader and reports cumulative bytes read to fn.
type Reader struct {
	r     io.Reader
	fn    Func
	total int64
	n     int64
}

// NewReader returns a Reader over r reporting against total.
func NewReader(r io.Reader, total int64, fn Func) *Reader {
	if fn == nil {
		fn = Nop
	}

	return &Reader{r: r, fn: fn, total: total}
}

func (p *Reader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.n += int64(n)
		p.fn(p.n, p.total)
	}

	return n, err
}

// N returns the bytes read so far.
func (p *Reader) N() int64 {
	return p.n
}
