package reporter

import (
	"io"

	"github.com/cheggaaa/pb/v3"
)

// ProgressWriter wraps an io.Writer with a terminal progress bar for long downloads. The
// source acquirer uses it for registry tarball fetches; provider archive fetches draw no
// progress bar.
type ProgressWriter struct {
	bar *pb.ProgressBar
	w   io.Writer
}

// NewProgressWriter starts a progress bar of the given total size (bytes) labelled with
// name, tee-ing writes through to w. If total is 0 or negative, an indeterminate spinner
// template is used instead of a percentage bar.
func NewProgressWriter(name string, total int64, w io.Writer) *ProgressWriter {
	var bar *pb.ProgressBar
	if total > 0 {
		bar = pb.Full.Start64(total)
	} else {
		bar = pb.New(0)
		bar.SetTemplateString(`{{ string . "prefix" }}{{ spinner . }} {{ counters . }}`)
		bar.Start()
	}
	bar.Set("prefix", name+" ")
	return &ProgressWriter{bar: bar, w: w}
}

func (p *ProgressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.bar.Add(n)
	return n, err
}

// Close finishes the progress bar.
func (p *ProgressWriter) Close() error {
	p.bar.Finish()
	return nil
}
