package source

import (
	"fmt"
	"io"
	"sync/atomic"

	"github.com/IQzhan/abload"
)

// Bundle is the raw content of one fetched bundle.
type Bundle struct {
	Name    string
	Version string
	Data    []byte

	closed atomic.Bool
}

// Close marks the bundle released. Data stays readable; it is safe to call
// Close more than once and concurrently with readers.
func (b *Bundle) Close() error {
	b.closed.Store(true)
	return nil
}

func (b *Bundle) Closed() bool {
	return b.closed.Load()
}

// Release is an abload.ReleaseFunc for *Bundle handles.
func Release(h abload.Handle, _ bool) error {
	b, ok := h.(*Bundle)
	if !ok {
		return fmt.Errorf("release: unexpected handle type %T", h)
	}
	return b.Close()
}

// progressReader reports read progress against a known size.
type progressReader struct {
	r        io.Reader
	size     int64
	read     int64
	progress *abload.Progress
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	if p.size > 0 {
		p.progress.Set(float64(p.read) / float64(p.size))
	}
	return n, err
}

func readAll(r io.Reader, size int64, progress *abload.Progress) ([]byte, error) {
	data, err := io.ReadAll(&progressReader{r: r, size: size, progress: progress})
	if err != nil {
		return nil, err
	}
	progress.Set(1)
	return data, nil
}
