package progress

import "io"

// Func receives the cumulative number of bytes transferred and the declared
// total (0 when unknown).
type Func func(transferred int64, total int64)

// counter accumulates bytes and fires the callback. With a zero interval
// every chunk is reported; otherwise reports are spaced by at least interval
// bytes.
type counter struct {
	total          int64
	onProgress     Func
	transferred    int64
	sinceReport    int64
	reportInterval int64
}

func (c *counter) add(n int) {
	if n <= 0 {
		return
	}

	c.transferred += int64(n)
	c.sinceReport += int64(n)

	if c.reportInterval <= 0 || c.sinceReport >= c.reportInterval || c.transferred == c.total {
		c.onProgress(c.transferred, c.total)
		c.sinceReport = 0
	}
}

// Reader wraps an io.Reader and reports progress after each chunk is read,
// before the chunk is handed to the caller.
type Reader struct {
	r io.Reader
	counter
}

func NewReader(r io.Reader, total int64, interval int64, cb Func) *Reader {
	return &Reader{
		r:       r,
		counter: counter{total: total, onProgress: cb, reportInterval: interval},
	}
}

func (pr *Reader) Read(p []byte) (int, error) {
	n, err := pr.r.Read(p)
	pr.add(n)

	return n, err
}

// Transferred returns the number of bytes read so far.
func (pr *Reader) Transferred() int64 {
	return pr.transferred
}

// Writer wraps an io.Writer and reports progress after each chunk is written.
type Writer struct {
	w io.Writer
	counter
}

func NewWriter(w io.Writer, total int64, interval int64, cb Func) *Writer {
	return &Writer{
		w:       w,
		counter: counter{total: total, onProgress: cb, reportInterval: interval},
	}
}

func (pw *Writer) Write(p []byte) (int, error) {
	n, err := pw.w.Write(p)
	pw.add(n)

	return n, err
}

// Transferred returns the number of bytes written so far.
func (pw *Writer) Transferred() int64 {
	return pw.transferred
}
