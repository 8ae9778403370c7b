package jsonstream

import "io"

// Recorder passes reads through and remembers the first and the last n
// bytes that went by, for error messages.
type Recorder struct {
	r     io.Reader
	n     int
	first []byte
	last  []byte
	total int64
}

func NewRecorder(r io.Reader, n int) *Recorder {
	return &Recorder{r: r, n: n}
}

func (rec *Recorder) Read(b []byte) (int, error) {
	k, err := rec.r.Read(b)
	if k > 0 {
		rec.observe(b[:k])
	}
	return k, err
}

func (rec *Recorder) observe(b []byte) {
	rec.total += int64(len(b))
	if missing := rec.n - len(rec.first); missing > 0 {
		rec.first = append(rec.first, b[:min(missing, len(b))]...)
	}
	rec.last = append(rec.last, b...)
	if over := len(rec.last) - rec.n; over > 0 {
		rec.last = append(rec.last[:0], rec.last[over:]...)
	}
}

// First returns up to n leading bytes
func (rec *Recorder) First() string {
	return string(rec.first)
}

// Last returns the trailing n bytes once more than n bytes were read, and
// the empty string before that.
func (rec *Recorder) Last() string {
	if rec.total <= int64(rec.n) {
		return ""
	}
	return string(rec.last)
}

// Total returns the number of bytes read so far
func (rec *Recorder) Total() int64 {
	return rec.total
}
