// Package telemetry reads band and frequency updates pushed by the N3FJP
// logging program's TCP API
package telemetry

import (
	"bytes"
	"context"
	"errors"
	"io"
	"time"

	"github.com/ldocull/N2FJP-Rig-Automation/pkg/verbose"
)

// Tag names an element of the telemetry stream
type Tag string

const (
	TagBand      Tag = "BAND"
	TagFrequency Tag = "FREQ"
)

// MaxSpan bounds how many bytes are buffered while waiting for a closing tag
const MaxSpan = 64 * 1024

var (
	// ErrTruncated means the stream ended inside an open <TAG> span
	ErrTruncated = errors.New("telemetry stream ended inside tag")
	// ErrMalformed means a closing tag arrived with no opening tag before it
	ErrMalformed = errors.New("closing tag without opening tag")
	// ErrSpanTooLong means MaxSpan bytes arrived without a closing tag
	ErrSpanTooLong = errors.New("tag span exceeds buffer limit")
)

// Event is one value extracted from the stream
type Event struct {
	Tag      Tag
	Value    string
	Received time.Time
}

// Reader extracts the values of a single registered tag from a byte stream.
// Other tags and bytes in between are skipped. Reader is not safe for
// concurrent use and cannot be restarted once Next returns an error
type Reader struct {
	r     io.Reader
	tag   Tag
	open  []byte
	close []byte
	buf   []byte
	chunk []byte
	err   error
}

// NewReader returns a Reader for tag over r
func NewReader(r io.Reader, tag Tag) *Reader {
	return &Reader{
		r:     r,
		tag:   tag,
		open:  []byte("<" + string(tag) + ">"),
		close: []byte("</" + string(tag) + ">"),
		chunk: make([]byte, 512),
	}
}

// Tag returns the registered tag
func (r *Reader) Tag() Tag {
	return r.tag
}

// Next blocks until a complete <TAG>value</TAG> span has been read
func (r *Reader) Next() (Event, error) {
	if r.err != nil {
		return Event{}, r.err
	}

	for {
		if ev, ok, err := r.extract(); err != nil {
			r.err = err
			return Event{}, err
		} else if ok {
			return ev, nil
		}

		if len(r.buf) > MaxSpan {
			r.err = ErrSpanTooLong
			return Event{}, r.err
		}

		n, err := r.r.Read(r.chunk)
		if n > 0 {
			verbose.Bytes("telemetry", "rx "+string(r.tag), r.chunk[:n])
			r.buf = append(r.buf, r.chunk[:n]...)
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) && bytes.Contains(r.buf, r.open) {
				err = ErrTruncated
			}
			r.err = err
			return Event{}, err
		}
	}
}

// extract pops the first complete span from the buffer
func (r *Reader) extract() (Event, bool, error) {
	end := bytes.Index(r.buf, r.close)
	if end < 0 {
		r.discardNoise()
		return Event{}, false, nil
	}

	span := r.buf[:end]
	start := bytes.LastIndex(span, r.open)
	if start < 0 {
		return Event{}, false, ErrMalformed
	}

	ev := Event{
		Tag:      r.tag,
		Value:    string(span[start+len(r.open):]),
		Received: time.Now(),
	}
	r.buf = append(r.buf[:0], r.buf[end+len(r.close):]...)
	return ev, true, nil
}

// discardNoise drops bytes that cannot belong to a span of the registered
// tag, keeping a tail long enough to hold a partial opening tag
func (r *Reader) discardNoise() {
	if bytes.Contains(r.buf, r.open) {
		return
	}
	keep := len(r.open) - 1
	if len(r.buf) > keep {
		r.buf = append(r.buf[:0], r.buf[len(r.buf)-keep:]...)
	}
}

// Run forwards events to out until the stream fails or ctx is done
func (r *Reader) Run(ctx context.Context, out chan<- Event) error {
	for {
		ev, err := r.Next()
		if err != nil {
			return err
		}
		select {
		case out <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
