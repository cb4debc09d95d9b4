// ABOUTME: Incremental server-sent event decoder with a single residual buffer
// ABOUTME: Splits arbitrarily chunked input on blank lines and yields data: payloads

package sse

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"iter"
)

// Marker prefixes every frame that carries a payload.
const Marker = "data:"

var separator = []byte("\n\n")

// readBufferSize is the chunk size used when pulling from a reader.
const readBufferSize = 4096

// Decoder turns chunks of an event stream into deltas. It is not safe for
// concurrent use; one decoder serves one stream.
type Decoder struct {
	buf     []byte
	dropped int
}

// NewDecoder creates an empty decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends chunk to the residual buffer and returns the deltas of every
// frame the chunk completed, in order. The trailing incomplete segment stays
// buffered until a later chunk terminates it.
func (d *Decoder) Feed(chunk []byte) []string {
	d.buf = append(d.buf, chunk...)

	var deltas []string
	for {
		idx := bytes.Index(d.buf, separator)
		if idx < 0 {
			break
		}
		frame := d.buf[:idx]
		d.buf = d.buf[idx+len(separator):]

		if delta, ok := parseFrame(frame); ok {
			deltas = append(deltas, delta)
		} else {
			d.dropped++
		}
	}

	// Compact so a long stream does not pin every consumed byte.
	if len(d.buf) == 0 {
		d.buf = d.buf[:0:0]
	}
	return deltas
}

// Pending reports how many bytes are buffered waiting for a terminator.
func (d *Decoder) Pending() int {
	return len(d.buf)
}

// Dropped reports how many complete frames lacked the data marker.
func (d *Decoder) Dropped() int {
	return d.dropped
}

// parseFrame extracts the payload of a single frame.
func parseFrame(frame []byte) (string, bool) {
	if !bytes.HasPrefix(frame, []byte(Marker)) {
		return "", false
	}
	return string(frame[len(Marker):]), true
}

// Deltas returns a one-pass sequence of the deltas read from r. Reading
// happens lazily as the sequence is ranged over; a read error other than
// io.EOF is yielded once and ends the sequence. The sequence cannot be
// restarted.
func Deltas(r io.Reader) iter.Seq2[string, error] {
	consumed := false
	return func(yield func(string, error) bool) {
		if consumed {
			yield("", errors.New("sse: delta sequence already consumed"))
			return
		}
		consumed = true

		dec := NewDecoder()
		chunk := make([]byte, readBufferSize)
		for {
			n, err := r.Read(chunk)
			if n > 0 {
				for _, delta := range dec.Feed(chunk[:n]) {
					if !yield(delta, nil) {
						return
					}
				}
			}
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield("", fmt.Errorf("reading event stream: %w", err))
				return
			}
		}
	}
}
