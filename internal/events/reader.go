package events

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"strings"

	"github.com/kiiskristo/marketpulse-backend/pkg/errors"
)

const maxFrameSize = 4 << 20

// Decoder reads events back from a framed stream. SSE comments and
// unknown fields are skipped; multiple data lines in one SSE event are
// joined with newlines.
type Decoder struct {
	scanner *bufio.Scanner
	format  Format
}

// NewDecoder creates a decoder for the given framing.
func NewDecoder(r io.Reader, format Format) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)
	return &Decoder{scanner: scanner, format: format}
}

// Next returns the next event, or io.EOF when the stream is exhausted.
func (d *Decoder) Next() (Event, error) {
	if d.format == FormatNDJSON {
		return d.nextLine()
	}
	return d.nextSSE()
}

func (d *Decoder) nextLine() (Event, error) {
	for d.scanner.Scan() {
		line := strings.TrimSpace(d.scanner.Text())
		if line == "" {
			continue
		}
		return Parse([]byte(line))
	}
	return Event{}, d.eof()
}

func (d *Decoder) nextSSE() (Event, error) {
	var data strings.Builder
	for d.scanner.Scan() {
		line := d.scanner.Text()
		switch {
		case line == "":
			if data.Len() > 0 {
				return Parse([]byte(data.String()))
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if data.Len() > 0 {
		return Parse([]byte(data.String()))
	}
	return Event{}, d.eof()
}

func (d *Decoder) eof() error {
	if err := d.scanner.Err(); err != nil {
		return errors.Wrap(err, "failed to read event stream")
	}
	return io.EOF
}

// Parse decodes a single JSON event, keeping numbers as json.Number.
func Parse(raw []byte) (Event, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var e Event
	if err := dec.Decode(&e); err != nil {
		return Event{}, errors.Wrap(err, "failed to decode event")
	}
	return e, nil
}

// ReadAll drains the decoder.
func (d *Decoder) ReadAll() ([]Event, error) {
	var out []Event
	for {
		e, err := d.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, e)
	}
}
