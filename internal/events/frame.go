package events

import (
	"encoding/json"
	"strings"

	"github.com/kiiskristo/marketpulse-backend/pkg/errors"
)

// Format selects the wire framing of encoded events.
type Format int

const (
	// FormatSSE frames each event as "data: <json>\n\n".
	FormatSSE Format = iota
	// FormatNDJSON frames each event as "<json>\n".
	FormatNDJSON
)

func (f Format) String() string {
	switch f {
	case FormatSSE:
		return "sse"
	case FormatNDJSON:
		return "ndjson"
	default:
		return "unknown"
	}
}

// ContentType is the HTTP media type matching the framing.
func (f Format) ContentType() string {
	if f == FormatNDJSON {
		return "application/x-ndjson"
	}
	return "text/event-stream"
}

// ParseFormat maps "sse" (or "") and "ndjson"/"jsonl" to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sse":
		return FormatSSE, nil
	case "ndjson", "jsonl":
		return FormatNDJSON, nil
	default:
		return FormatSSE, errors.NewValidationError("format", "must be sse or ndjson", s)
	}
}

// Encode validates e and returns one wire frame. It performs no I/O.
func Encode(e Event, f Format) ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}

	line, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to marshal %s event", e.Type)
	}

	switch f {
	case FormatSSE:
		frame := make([]byte, 0, len(line)+8)
		frame = append(frame, "data: "...)
		frame = append(frame, line...)
		return append(frame, '\n', '\n'), nil
	case FormatNDJSON:
		return append(line, '\n'), nil
	default:
		return nil, errors.Wrapf(errors.ErrInvalidInput, "unknown frame format %d", f)
	}
}
