// Package recovery turns free-form model output into a JSON object.
//
// Strategies run cheapest first: a direct parse of the whole text, then a
// parse of the region between the first '{' and the last '}' after light
// normalization. Salvage is a separate, raw attempt over the same region
// for callers that want one more chance after normalization failed.
package recovery

import (
	"encoding/json"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/kiiskristo/marketpulse-backend/pkg/errors"
)

// ExcerptLimit bounds the content quoted in a MalformedJSONError.
const ExcerptLimit = 100

var (
	// ErrNoJSONFound means the text holds no '{' or no '}'.
	ErrNoJSONFound = errors.New("no JSON object braces found in response")

	// ErrMalformedJSON means braces were found but the content would not parse.
	ErrMalformedJSON = errors.New("malformed JSON")

	errNotObject = errors.New("JSON value is not an object")
)

var (
	fenceOpen     = regexp.MustCompile("```json\\s*")
	fenceClose    = regexp.MustCompile("\\s*```")
	trailingBrace = regexp.MustCompile(`,\s*}`)
	trailingBrack = regexp.MustCompile(`,\s*]`)
)

// Payload is a recovered JSON object.
type Payload map[string]any

// Strategy names the step that produced a payload.
type Strategy string

const (
	StrategyDirect    Strategy = "direct"
	StrategyExtracted Strategy = "extracted"
	StrategySalvaged  Strategy = "salvaged"
)

// MalformedJSONError reports content that still failed to parse after
// normalization. Excerpt never exceeds ExcerptLimit characters.
type MalformedJSONError struct {
	Excerpt string
	Cause   error
}

func (e *MalformedJSONError) Error() string {
	return "failed to parse JSON after cleaning: " + e.Cause.Error() + ". Content: " + e.Excerpt + "..."
}

func (e *MalformedJSONError) Unwrap() error { return e.Cause }

// Is makes errors.Is(err, ErrMalformedJSON) hold for every MalformedJSONError.
func (e *MalformedJSONError) Is(target error) bool { return target == ErrMalformedJSON }

// Recover parses text as a JSON object, falling back to brace extraction
// with normalization. Failures are ErrNoJSONFound or *MalformedJSONError.
func Recover(text string) (Payload, error) {
	p, _, err := recoverText(text)
	return p, err
}

// Salvage slices text from the first '{' to the last '}' and parses that
// region as-is, without any normalization.
func Salvage(text string) (Payload, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, ErrNoJSONFound
	}
	return parseObject(text[start : end+1])
}

// RecoverOrSalvage runs Recover and, when it fails, Salvage. If both fail
// the error from Recover is returned since it is the more descriptive one.
func RecoverOrSalvage(text string) (Payload, Strategy, error) {
	p, strategy, err := recoverText(text)
	if err == nil {
		return p, strategy, nil
	}
	if salvaged, serr := Salvage(text); serr == nil {
		return salvaged, StrategySalvaged, nil
	}
	return nil, "", err
}

// Normalize applies the cleanup used by Recover to an extracted region:
// code fences stripped, newlines collapsed, trailing commas dropped, bare
// NaN and Infinity values turned into null.
func Normalize(s string) string {
	s = fenceOpen.ReplaceAllString(s, "")
	s = fenceClose.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "\n", " ")
	s = trailingBrace.ReplaceAllString(s, "}")
	s = trailingBrack.ReplaceAllString(s, "]")
	return nullNonFinite(s)
}

var nonFinite = []string{"-Infinity", "Infinity", "NaN"}

// nullNonFinite replaces NaN, Infinity and -Infinity in value position
// with null. Text inside strings is left alone.
func nullNonFinite(s string) string {
	if !strings.Contains(s, "NaN") && !strings.Contains(s, "Infinity") {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	inString, escaped := false, false
	prev := byte(0) // last non-space byte outside strings

	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
				prev = c
			}
			continue
		}

		if prev == ':' || prev == ',' || prev == '[' {
			if tok := nonFiniteAt(s, i); tok != "" {
				b.WriteString("null")
				i += len(tok) - 1
				prev = 'l'
				continue
			}
		}

		b.WriteByte(c)
		switch c {
		case '"':
			inString = true
		case ' ', '\t', '\r', '\n':
		default:
			prev = c
		}
	}
	return b.String()
}

func nonFiniteAt(s string, i int) string {
	for _, tok := range nonFinite {
		if !strings.HasPrefix(s[i:], tok) {
			continue
		}
		if end := i + len(tok); end < len(s) && isIdentByte(s[end]) {
			return ""
		}
		return tok
	}
	return ""
}

func isIdentByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func recoverText(text string) (Payload, Strategy, error) {
	if p, err := parseObject(text); err == nil {
		return p, StrategyDirect, nil
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < 0 {
		return nil, "", ErrNoJSONFound
	}

	var region string
	if end > start {
		region = Normalize(text[start : end+1])
	}

	p, err := parseObject(region)
	if err != nil {
		return nil, "", &MalformedJSONError{Excerpt: excerpt(region), Cause: err}
	}
	return p, StrategyExtracted, nil
}

// parseObject decodes exactly one JSON object and rejects trailing data.
func parseObject(s string) (Payload, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("unexpected data after top-level value")
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return nil, errNotObject
	}
	return Payload(obj), nil
}

func excerpt(s string) string {
	if utf8.RuneCountInString(s) <= ExcerptLimit {
		return s
	}
	runes := []rune(s)
	return string(runes[:ExcerptLimit])
}
