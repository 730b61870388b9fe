package recovery

import (
	"encoding/json"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiiskristo/marketpulse-backend/pkg/errors"
)

func TestRecover(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Payload
	}{
		{
			name:     "clean object",
			input:    `{"valid": "json"}`,
			expected: Payload{"valid": "json"},
		},
		{
			name:     "prose around object",
			input:    `Some text before {"valid": "json"} and text after`,
			expected: Payload{"valid": "json"},
		},
		{
			name:     "trailing comma in object",
			input:    `{"a":1,}`,
			expected: Payload{"a": json.Number("1")},
		},
		{
			name:     "trailing comma in array",
			input:    "Result:\n{\"keywords\": [\"coffee\", \"espresso\",\n]}",
			expected: Payload{"keywords": []any{"coffee", "espresso"}},
		},
		{
			name:  "fenced block",
			input: "Here you go:\n```json\n{\n  \"rank\": 3,\n  \"brand\": \"acme\"\n}\n```\nLet me know.",
			expected: Payload{
				"rank":  json.Number("3"),
				"brand": "acme",
			},
		},
		{
			name:     "nested objects keep first and last brace",
			input:    `prefix {"outer": {"inner": true}} suffix`,
			expected: Payload{"outer": map[string]any{"inner": true}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Recover(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestRecover_RoundTripKeepsNumbers(t *testing.T) {
	input := `{"id":12345678901234567890,"ratio":0.1,"tags":["a","b"],"nested":{"ok":null}}`

	got, err := Recover(input)
	require.NoError(t, err)

	out, err := json.Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, input, string(out))
	assert.Contains(t, string(out), "12345678901234567890")
}

func TestRecover_NoJSONFound(t *testing.T) {
	for _, input := range []string{"", "no braces at all", "only an opening {", "only a closing }"} {
		_, err := Recover(input)
		assert.ErrorIs(t, err, ErrNoJSONFound, "input %q", input)
		assert.False(t, errors.Is(err, ErrMalformedJSON), "input %q", input)
	}
}

func TestRecover_Malformed(t *testing.T) {
	_, err := Recover(`{"invalid": json}`)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedJSON)
	assert.False(t, errors.Is(err, ErrNoJSONFound))

	var malformed *MalformedJSONError
	require.True(t, errors.As(err, &malformed))
	assert.Equal(t, `{"invalid": json}`, malformed.Excerpt)
}

func TestRecover_MalformedExcerptIsBounded(t *testing.T) {
	input := "{" + strings.Repeat("é", 500) + "}"

	_, err := Recover(input)

	var malformed *MalformedJSONError
	require.True(t, errors.As(err, &malformed))
	assert.Equal(t, ExcerptLimit, utf8.RuneCountInString(malformed.Excerpt))
	assert.True(t, utf8.ValidString(malformed.Excerpt))
}

func TestRecover_ClosingBeforeOpening(t *testing.T) {
	_, err := Recover(`} nothing useful {`)
	assert.ErrorIs(t, err, ErrMalformedJSON)
}

func TestRecover_TopLevelArrayIsNotPayload(t *testing.T) {
	_, err := Recover(`[1, 2, 3]`)
	assert.ErrorIs(t, err, ErrNoJSONFound)

	got, err := Recover(`[{"a": "b"}]`)
	require.NoError(t, err)
	assert.Equal(t, Payload{"a": "b"}, got)
}

func TestNormalize(t *testing.T) {
	in := "```json\n{\"a\": [1, 2,],\n \"b\": 2,\n}\n```"
	assert.Equal(t, `{"a": [1, 2],  "b": 2}`, Normalize(in))
}

func TestRecover_NonFiniteNumbersBecomeNull(t *testing.T) {
	got, strategy, err := RecoverOrSalvage(`{"score": NaN, "range": [-Infinity, 1, Infinity], "note": "NaN stays", "tag": "Infinity: NaN"}`)
	require.NoError(t, err)
	assert.Equal(t, StrategyExtracted, strategy)
	assert.Equal(t, Payload{
		"score": nil,
		"range": []any{nil, json.Number("1"), nil},
		"note":  "NaN stays",
		"tag":   "Infinity: NaN",
	}, got)

	assert.Equal(t, `{"a": "x\\" , "b": null}`, Normalize(`{"a": "x\\" , "b": NaN}`))
	assert.Equal(t, `{"a": NaNa}`, Normalize(`{"a": NaNa}`))

	_, err = Recover(`{"a": NaNa}`)
	assert.ErrorIs(t, err, ErrMalformedJSON)
}

func TestSalvage(t *testing.T) {
	got, err := Salvage("noise {\"msg\": \"line one\\nline two\"} noise")
	require.NoError(t, err)
	assert.Equal(t, Payload{"msg": "line one\nline two"}, got)

	_, err = Salvage("nothing here")
	assert.ErrorIs(t, err, ErrNoJSONFound)
}

func TestRecoverOrSalvage(t *testing.T) {
	t.Run("direct", func(t *testing.T) {
		_, strategy, err := RecoverOrSalvage(`{"a": 1}`)
		require.NoError(t, err)
		assert.Equal(t, StrategyDirect, strategy)
	})

	t.Run("extracted", func(t *testing.T) {
		_, strategy, err := RecoverOrSalvage(`Sure! {"a": 1,}`)
		require.NoError(t, err)
		assert.Equal(t, StrategyExtracted, strategy)
	})

	t.Run("both fail returns recovery error", func(t *testing.T) {
		_, _, err := RecoverOrSalvage(`{"invalid": json}`)
		assert.ErrorIs(t, err, ErrMalformedJSON)
	})
}
