package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/kiiskristo/marketpulse-backend/internal/events"
	"github.com/kiiskristo/marketpulse-backend/internal/recovery"
	"github.com/kiiskristo/marketpulse-backend/pkg/errors"
)

// progressPrinter prints one line per event and keeps every stage payload.
type progressPrinter struct {
	mu      sync.Mutex
	out     io.Writer
	results map[string]recovery.Payload
}

func newProgressPrinter(out io.Writer) *progressPrinter {
	return &progressPrinter{out: out, results: map[string]recovery.Payload{}}
}

// Send implements pipeline.Sink.
func (p *progressPrinter) Send(e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var err error
	switch e.Type {
	case events.TypeStatus:
		_, err = fmt.Fprintf(p.out, "Status: %s\n", e.Message)
	case events.TypeTaskComplete:
		p.results[e.Task] = e.Data
		_, err = fmt.Fprintf(p.out, "Completed: %s\n", e.Task)
	case events.TypeError:
		_, err = fmt.Fprintf(p.out, "Error: %s\n", e.Message)
	case events.TypeComplete:
		_, err = fmt.Fprintf(p.out, "Analysis complete: %s\n", e.Message)
	}
	return err
}

// Results returns the payloads collected so far, keyed by stage.
func (p *progressPrinter) Results() map[string]recovery.Payload {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]recovery.Payload, len(p.results))
	for k, v := range p.results {
		out[k] = v
	}
	return out
}

func defaultOutputName(now time.Time) string {
	return fmt.Sprintf("market_analysis_%s.json", now.Format("2006-01-02"))
}

func saveResults(path string, results map[string]recovery.Payload) error {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode results")
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return nil
}

// printRecommendations prints the strategy stage's recommendations and
// summary, if that stage completed.
func printRecommendations(out io.Writer, results map[string]recovery.Payload) {
	recs, ok := results["recommendations"]
	if !ok {
		return
	}

	fmt.Fprintln(out, "\n=== TRADING RECOMMENDATIONS ===")
	if list, ok := recs["trading_recommendations"].([]any); ok {
		for _, item := range list {
			rec, ok := item.(map[string]any)
			if !ok {
				continue
			}
			fmt.Fprintf(out, "%s %s (%s) - Confidence: %s\n",
				strings.ToUpper(field(rec, "action")),
				field(rec, "ticker"),
				field(rec, "company"),
				field(rec, "confidence"),
			)
		}
	}

	if summary, ok := recs["summary"]; ok {
		fmt.Fprintln(out, "\nSummary:")
		fmt.Fprintln(out, stringify(summary))
	}
}

func field(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	return stringify(v)
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
