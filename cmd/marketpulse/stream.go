package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/r3labs/sse/v2"
	"github.com/spf13/cobra"
	"gopkg.in/cenkalti/backoff.v1"

	"github.com/kiiskristo/marketpulse-backend/internal/events"
	"github.com/kiiskristo/marketpulse-backend/pkg/errors"
)

var streamServer string

var streamCmd = &cobra.Command{
	Use:   "stream QUERY",
	Short: "Stream a search-rank analysis from a running server",
	Long: `Connect to a marketpulse server, stream the search-rank pipeline for a
brand and print each event as it arrives.

Examples:
  marketpulse stream "Acme Widgets"
  marketpulse stream --server https://api.example.com "Acme Widgets"
`,
	Args: cobra.MinimumNArgs(1),
	RunE: runStream,
}

func init() {
	streamCmd.Flags().StringVar(&streamServer, "server", "http://localhost:8000", "Base URL of the marketpulse server")
}

func runStream(cmd *cobra.Command, args []string) error {
	query := strings.TrimSpace(strings.Join(args, " "))
	if query == "" {
		return errors.NewValidationError("query", "query is required", query)
	}

	last, err := streamSearchRank(cmd.Context(), streamServer, query, func(e events.Event) {
		printEvent(cmd, e)
	})
	if err != nil {
		return err
	}
	if last.Type == events.TypeError {
		return errors.Newf("analysis failed: %s", last.Message)
	}
	return nil
}

// streamSearchRank subscribes to the search-rank stream of server and calls
// handle for every event until a terminal one arrives. It never reconnects:
// a reconnect would start a new run.
func streamSearchRank(ctx context.Context, server, query string, handle func(events.Event)) (events.Event, error) {
	endpoint := strings.TrimRight(server, "/") + "/api/search-rank/stream?query=" + url.QueryEscape(query)

	client := sse.NewClient(endpoint)
	client.Connection = &http.Client{}
	client.ReconnectStrategy = &backoff.StopBackOff{}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		last     events.Event
		terminal bool
		parseErr error
	)
	err := client.SubscribeRawWithContext(ctx, func(msg *sse.Event) {
		if terminal || len(msg.Data) == 0 {
			return
		}
		e, err := events.Parse(msg.Data)
		if err != nil {
			parseErr = err
			cancel()
			return
		}
		last = e
		handle(e)
		if e.Type.IsTerminal() {
			terminal = true
			cancel()
		}
	})

	switch {
	case parseErr != nil:
		return last, parseErr
	case terminal:
		return last, nil
	case err != nil:
		return last, errors.Wrapf(err, "stream from %s", server)
	default:
		return last, errors.Wrap(errors.ErrUnavailable, "stream ended before the analysis finished")
	}
}

func printEvent(cmd *cobra.Command, e events.Event) {
	out := cmd.OutOrStdout()
	switch e.Type {
	case events.TypeTaskComplete:
		fmt.Fprintf(out, "[%s] %s\n", e.Type, e.Task)
		if data, err := events.Encode(e, events.FormatNDJSON); err == nil {
			fmt.Fprintf(out, "  %s", data)
		}
	default:
		fmt.Fprintf(out, "[%s] %s\n", e.Type, e.Message)
	}
}
