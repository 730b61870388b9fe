package shared

import (
	"context"
	"strings"
	"time"

	"google.golang.org/adk/tool"
	"google.golang.org/adk/tool/functiontool"

	"github.com/kiiskristo/marketpulse-backend/internal/adapters/adk"
	"github.com/kiiskristo/marketpulse-backend/pkg/errors"
)

// ToolFunc is the function signature for tool execution.
// Used by middleware to wrap tool functions. A is the arguments struct;
// its json and jsonschema tags become the schema the model sees.
type ToolFunc[A any] func(ctx context.Context, args A) (string, error)

// ToolBuilder provides a fluent API for creating tools with middleware.
type ToolBuilder[A any] struct {
	name        string
	description string
	fn          ToolFunc[A]
	deps        Deps

	timeout     time.Duration
	errorPrefix string
	withStats   bool
}

// NewToolBuilder creates a builder for a tool
func NewToolBuilder[A any](name, description string, fn ToolFunc[A], deps Deps) *ToolBuilder[A] {
	return &ToolBuilder[A]{
		name:        name,
		description: description,
		fn:          fn,
		deps:        deps,
	}
}

// WithTimeout bounds a single execution, retries included.
func (b *ToolBuilder[A]) WithTimeout(timeout time.Duration) *ToolBuilder[A] {
	b.timeout = timeout
	return b
}

// WithErrorText turns failures into "<prefix>: <error>" text for the model.
func (b *ToolBuilder[A]) WithErrorText(prefix string) *ToolBuilder[A] {
	b.errorPrefix = prefix
	return b
}

// WithStats enables metrics and logging of every execution
func (b *ToolBuilder[A]) WithStats() *ToolBuilder[A] {
	b.withStats = true
	return b
}

// Handler returns the tool function with middleware applied.
// Order from the inside out: timeout, stats, error text.
func (b *ToolBuilder[A]) Handler() ToolFunc[A] {
	fn := b.fn
	if fn == nil {
		name := b.name
		fn = func(context.Context, A) (string, error) {
			return "", errors.Newf("tool %s has no handler", name)
		}
	}

	if b.timeout > 0 {
		fn = wrapWithTimeout(b.timeout, fn)
	}
	if b.withStats {
		fn = wrapWithStats(NewStatsMiddleware(b.deps.Log), b.name, fn)
	}
	if b.errorPrefix != "" {
		fn = wrapWithErrorText(b.errorPrefix, fn)
	}
	return fn
}

// Build creates the ADK function tool. Its response carries the text
// output under adk.ResultKey; failures the handler did not turn into text
// are reported as "Error: <error>".
func (b *ToolBuilder[A]) Build() (tool.Tool, error) {
	handler := b.Handler()
	t, err := functiontool.New(
		functiontool.Config{
			Name:        b.name,
			Description: b.description,
		},
		func(ctx tool.Context, args A) (map[string]any, error) {
			out, err := handler(ctx, args)
			if err != nil {
				if ctx.Err() != nil {
					return nil, err
				}
				out = "Error: " + err.Error()
			}
			return map[string]any{adk.ResultKey: out}, nil
		})
	if err != nil {
		return nil, errors.Wrapf(err, "build tool %s", b.name)
	}
	return t, nil
}

// Required trims value and reports an empty one as a validation error of
// the named argument.
func Required(name, value string) (string, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return "", errors.NewValidationError(name, "must be a non-empty string", value)
	}
	return v, nil
}

func wrapWithTimeout[A any](timeout time.Duration, fn ToolFunc[A]) ToolFunc[A] {
	return func(ctx context.Context, args A) (string, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return fn(ctx, args)
	}
}

// wrapWithErrorText reports failures to the model instead of failing the
// stage. Cancellation of the caller still propagates.
func wrapWithErrorText[A any](prefix string, fn ToolFunc[A]) ToolFunc[A] {
	return func(ctx context.Context, args A) (string, error) {
		out, err := fn(ctx, args)
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return prefix + ": " + err.Error(), nil
	}
}
