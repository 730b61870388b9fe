package shared

import "context"

type contextKey struct{}

// InvocationMetadata identifies the stage a tool call belongs to.
type InvocationMetadata struct {
	RunID    string
	Pipeline string
	Stage    string
	Agent    string
}

// WithInvocationMetadata injects tool invocation metadata into a context.
func WithInvocationMetadata(ctx context.Context, meta InvocationMetadata) context.Context {
	return context.WithValue(ctx, contextKey{}, meta)
}

// MetadataFromContext extracts invocation metadata if present.
func MetadataFromContext(ctx context.Context) (InvocationMetadata, bool) {
	meta, ok := ctx.Value(contextKey{}).(InvocationMetadata)
	return meta, ok
}

// logFields flattens the metadata for a logger.With call.
func (m InvocationMetadata) logFields() []interface{} {
	return []interface{}{"run_id", m.RunID, "pipeline", m.Pipeline, "stage", m.Stage, "agent", m.Agent}
}
