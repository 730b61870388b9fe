package noop

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kiiskristo/marketpulse-backend/pkg/errors"
)

func TestTracker_ImplementsInterface(t *testing.T) {
	var tr errors.Tracker = New()
	ctx := errors.WithRunID(context.Background(), "run-1")

	assert.NoError(t, tr.CaptureError(ctx, errors.ErrInternal, map[string]string{"stage": "keywords"}))
	assert.NoError(t, tr.CaptureMessage(ctx, "hello", errors.LevelInfo, nil))
	tr.AddBreadcrumb(ctx, "stage started", "pipeline", errors.LevelInfo, nil)
	assert.NoError(t, tr.Flush(ctx))

	id, ok := errors.RunID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "run-1", id)
}
