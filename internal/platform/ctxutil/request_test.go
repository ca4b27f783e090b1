package ctxutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestMetaRoundTrip(t *testing.T) {
	_, ok := RequestMetaFrom(context.Background())
	assert.False(t, ok)

	ctx := WithRequestMeta(context.Background(), RequestMeta{RequestID: "r1", Route: "/api/task"})
	meta, ok := RequestMetaFrom(ctx)
	assert.True(t, ok)
	assert.Equal(t, "r1", meta.RequestID)
	assert.Equal(t, map[string]any{"request_id": "r1", "route": "/api/task"}, meta.TxMetadata())
}
