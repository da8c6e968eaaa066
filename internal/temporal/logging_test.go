package temporal

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestLoggerAdapter(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewLoggerAdapter(zerolog.New(&buf))

	adapter.Info("batch done", "RunID", "r1", "Batches", 3, "dangling")

	out := buf.String()
	assert.Contains(t, out, `"RunID":"r1"`)
	assert.Contains(t, out, `"Batches":3`)
	assert.Contains(t, out, `"dangling":null`)
	assert.Contains(t, out, `"component":"temporal-sdk"`)
}
