package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T, redact bool) *bytes.Buffer {
	t.Helper()
	prev := std
	t.Cleanup(func() { std = prev })

	var buf bytes.Buffer
	std = newLogger(&buf, redact)
	return &buf
}

func TestInfo_WritesJSONWithFields(t *testing.T) {
	buf := capture(t, true)

	Info("campaign sent", "campaign_id", "c-1", "client_email", "jane.doe@example.com", "err", errors.New("x"))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "campaign sent", entry["msg"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "c-1", entry["campaign_id"])
	assert.Equal(t, "ja***@example.com", entry["client_email"])
	assert.Equal(t, "x", entry["err"])
}

func TestRedaction(t *testing.T) {
	buf := capture(t, true)
	Warn("delivery failed for bob@example.org", "phone", "+1 555 201 7788", "content", "hello there")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "delivery failed for bo***@example.org", entry["msg"])
	assert.Equal(t, "***7788", entry["phone"])
	assert.Equal(t, "[11 chars]", entry["content"])
}

func TestDebugSuppressedAtInfo(t *testing.T) {
	buf := capture(t, false)
	Debug("noisy")
	assert.Zero(t, buf.Len())
}

func TestConfigure_BadLevel(t *testing.T) {
	prev := std
	t.Cleanup(func() { std = prev })
	assert.Error(t, Configure(Options{Level: "loud"}))
}

func TestRedactHelpers(t *testing.T) {
	assert.Equal(t, "***@example.com", RedactEmail("ab@example.com"))
	assert.Equal(t, "***@***", RedactEmail("not-an-email"))
	assert.Equal(t, "***", RedactPhone("123"))
}
