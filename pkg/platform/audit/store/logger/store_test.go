package logger

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "certify/pkg/platform/audit"
)

func TestAppendWritesAuditLine(t *testing.T) {
	var buf bytes.Buffer
	store := New(slog.New(slog.NewTextHandler(&buf, nil)))

	err := store.Append(context.Background(), audit.Event{
		Category: audit.CategoryCompliance,
		Action:   string(audit.EventCertificateIssued),
		Subject:  "PSU-aB3dE9xY",
		ActorID:  "admin-1",
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "log_type=audit")
	assert.Contains(t, out, "event=certificate_issued")
	assert.Contains(t, out, "actor_id=admin-1")
	assert.NotContains(t, out, "client_ip")
}
