package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/sessionrelay/internal/domain"
)

func newTestArchive(t *testing.T) *SQLiteArchive {
	t.Helper()
	archive, err := NewSQLiteArchive(":memory:")
	if err != nil {
		t.Fatalf("failed to create archive: %v", err)
	}
	t.Cleanup(func() { _ = archive.Close() })
	return archive
}

func TestArchiveSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	archive := newTestArchive(t)

	end := base.Add(time.Hour)
	session := domain.Session{
		ID:              "s1",
		SessionMetadata: domain.SessionMetadata{Title: "checkup", HealthInfoURL: "https://example.com/h/1"},
		CreateTime:      base,
		Status:          domain.SessionStatusEnded,
		EndTime:         &end,
	}
	user := newMessage("m1", base.Add(time.Minute))
	ai := newMessage("ai1", base.Add(2*time.Minute))
	ai.Sender = domain.SenderAI

	require.NoError(t, archive.ArchiveSession(ctx, session, []domain.Message{user, ai}))

	got, err := archive.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "checkup", got.Title)
	assert.Equal(t, domain.SessionStatusEnded, got.Status)
	require.NotNil(t, got.EndTime)
	assert.True(t, end.Equal(*got.EndTime))

	msgs, err := archive.GetMessages(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "m1", msgs[0].ID)
	assert.Equal(t, domain.SenderUser, msgs[0].Sender)
	assert.Equal(t, domain.SenderAI, msgs[1].Sender)
	assert.True(t, ai.SendTime.Equal(msgs[1].SendTime))
}

func TestArchiveSessionReplacesSnapshot(t *testing.T) {
	ctx := context.Background()
	archive := newTestArchive(t)

	session := domain.Session{ID: "s1", CreateTime: base, Status: domain.SessionStatusEnded}
	require.NoError(t, archive.ArchiveSession(ctx, session, []domain.Message{newMessage("m1", base)}))
	require.NoError(t, archive.ArchiveSession(ctx, session, []domain.Message{newMessage("m1", base), newMessage("m2", base)}))

	msgs, err := archive.GetMessages(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestArchiveGetSessionMissing(t *testing.T) {
	archive := newTestArchive(t)

	_, err := archive.GetSession(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	msgs, err := archive.GetMessages(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}
