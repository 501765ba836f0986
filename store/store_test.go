package store

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndGetSession(t *testing.T) {
	s := openTestStore(t)

	sess, err := s.CreateSession("/tmp/proj", "my session", "hello")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, StatusIdle, sess.Status)
	assert.Equal(t, "hello", sess.LastPrompt)
	assert.Equal(t, sess.CreatedAt, sess.UpdatedAt)

	got, err := s.GetSession(sess.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, sess.ID, got.ID)
	assert.Equal(t, "/tmp/proj", got.Cwd)
}

func TestGetSessionAbsent(t *testing.T) {
	s := openTestStore(t)

	got, err := s.GetSession("nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUpdateSessionMergesFields(t *testing.T) {
	s := openTestStore(t)

	sess, err := s.CreateSession("", "t", "p")
	require.NoError(t, err)

	err = s.UpdateSession(sess.ID, SessionUpdate{
		Status:        Ptr(StatusRunning),
		AgentResumeID: Ptr("resume-1"),
	})
	require.NoError(t, err)

	got, err := s.GetSession(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, got.Status)
	assert.Equal(t, "resume-1", got.AgentResumeID)
	// Untouched fields survive
	assert.Equal(t, "t", got.Title)
	assert.True(t, got.UpdatedAt.After(sess.UpdatedAt) || got.UpdatedAt.Equal(sess.UpdatedAt))
}

func TestUpdateSessionUnknownIDIsNoOp(t *testing.T) {
	s := openTestStore(t)

	err := s.UpdateSession("ghost", SessionUpdate{Status: Ptr(StatusError)})
	require.NoError(t, err)
}

func TestListSessionsOrderedByRecency(t *testing.T) {
	s := openTestStore(t)

	a, err := s.CreateSession("", "a", "")
	require.NoError(t, err)
	b, err := s.CreateSession("", "b", "")
	require.NoError(t, err)

	// Touch a so it becomes the most recent
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, s.UpdateSession(a.ID, SessionUpdate{LastPrompt: Ptr("again")}))

	sessions, err := s.ListSessions()
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, a.ID, sessions[0].ID)
	assert.Equal(t, b.ID, sessions[1].ID)
}

func TestRecordMessageAndHistoryOrder(t *testing.T) {
	s := openTestStore(t)

	sess, err := s.CreateSession("", "t", "")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		payload := json.RawMessage(fmt.Sprintf(`{"type":"assistant","n":%d}`, i))
		require.NoError(t, s.RecordMessage(sess.ID, payload))
	}

	hist, err := s.GetSessionHistory(sess.ID)
	require.NoError(t, err)
	require.NotNil(t, hist)
	require.Len(t, hist.Messages, 5)
	for i, msg := range hist.Messages {
		assert.JSONEq(t, fmt.Sprintf(`{"type":"assistant","n":%d}`, i), string(msg))
	}
}

func TestGetSessionHistoryAbsent(t *testing.T) {
	s := openTestStore(t)

	hist, err := s.GetSessionHistory("nope")
	require.NoError(t, err)
	assert.Nil(t, hist)
}

func TestDeleteSessionRemovesMessages(t *testing.T) {
	s := openTestStore(t)

	sess, err := s.CreateSession("", "t", "")
	require.NoError(t, err)
	require.NoError(t, s.RecordMessage(sess.ID, json.RawMessage(`{"type":"assistant"}`)))

	require.NoError(t, s.DeleteSession(sess.ID))

	got, err := s.GetSession(sess.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	var count int64
	require.NoError(t, s.db.Model(&MessageRecord{}).Where("session_id = ?", sess.ID).Count(&count).Error)
	assert.Zero(t, count)
}

func TestDeleteSessionIdempotent(t *testing.T) {
	s := openTestStore(t)

	sess, err := s.CreateSession("", "t", "")
	require.NoError(t, err)

	require.NoError(t, s.DeleteSession(sess.ID))
	require.NoError(t, s.DeleteSession(sess.ID))
	require.NoError(t, s.DeleteSession("never-existed"))
}

func TestListRecentCwds(t *testing.T) {
	s := openTestStore(t)

	a, err := s.CreateSession("/proj/a", "a", "")
	require.NoError(t, err)
	_, err = s.CreateSession("/proj/b", "b", "")
	require.NoError(t, err)
	_, err = s.CreateSession("", "no-cwd", "")
	require.NoError(t, err)

	// Another session in /proj/a, later: /proj/a stays deduplicated and first
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, s.UpdateSession(a.ID, SessionUpdate{LastPrompt: Ptr("x")}))

	cwds, err := s.ListRecentCwds(10)
	require.NoError(t, err)
	assert.Equal(t, []string{"/proj/a", "/proj/b"}, cwds)

	cwds, err = s.ListRecentCwds(1)
	require.NoError(t, err)
	assert.Equal(t, []string{"/proj/a"}, cwds)

	cwds, err = s.ListRecentCwds(0)
	require.NoError(t, err)
	assert.Empty(t, cwds)
}
