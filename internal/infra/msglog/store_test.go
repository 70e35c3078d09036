package msglog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"lead_notification_bot/internal/domain/message"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.ErrorLevel)
	return l
}

func sentEntry(phone, name string) message.Entry {
	return message.Entry{
		Phone:     phone,
		Name:      name,
		Timestamp: time.Now().Truncate(time.Second),
		Status:    message.StatusSent,
	}
}

func TestAppend_CreatesFileWithHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	s := NewMainStore(path, testLogger())
	defer s.Close()

	require.NoError(t, s.Append(sentEntry("919876543210", "Asha")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Phone,Name,Timestamp,Status,SeenTimestamp,TimeToSee,LastUpdated", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "919876543210,Asha,"))
	assert.True(t, strings.HasSuffix(string(data), "\n"))
}

func TestAppend_RepairsMissingTrailingNewline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	// Simulate a truncated prior write: last row has no newline.
	seed := "Phone,Name,Timestamp,Status,SeenTimestamp,TimeToSee,LastUpdated\n" +
		"919812345678,Ravi," + time.Now().Format(TimeLayout) + ",Sent,,,"
	require.NoError(t, os.WriteFile(path, []byte(seed), 0644))

	s := NewMainStore(path, testLogger())
	defer s.Close()
	require.NoError(t, s.Append(sentEntry("919876543210", "Asha")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 3, "new row must not merge with the truncated one")
	assert.True(t, strings.HasPrefix(lines[1], "919812345678,Ravi,"))
	assert.True(t, strings.HasPrefix(lines[2], "919876543210,Asha,"))
}

func TestAppend_SanitizesFreeText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	s := NewMainStore(path, testLogger())
	defer s.Close()

	e := sentEntry("919876543210", "Asha, M.\nPatel")
	require.NoError(t, s.Append(e))

	entries, err := s.Entries(time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Asha  M. Patel", entries[0].Name)
}

func TestPhones_FiltersByStatus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	s := NewMainStore(path, testLogger())
	defer s.Close()

	require.NoError(t, s.Append(sentEntry("911111111111", "A")))
	failed := sentEntry("912222222222", "B")
	failed.Status = message.StatusFailed
	require.NoError(t, s.Append(failed))
	invalid := sentEntry("913333333333", "C")
	invalid.Status = message.StatusInvalid
	require.NoError(t, s.Append(invalid))

	sent, err := s.Phones(message.StatusSent, message.StatusSeen, message.StatusInvalid)
	require.NoError(t, err)
	assert.True(t, sent["911111111111"])
	assert.False(t, sent["912222222222"], "Failed stays retry-eligible")
	assert.True(t, sent["913333333333"], "Invalid is terminal")

	all, err := s.Phones()
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestTransitionToSeen_IdempotentSingleRewrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	s := NewMainStore(path, testLogger())
	defer s.Close()

	sendTime := time.Now().Add(-90 * time.Second).Truncate(time.Second)
	require.NoError(t, s.Append(message.Entry{
		Phone: "919876543210", Name: "Asha", Timestamp: sendTime, Status: message.StatusSent,
	}))

	name, ok, err := s.TransitionToSeen("919876543210")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Asha", name)

	// Second call is a no-op.
	_, ok, err = s.TransitionToSeen("919876543210")
	require.NoError(t, err)
	assert.False(t, ok)

	entries, err := s.Entries(time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, entries, 1, "transition rewrites the row, it never appends")
	assert.Equal(t, message.StatusSeen, entries[0].Status)
	assert.GreaterOrEqual(t, entries[0].TimeToSeeSecs, int64(89))
	assert.False(t, entries[0].SeenTimestamp.IsZero())
	assert.False(t, entries[0].LastUpdated.IsZero())

	// Seen phones remain in the do-not-resend set.
	set, err := s.Phones(message.StatusSent, message.StatusSeen)
	require.NoError(t, err)
	assert.True(t, set["919876543210"])
}

func TestTransitionToSeen_NoSentRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	s := NewMainStore(path, testLogger())
	defer s.Close()

	_, ok, err := s.TransitionToSeen("919876543210")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTransitionToSeen_PicksMostRecentSentRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	s := NewMainStore(path, testLogger())
	defer s.Close()

	older := message.Entry{Phone: "919876543210", Name: "Asha",
		Timestamp: time.Now().Add(-time.Hour).Truncate(time.Second), Status: message.StatusSent}
	newer := message.Entry{Phone: "919876543210", Name: "Asha",
		Timestamp: time.Now().Truncate(time.Second), Status: message.StatusSent}
	require.NoError(t, s.Append(older))
	require.NoError(t, s.Append(newer))

	_, ok, err := s.TransitionToSeen("919876543210")
	require.NoError(t, err)
	require.True(t, ok)

	entries, err := s.Entries(time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, message.StatusSent, entries[0].Status, "older row untouched")
	assert.Equal(t, message.StatusSeen, entries[1].Status)
}

func TestEntries_DateRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	s := NewMainStore(path, testLogger())
	defer s.Close()

	old := sentEntry("911111111111", "Old")
	old.Timestamp = time.Now().AddDate(0, 0, -10).Truncate(time.Second)
	require.NoError(t, s.Append(old))
	require.NoError(t, s.Append(sentEntry("912222222222", "New")))

	from := time.Now().AddDate(0, 0, -1)
	entries, err := s.Entries(from, time.Time{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "912222222222", entries[0].Phone)
}

func TestCatalogStore_FourColumnRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.txt")
	s := NewCatalogStore(path, testLogger())
	defer s.Close()

	require.NoError(t, s.Append(sentEntry("919876543210", "Asha")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Phone,Name,Timestamp,Status", lines[0])
	assert.Equal(t, 4, len(strings.Split(lines[1], ",")))
}

func TestBackwardCompatible_OldFourColumnRowsInMainLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	seed := "Phone,Name,Timestamp,Status,SeenTimestamp,TimeToSee,LastUpdated\n" +
		"919812345678,Ravi," + time.Now().Add(-time.Hour).Format(TimeLayout) + ",Sent\n"
	require.NoError(t, os.WriteFile(path, []byte(seed), 0644))

	s := NewMainStore(path, testLogger())
	defer s.Close()

	set, err := s.Phones(message.StatusSent)
	require.NoError(t, err)
	assert.True(t, set["919812345678"])

	name, ok, err := s.TransitionToSeen("919812345678")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Ravi", name)
}

func TestAppend_RequeuesFailedWriteUntilPathIsWritable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	// Occupy the log path so every write fails.
	require.NoError(t, os.Mkdir(path, 0755))

	s := NewMainStore(path, testLogger())
	defer s.Close()

	require.NoError(t, s.Append(sentEntry("919876543210", "Asha")))

	// Free the path; the background flusher lands the row on its next retry.
	require.NoError(t, os.Remove(path))

	// The entry was held in the pending queue, not dropped: reads see it
	// whether or not the flusher has landed it yet.
	set, err := s.Phones(message.StatusSent)
	require.NoError(t, err)
	assert.True(t, set["919876543210"])
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(path)
		return err == nil && strings.Contains(string(data), "919876543210,Asha,")
	}, 6*time.Second, 100*time.Millisecond)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, mainHeader, lines[0])
}
