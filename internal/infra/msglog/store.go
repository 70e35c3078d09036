// internal/infra/msglog/store.go
package msglog

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"lead_notification_bot/internal/domain/message"

	"github.com/sirupsen/logrus"
)

// TimeLayout is the row timestamp format. It contains no commas so rows stay
// parseable by a plain split.
const TimeLayout = "2006-01-02 15:04:05"

const (
	mainHeader    = "Phone,Name,Timestamp,Status,SeenTimestamp,TimeToSee,LastUpdated"
	catalogHeader = "Phone,Name,Timestamp,Status"

	initialRetryDelay = 2 * time.Second
	maxRetryDelay     = 1 * time.Minute
)

// Store is a file-backed append-only message log. All mutations serialize
// through one mutex per store so interleaved appends and rewrites cannot race
// on the newline-repair check or corrupt the file. Failed writes are pushed
// back to the front of the pending queue and retried with backoff by a
// background flusher; they are never dropped.
type Store struct {
	path     string
	header   string
	withSeen bool
	logger   *logrus.Logger

	mu       sync.Mutex // guards the file and everything below
	pending  []message.Entry
	seenOnce map[string]bool

	cacheMtime time.Time
	cacheRows  []message.Entry

	retryDelay time.Duration
	stop       chan struct{}
	stopOnce   sync.Once
}

// NewMainStore opens the main message log (with Seen transition columns).
func NewMainStore(path string, logger *logrus.Logger) *Store {
	return newStore(path, mainHeader, true, logger)
}

// NewCatalogStore opens the catalog log (append-only, no transitions).
func NewCatalogStore(path string, logger *logrus.Logger) *Store {
	return newStore(path, catalogHeader, false, logger)
}

func newStore(path, header string, withSeen bool, logger *logrus.Logger) *Store {
	s := &Store{
		path:       path,
		header:     header,
		withSeen:   withSeen,
		logger:     logger,
		seenOnce:   make(map[string]bool),
		retryDelay: initialRetryDelay,
		stop:       make(chan struct{}),
	}
	go s.flushLoop()
	return s
}

// Close stops the background flusher after a final drain attempt.
func (s *Store) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.drainLocked(); err != nil {
		s.logger.Errorf("Log store %s: %d entries still pending at close: %v", s.path, len(s.pending), err)
	}
}

// Append queues one record and attempts to write it through immediately.
// Write failures are retried in the background; Append itself only reports
// them, it does not fail the caller.
func (s *Store) Append(entry message.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = append(s.pending, entry)
	if err := s.drainLocked(); err != nil {
		s.logger.Errorf("Log store %s: append deferred, will retry: %v", s.path, err)
	}
	return nil
}

// drainLocked writes every pending entry in order. On failure the unwritten
// entries (failed one first) stay at the front of the queue. Caller holds mu.
func (s *Store) drainLocked() error {
	for len(s.pending) > 0 {
		if err := s.writeRow(s.pending[0]); err != nil {
			return &message.PersistenceError{Path: s.path, Err: err}
		}
		s.pending = s.pending[1:]
	}
	s.retryDelay = initialRetryDelay
	return nil
}

func (s *Store) flushLoop() {
	for {
		s.mu.Lock()
		delay := s.retryDelay
		s.mu.Unlock()

		select {
		case <-s.stop:
			return
		case <-time.After(delay):
		}

		s.mu.Lock()
		if len(s.pending) > 0 {
			if err := s.drainLocked(); err != nil {
				s.retryDelay = s.retryDelay * 2
				if s.retryDelay > maxRetryDelay {
					s.retryDelay = maxRetryDelay
				}
				s.logger.Warnf("Log store %s: retry in %s, %d pending: %v", s.path, s.retryDelay, len(s.pending), err)
			} else {
				s.logger.Infof("Log store %s: pending entries flushed.", s.path)
			}
		}
		s.mu.Unlock()
	}
}

// writeRow appends one sanitized row, creating the file with its header when
// absent and repairing a missing trailing newline left by a truncated prior
// write. Caller holds mu.
func (s *Store) writeRow(entry message.Entry) error {
	if err := s.ensureFile(); err != nil {
		return err
	}

	f, err := os.OpenFile(s.path, os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open for append: %w", err)
	}
	defer f.Close()

	ok, err := endsWithNewline(s.path)
	if err != nil {
		return err
	}
	if !ok {
		if _, err := f.WriteString("\n"); err != nil {
			return fmt.Errorf("newline repair: %w", err)
		}
	}

	if _, err := f.WriteString(s.formatRow(entry) + "\n"); err != nil {
		return fmt.Errorf("append row: %w", err)
	}
	// Filesystem mtime granularity can hide same-second appends from the
	// mtime check, so drop the cache explicitly.
	s.cacheMtime = time.Time{}
	s.cacheRows = nil
	return nil
}

func (s *Store) ensureFile() error {
	if _, err := os.Stat(s.path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat log file: %w", err)
	}
	if err := os.WriteFile(s.path, []byte(s.header+"\n"), 0644); err != nil {
		return fmt.Errorf("create log file: %w", err)
	}
	return nil
}

func endsWithNewline(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("open for newline check: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return false, fmt.Errorf("stat for newline check: %w", err)
	}
	if info.Size() == 0 {
		return true, nil
	}
	buf := make([]byte, 1)
	if _, err := f.ReadAt(buf, info.Size()-1); err != nil {
		return false, fmt.Errorf("read last byte: %w", err)
	}
	return buf[0] == '\n', nil
}

func (s *Store) formatRow(e message.Entry) string {
	fields := []string{
		sanitizeField(e.Phone),
		sanitizeField(e.Name),
		e.Timestamp.Format(TimeLayout),
		string(e.Status),
	}
	if s.withSeen {
		seen, updated := "", ""
		ttl := ""
		if !e.SeenTimestamp.IsZero() {
			seen = e.SeenTimestamp.Format(TimeLayout)
			ttl = strconv.FormatInt(e.TimeToSeeSecs, 10)
		}
		if !e.LastUpdated.IsZero() {
			updated = e.LastUpdated.Format(TimeLayout)
		}
		fields = append(fields, seen, ttl, updated)
	}
	return strings.Join(fields, ",")
}

// sanitizeField strips the characters that would break the row format.
func sanitizeField(v string) string {
	v = strings.ReplaceAll(v, ",", " ")
	v = strings.ReplaceAll(v, "\n", " ")
	v = strings.ReplaceAll(v, "\r", " ")
	return strings.TrimSpace(v)
}

// Phones replays the log and returns the set of phones whose row status
// matches the filter (any row; the filter is usually Sent+Seen+Invalid to
// build the do-not-resend set). No filter returns every phone.
func (s *Store) Phones(statuses ...message.Status) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.rowsLocked()
	if err != nil {
		return nil, err
	}

	want := make(map[message.Status]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}

	set := make(map[string]bool)
	for _, r := range rows {
		if len(want) == 0 || want[r.Status] {
			set[r.Phone] = true
		}
	}
	return set, nil
}

// Entries returns rows whose send timestamp falls in the inclusive range.
// Zero bounds are unbounded.
func (s *Store) Entries(from, to time.Time) ([]message.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.rowsLocked()
	if err != nil {
		return nil, err
	}

	var out []message.Entry
	for _, r := range rows {
		if !from.IsZero() && r.Timestamp.Before(from) {
			continue
		}
		if !to.IsZero() && r.Timestamp.After(to) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// TransitionToSeen rewrites the most recent Sent row for phone to Seen,
// recording the seen timestamp and elapsed seconds since the send. It is
// idempotent: at most one row per phone ever transitions, and a second call
// returns ok=false without touching the file.
func (s *Store) TransitionToSeen(phone string) (string, bool, error) {
	if !s.withSeen {
		return "", false, fmt.Errorf("store %s does not track seen transitions", s.path)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seenOnce[phone] {
		return "", false, nil
	}

	// Queued rows must hit the file before the rewrite scan.
	if err := s.drainLocked(); err != nil {
		return "", false, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read log for transition: %w", err)
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	idx := -1
	for i := len(lines) - 1; i >= 1; i-- { // line 0 is the header
		e, ok := s.parseRow(lines[i])
		if ok && e.Phone == phone && e.Status == message.StatusSent {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", false, nil
	}

	entry, _ := s.parseRow(lines[idx])
	now := time.Now()
	entry.Status = message.StatusSeen
	entry.SeenTimestamp = now
	entry.TimeToSeeSecs = int64(now.Sub(entry.Timestamp).Seconds())
	entry.LastUpdated = now
	lines[idx] = s.formatRow(entry)

	if err := os.WriteFile(s.path, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		return "", false, &message.PersistenceError{Path: s.path, Err: err}
	}

	s.seenOnce[phone] = true
	s.cacheMtime = time.Time{} // force re-read
	return entry.Name, true, nil
}

// rowsLocked returns the parsed file contents, re-reading only when the file
// changed on disk since the last read. Caller holds mu. Pending entries are
// counted as rows so callers never miss an entry that is mid-retry.
func (s *Store) rowsLocked() ([]message.Entry, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return append([]message.Entry(nil), s.pending...), nil
		}
		return nil, fmt.Errorf("stat log file: %w", err)
	}

	if !info.ModTime().Equal(s.cacheMtime) || s.cacheRows == nil {
		data, err := os.ReadFile(s.path)
		if err != nil {
			return nil, fmt.Errorf("read log file: %w", err)
		}
		var rows []message.Entry
		for i, line := range strings.Split(string(data), "\n") {
			if i == 0 || strings.TrimSpace(line) == "" {
				continue
			}
			if e, ok := s.parseRow(line); ok {
				rows = append(rows, e)
			}
		}
		s.cacheRows = rows
		s.cacheMtime = info.ModTime()
	}

	out := append([]message.Entry(nil), s.cacheRows...)
	return append(out, s.pending...), nil
}

// parseRow tolerates old rows without the trailing Seen columns.
func (s *Store) parseRow(line string) (message.Entry, bool) {
	parts := strings.Split(line, ",")
	if len(parts) < 4 {
		return message.Entry{}, false
	}

	ts, err := time.Parse(TimeLayout, parts[2])
	if err != nil {
		return message.Entry{}, false
	}

	e := message.Entry{
		Phone:     parts[0],
		Name:      parts[1],
		Timestamp: ts,
		Status:    message.Status(parts[3]),
	}
	if len(parts) >= 7 {
		if t, err := time.Parse(TimeLayout, parts[4]); err == nil {
			e.SeenTimestamp = t
		}
		if n, err := strconv.ParseInt(parts[5], 10, 64); err == nil {
			e.TimeToSeeSecs = n
		}
		if t, err := time.Parse(TimeLayout, parts[6]); err == nil {
			e.LastUpdated = t
		}
	}
	return e, true
}
