package logstore

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/distribd/distribd/pkg/distribdtypes"
	"github.com/distribd/distribd/pkg/log"
)

// Store is the durable, append-only log of (term, action) entries backing
// one consensus node. A Store is safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	path    string
	file    *os.File
	entries []distribdtypes.Entry
}

// Open loads the log at path, creating it if it does not yet exist, and
// returns a Store ready for Append/Read/TruncateSuffix.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	entries, err := load(path)
	if err != nil {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	return &Store{path: path, file: file, entries: entries}, nil
}

// load reads every line of path, discarding a trailing unparsable line
// (and truncating it from the file) and failing fatally on any earlier one.
func load(path string) ([]distribdtypes.Entry, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	var lines [][]byte
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := append([]byte(nil), scanner.Bytes()...)
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan log file: %w", err)
	}

	entries := make([]distribdtypes.Entry, 0, len(lines))
	for i, line := range lines {
		var entry distribdtypes.Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			if i == len(lines)-1 {
				log.Logger.Warn().Err(err).Str("path", path).Msg("discarding unparsable trailing log line")
				var keep int64
				for _, l := range lines[:i] {
					keep += int64(len(l)) + 1
				}
				if err := os.Truncate(path, keep); err != nil {
					return nil, fmt.Errorf("truncate unparsable trailing log line: %w", err)
				}
				break
			}
			return nil, fmt.Errorf("%w: line %d of %s: %v", distribdtypes.ErrLogCorrupt, i+1, path, err)
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// Append durably writes entry to the tail of the log and returns its
// 1-indexed position. It does not return until the line is fsynced.
func (s *Store) Append(entry distribdtypes.Entry) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	line, err := json.Marshal(entry)
	if err != nil {
		return 0, fmt.Errorf("marshal log entry: %w", err)
	}
	line = append(line, '\n')

	if _, err := s.file.Write(line); err != nil {
		return 0, fmt.Errorf("write log entry: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return 0, fmt.Errorf("fsync log entry: %w", err)
	}

	s.entries = append(s.entries, entry)
	return uint64(len(s.entries)), nil
}

// Read returns the entries at [from, from+count), 1-indexed. A count of 0
// or a from beyond the end of the log returns an empty slice.
func (s *Store) Read(from uint64, count int) []distribdtypes.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	if from < 1 || int(from) > len(s.entries) || count <= 0 {
		return nil
	}
	end := int(from) - 1 + count
	if end > len(s.entries) {
		end = len(s.entries)
	}
	out := make([]distribdtypes.Entry, end-int(from)+1)
	copy(out, s.entries[from-1:end])
	return out
}

// At returns the single entry at the 1-indexed position, or false if it is
// out of range.
func (s *Store) At(index uint64) (distribdtypes.Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 1 || int(index) > len(s.entries) {
		return distribdtypes.Entry{}, false
	}
	return s.entries[index-1], true
}

// TruncateSuffix removes every entry at index >= from (1-indexed) and
// rewrites the file durably. Used when a follower's log conflicts with the
// leader's and must be rolled back before accepting new entries.
func (s *Store) TruncateSuffix(from uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if from < 1 || int(from) > len(s.entries) {
		return nil
	}
	s.entries = s.entries[:from-1]
	return s.rewriteLocked()
}

func (s *Store) rewriteLocked() error {
	tmpPath := s.path + ".tmp"
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open temp log file: %w", err)
	}

	for _, entry := range s.entries {
		line, err := json.Marshal(entry)
		if err != nil {
			tmp.Close()
			return fmt.Errorf("marshal log entry: %w", err)
		}
		line = append(line, '\n')
		if _, err := tmp.Write(line); err != nil {
			tmp.Close()
			return fmt.Errorf("write temp log entry: %w", err)
		}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("fsync temp log file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp log file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rename temp log file: %w", err)
	}

	if err := s.file.Close(); err != nil {
		return fmt.Errorf("close log file: %w", err)
	}
	file, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("reopen log file: %w", err)
	}
	s.file = file
	return nil
}

// LastIndex returns the index of the final entry in the log, or 0 if empty.
func (s *Store) LastIndex() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return uint64(len(s.entries))
}

// LastTerm returns the term of the final entry in the log, or 0 if empty.
func (s *Store) LastTerm() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == 0 {
		return 0
	}
	return s.entries[len(s.entries)-1].Term
}

// TermAt returns the term of the entry at the 1-indexed position, or 0 if
// index is 0 (the sentinel "before the log began" position).
func (s *Store) TermAt(index uint64) (uint64, bool) {
	if index == 0 {
		return 0, true
	}
	entry, ok := s.At(index)
	if !ok {
		return 0, false
	}
	return entry.Term, true
}

// Close closes the underlying file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
