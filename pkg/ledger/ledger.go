// Package ledger is the durable hand-off point between the swap-serving
// process and the sweep daemon: one record per subaddress whose funds still
// need to be swept to a destination address.
package ledger

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Record notes that a subaddress's funds must eventually be swept to a
// specific destination.
type Record struct {
	// SubaddressIndex is the wallet subaddress holding the funds.
	SubaddressIndex uint32

	// TargetAddress is where the sweep sends the funds: the service's
	// settlement address on success, the payer's refund address otherwise.
	TargetAddress string

	// CreatedAt is when the record was written.
	CreatedAt time.Time
}

// Entry is a stored record together with its key.
type Entry struct {
	ID     string
	Record Record
}

// Store is a keyed record store. Put overwrites any existing record for the
// same key, so writes are idempotent per swap session.
type Store interface {
	Put(id string, rec Record) error
	List() ([]Entry, error)
	Delete(id string) error
}

// FileStore keeps one two-line text file per record in a directory. Records
// survive process restarts; the sweep daemon is the sole deleter.
type FileStore struct {
	dir    string
	logger *slog.Logger
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates the directory if needed and returns a store over it.
func NewFileStore(dir string, logger *slog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create ledger directory: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{dir: dir, logger: logger}, nil
}

// Dir returns the directory backing this store.
func (s *FileStore) Dir() string {
	return s.dir
}

// Put writes the record for the given session id, replacing any previous one.
func (s *FileStore) Put(id string, rec Record) error {
	content := fmt.Sprintf("Subaddress Index: %d\nTarget Address: %s\n", rec.SubaddressIndex, rec.TargetAddress)

	// Write to a temporary file first, then rename for an atomic replace.
	path := s.path(id)
	tempFile := path + ".tmp"
	if err := os.WriteFile(tempFile, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := os.Rename(tempFile, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// List enumerates all records in the directory. Malformed files are skipped
// with a warning and left in place.
func (s *FileStore) List() ([]Entry, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger directory: %w", err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".txt") {
			continue
		}

		path := filepath.Join(s.dir, de.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read record %s: %w", de.Name(), err)
		}

		rec, err := ParseRecord(string(data))
		if err != nil {
			s.logger.Warn("skipping malformed ledger record",
				"file", path, "error", err)
			continue
		}

		info, err := de.Info()
		if err == nil {
			rec.CreatedAt = info.ModTime()
		}

		entries = append(entries, Entry{
			ID:     strings.TrimSuffix(de.Name(), ".txt"),
			Record: *rec,
		})
	}

	return entries, nil
}

// Delete removes the record for the given session id.
func (s *FileStore) Delete(id string) error {
	if err := os.Remove(s.path(id)); err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return nil
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+".txt")
}

// ParseRecord parses the two-line record format. Fewer than two lines, or a
// line missing its value, is malformed.
func ParseRecord(content string) (*Record, error) {
	lines := strings.Split(strings.TrimSpace(content), "\n")
	if len(lines) < 2 {
		return nil, fmt.Errorf("insufficient content: %d lines", len(lines))
	}

	indexStr, ok := lineValue(lines[0])
	if !ok {
		return nil, fmt.Errorf("missing subaddress index line")
	}
	index, err := strconv.ParseUint(indexStr, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid subaddress index %q: %w", indexStr, err)
	}

	target, ok := lineValue(lines[1])
	if !ok {
		return nil, fmt.Errorf("missing target address line")
	}

	return &Record{
		SubaddressIndex: uint32(index),
		TargetAddress:   target,
	}, nil
}

// lineValue extracts the value after the last colon of a "Key: value" line.
func lineValue(line string) (string, bool) {
	idx := strings.LastIndex(line, ":")
	if idx < 0 {
		return "", false
	}
	value := strings.TrimSpace(line[idx+1:])
	if value == "" {
		return "", false
	}
	return value, true
}
