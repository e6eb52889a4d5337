package state

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Tracker remembers which archive files were fully curated and written.
type Tracker interface {
	AlreadyProcessed(key string) bool
	MarkProcessed(key string, threads int) error
	Snapshot() Snapshot
}

type Snapshot struct {
	Processed int
	Threads   int
}

type MemoryTracker struct {
	mu        sync.RWMutex
	processed map[string]int
}

func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{processed: make(map[string]int)}
}

func (m *MemoryTracker) AlreadyProcessed(key string) bool {
	if key == "" {
		return false
	}

	m.mu.RLock()
	_, ok := m.processed[key]
	m.mu.RUnlock()
	return ok
}

func (m *MemoryTracker) MarkProcessed(key string, threads int) error {
	if key == "" {
		return nil
	}

	m.mu.Lock()
	m.processed[key] = threads
	m.mu.Unlock()
	return nil
}

func (m *MemoryTracker) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := Snapshot{Processed: len(m.processed)}
	for _, n := range m.processed {
		s.Threads += n
	}
	return s
}

// FileTracker persists completed archive keys so a resumed run can skip them.
type FileTracker struct {
	*MemoryTracker
	path    string
	writer  *bufio.Writer
	file    *os.File
	writeMu sync.Mutex
}

type fileRecord struct {
	Key       string    `json:"key"`
	Threads   int       `json:"threads"`
	Completed time.Time `json:"completed"`
}

// NewFileTracker opens <stateDir>/processed.jsonl. Without resume the file is
// truncated so a fresh run starts from nothing.
func NewFileTracker(stateDir string, resume bool) (*FileTracker, error) {
	if strings.TrimSpace(stateDir) == "" {
		return nil, fmt.Errorf("state directory is empty")
	}

	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	tracker := &FileTracker{
		MemoryTracker: NewMemoryTracker(),
		path:          filepath.Join(stateDir, "processed.jsonl"),
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if resume {
		if err := tracker.load(); err != nil {
			return nil, err
		}
	} else {
		flags |= os.O_TRUNC
	}

	file, err := os.OpenFile(tracker.path, flags, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open state file for append: %w", err)
	}
	tracker.file = file
	tracker.writer = bufio.NewWriterSize(file, 16*1024)

	return tracker, nil
}

func (f *FileTracker) Path() string {
	return f.path
}

func (f *FileTracker) load() error {
	file, err := os.Open(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open state file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for line := 1; scanner.Scan(); line++ {
		text := scanner.Bytes()
		if len(text) == 0 {
			continue
		}

		var record fileRecord
		if err := json.Unmarshal(text, &record); err != nil {
			return fmt.Errorf("parse state line %d: %w", line, err)
		}
		if record.Key == "" {
			continue
		}

		f.mu.Lock()
		f.processed[record.Key] = record.Threads
		f.mu.Unlock()
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read state file: %w", err)
	}

	return nil
}

// MarkProcessed records key and flushes it, so a crash right after a file
// was written never causes that file to be exported twice on resume.
func (f *FileTracker) MarkProcessed(key string, threads int) error {
	if key == "" {
		return nil
	}

	f.mu.Lock()
	if _, exists := f.processed[key]; exists {
		f.mu.Unlock()
		return nil
	}
	f.processed[key] = threads
	f.mu.Unlock()

	data, err := json.Marshal(fileRecord{Key: key, Threads: threads, Completed: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("encode state record: %w", err)
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	if _, err := f.writer.Write(data); err != nil {
		return fmt.Errorf("write state record: %w", err)
	}
	if err := f.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}
	if err := f.writer.Flush(); err != nil {
		return fmt.Errorf("flush state file: %w", err)
	}
	return nil
}

// Close flushes and closes the state file.
func (f *FileTracker) Close() error {
	if f.file == nil {
		return nil
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	var firstErr error
	if err := f.writer.Flush(); err != nil {
		firstErr = fmt.Errorf("flush state file: %w", err)
	}
	if err := f.file.Sync(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("sync state file: %w", err)
	}
	if err := f.file.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close state file: %w", err)
	}
	f.file = nil

	return firstErr
}
