// Package report writes the per-run outcome log, one line per archive file.
package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Log is safe for concurrent use.
type Log struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
	path   string
}

func New(w io.Writer) *Log {
	return &Log{w: w}
}

// Create truncates <dir>/curate_<YYYYmmddHHMMSS>.log for the run started at now.
func Create(dir string, now time.Time) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}
	path := filepath.Join(dir, "curate_"+now.Format("20060102150405")+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create report: %w", err)
	}
	return &Log{w: f, closer: f, path: path}, nil
}

func (l *Log) Path() string {
	return l.path
}

func (l *Log) Success(file string, threads int) error {
	return l.line(fmt.Sprintf("Success %s: includes %d", file, threads))
}

func (l *Log) Error(file string, err error) error {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return l.line(fmt.Sprintf("Error %s: %s", file, oneLine(msg)))
}

func (l *Log) line(s string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := io.WriteString(l.w, s+"\n")
	return err
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(strings.NewReplacer("\r", " ", "\n", " ").Replace(s)), " ")
}

func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closer == nil {
		return nil
	}
	err := l.closer.Close()
	l.closer = nil
	return err
}
