package sink

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dhcgn/mbox-curator/model"
)

type line struct {
	Metadata string `json:"metadata"`
	Content  string `json:"content"`
}

// JSONL writes <dir>/<group>.jsonl, one export per line. Without resume,
// group files of earlier runs are removed when the writer opens, so groups
// that produce nothing this run leave no stale output.
type JSONL struct {
	dir    string
	resume bool

	mu    sync.Mutex
	files map[string]*os.File
}

func NewJSONL(dir string, resume bool) (*JSONL, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	if !resume {
		if err := removeGroupFiles(dir); err != nil {
			return nil, err
		}
	}
	return &JSONL{dir: dir, resume: resume, files: make(map[string]*os.File)}, nil
}

func removeGroupFiles(dir string) error {
	stale, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	if err != nil {
		return fmt.Errorf("list group outputs: %w", err)
	}
	for _, path := range stale {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove stale group output: %w", err)
		}
	}
	return nil
}

// Path is the file that holds group.
func (j *JSONL) Path(group string) string {
	name := strings.NewReplacer("/", "_", string(os.PathSeparator), "_").Replace(group)
	return filepath.Join(j.dir, name+".jsonl")
}

func (j *JSONL) Write(group string, exports []model.Export) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := j.file(group)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, exp := range exports {
		meta, err := encodeMetadata(exp.Metadata)
		if err != nil {
			return err
		}
		if err := enc.Encode(line{Metadata: meta, Content: exp.Content}); err != nil {
			return fmt.Errorf("write %s: %w", f.Name(), err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w", f.Name(), err)
	}
	return nil
}

func (j *JSONL) file(group string) (*os.File, error) {
	if f, ok := j.files[group]; ok {
		return f, nil
	}
	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if !j.resume {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(j.Path(group), flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open group output: %w", err)
	}
	j.files[group] = f
	return f, nil
}

func (j *JSONL) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	var firstErr error
	for group, f := range j.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %s output: %w", group, err)
		}
		delete(j.files, group)
	}
	return firstErr
}
