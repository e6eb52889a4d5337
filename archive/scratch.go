package archive

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/gzip"
)

// Scratch is the private decompression directory of one worker. Workers never
// share a scratch directory, so clearing one cannot disturb another.
type Scratch struct {
	dir    string
	logger *slog.Logger
}

// NewScratch creates a fresh directory below parent.
func NewScratch(parent string, logger *slog.Logger) (*Scratch, error) {
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch parent: %w", err)
	}
	dir, err := os.MkdirTemp(parent, "mbox-curator-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	return &Scratch{dir: dir, logger: logger}, nil
}

func (s *Scratch) Dir() string {
	return s.dir
}

// Decompress returns a path to the plain mbox for src. Gzip archives are
// expanded into the scratch directory; anything else is used in place.
func (s *Scratch) Decompress(src string) (string, error) {
	if !strings.HasSuffix(src, ".gz") {
		return src, nil
	}

	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("open archive: %w", err)
	}
	defer in.Close()

	zr, err := gzip.NewReader(in)
	if err != nil {
		return "", fmt.Errorf("gzip header: %w", err)
	}
	defer zr.Close()

	dst := filepath.Join(s.dir, strings.TrimSuffix(filepath.Base(src), ".gz"))
	out, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("create scratch file: %w", err)
	}

	n, err := io.Copy(out, zr)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(dst)
		return "", fmt.Errorf("decompress %s: %w", src, err)
	}

	if s.logger != nil {
		s.logger.Debug("decompressed archive", "src", src, "dst", dst, "size", humanize.Bytes(uint64(n)))
	}
	return dst, nil
}

// Release removes path if it lives in the scratch directory.
func (s *Scratch) Release(path string) error {
	if filepath.Dir(path) != s.dir {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove scratch file: %w", err)
	}
	return nil
}

// Close deletes the scratch directory and everything left in it.
func (s *Scratch) Close() error {
	return os.RemoveAll(s.dir)
}
