// Package sink persists exported threads.
package sink

import (
	"encoding/json"
	"fmt"

	"github.com/dhcgn/mbox-curator/model"
)

// Writer receives the exports of one archive file at a time. Group names
// the output unit the file belongs to.
type Writer interface {
	Write(group string, exports []model.Export) error
	Close() error
}

// Open returns the writer for kind below outputDir. With resume, existing
// output is appended to instead of replaced.
func Open(kind, outputDir string, resume bool) (Writer, error) {
	switch kind {
	case "jsonl":
		return NewJSONL(outputDir, resume)
	case "sqlite":
		return NewSQLite(outputDir, resume)
	default:
		return nil, fmt.Errorf("unknown sink %q", kind)
	}
}

func encodeMetadata(meta model.Metadata) (string, error) {
	data, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(data), nil
}
