package filter

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
)

var ErrMissingDictionary = errors.New("disallowed-string dictionary not found")

// IsConfigurationError reports whether err means the dictionary could not be
// used at all. The run must stop before any archive is processed.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrEmptyDictionary) || errors.Is(err, ErrMissingDictionary)
}

// LoadDictionary reads a newline-delimited list of disallowed substrings.
// Surrounding whitespace is trimmed and blank lines are skipped; whitespace
// inside an entry is kept.
func LoadDictionary(path string) ([]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, ErrMissingDictionary
	}

	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrMissingDictionary, path)
	}
	if err != nil {
		return nil, fmt.Errorf("open dictionary: %w", err)
	}
	defer file.Close()

	var patterns []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		patterns = append(patterns, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read dictionary: %w", err)
	}

	if len(patterns) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyDictionary, path)
	}
	return patterns, nil
}

// NewAutomatonFromFile loads the dictionary at path and builds its automaton.
func NewAutomatonFromFile(path string) (*Automaton, error) {
	patterns, err := LoadDictionary(path)
	if err != nil {
		return nil, err
	}
	return Build(patterns)
}
