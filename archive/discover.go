package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Job is one archive file to curate.
type Job struct {
	// Group is the newsgroup directory the file belongs to; it names the
	// output unit.
	Group string
	Path  string
}

// Forum is the archive's file name without compression suffix.
func (j Job) Forum() string {
	return strings.TrimSuffix(filepath.Base(j.Path), ".gz")
}

// Key identifies the job across runs.
func (j Job) Key() string {
	return j.Group + "/" + filepath.Base(j.Path)
}

func isArchive(name string) bool {
	return strings.HasSuffix(name, ".mbox.gz") || strings.HasSuffix(name, ".mbox")
}

// Discover lists the archives below rawDir: one sub-directory per group with
// .mbox.gz or .mbox files. Archives directly in rawDir are grouped under the
// name of rawDir itself. The result is sorted by group, then file name.
func Discover(rawDir string) ([]Job, error) {
	entries, err := os.ReadDir(rawDir)
	if err != nil {
		return nil, fmt.Errorf("read raw dir: %w", err)
	}

	var jobs []Job
	for _, entry := range entries {
		path := filepath.Join(rawDir, entry.Name())
		if !entry.IsDir() {
			if isArchive(entry.Name()) {
				jobs = append(jobs, Job{Group: filepath.Base(rawDir), Path: path})
			}
			continue
		}

		files, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("read group dir: %w", err)
		}
		for _, file := range files {
			if file.IsDir() || !isArchive(file.Name()) {
				continue
			}
			jobs = append(jobs, Job{Group: entry.Name(), Path: filepath.Join(path, file.Name())})
		}
	}

	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].Group != jobs[j].Group {
			return jobs[i].Group < jobs[j].Group
		}
		return jobs[i].Path < jobs[j].Path
	})
	return jobs, nil
}
