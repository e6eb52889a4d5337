package model

import "time"

// Thread is one reconstructed conversation from a single archive file.
type Thread struct {
	RootID     string
	Orphan     bool
	SourceFile string
	// Records are in export order: parents before children, otherwise by Before.
	Records []MailRecord
	// Parents maps a record id to its resolved parent id. Roots are absent.
	Parents map[string]string
	// Declared maps a record id to the parent id it declared but that could
	// not be found in the archive.
	Declared map[string]string
}

// Position is one slot of a filtered thread: either a kept record or the id
// of a dropped one.
type Position struct {
	ID      string
	Dropped bool
	Record  MailRecord
}

// Kept wraps a record that survives filtering.
func Kept(rec MailRecord) Position {
	return Position{ID: rec.ID, Record: rec}
}

// Dropped marks the slot of a filtered record. Only its id is retained.
func Dropped(id string) Position {
	return Position{ID: id, Dropped: true}
}

// FilteredThread is a thread after content filtering. Positions follow the
// order of Thread.Records one to one.
type FilteredThread struct {
	Thread    Thread
	Positions []Position
}

// DroppedCount returns the number of dropped positions.
func (f FilteredThread) DroppedCount() int {
	n := 0
	for _, p := range f.Positions {
		if p.Dropped {
			n++
		}
	}
	return n
}

// AllDropped reports whether no record survived filtering.
func (f FilteredThread) AllDropped() bool {
	return f.DroppedCount() == len(f.Positions)
}

// Metadata describes one exported thread.
type Metadata struct {
	MessageCount int        `json:"message_count"`
	DroppedCount int        `json:"dropped_count"`
	Participants []string   `json:"participants"`
	StartTime    *time.Time `json:"start_time"`
	EndTime      *time.Time `json:"end_time"`
	SourceFile   string     `json:"source_file"`
	ForumName    string     `json:"forum_name"`
	Orphan       bool       `json:"orphan"`
	RootID       string     `json:"root_id"`
	Subject      string     `json:"subject"`
	ContentHash  string     `json:"content_hash"`
}

// Export is a (content, metadata) pair handed to the output sink.
type Export struct {
	Content  string
	Metadata Metadata
}
