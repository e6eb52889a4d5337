package model

import "time"

// MailRecord represents a single email message extracted from an mbox archive.
type MailRecord struct {
	ID                string
	InReplyTo         string
	References        []string
	Subject           string
	NormalizedSubject string
	Author            string
	Timestamp         time.Time
	Body              string
	// Index is the zero-based position of the record in its archive file.
	Index int
}

// HasTimestamp reports whether the Date header could be parsed.
func (r MailRecord) HasTimestamp() bool {
	return !r.Timestamp.IsZero()
}

// DeclaresParent reports whether the record names any parent other than itself.
func (r MailRecord) DeclaresParent() bool {
	if r.InReplyTo != "" && r.InReplyTo != r.ID {
		return true
	}
	for _, ref := range r.References {
		if ref != r.ID {
			return true
		}
	}
	return false
}

// Envelope wraps a record alongside an optional error encountered while decoding.
// A non-nil Err marks a malformed entry; Record is then only partially filled.
type Envelope struct {
	Record MailRecord
	Err    error
}

// Before orders records by timestamp ascending, records without a timestamp
// last, ties broken by lexical id.
func Before(a, b MailRecord) bool {
	aHas, bHas := a.HasTimestamp(), b.HasTimestamp()
	switch {
	case aHas && !bHas:
		return true
	case !aHas && bHas:
		return false
	case aHas && bHas && !a.Timestamp.Equal(b.Timestamp):
		return a.Timestamp.Before(b.Timestamp)
	}
	return a.ID < b.ID
}
