package export

import (
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"lukechampine.com/blake3"

	"github.com/dhcgn/mbox-curator/model"
)

// Placeholders written in place of absent fields. They can never be produced
// by a real header value, so consumers can tell "absent" from "empty".
const (
	UnknownAuthor  = "<unknown author>"
	UnknownDate    = "<unknown date>"
	UnknownSubject = "<no subject>"
)

// Text renders the surviving records of a thread in order, one attributed
// block each. Dropped records leave no trace in the text.
func Text(ft model.FilteredThread) string {
	var sb strings.Builder
	first := true
	for _, pos := range ft.Positions {
		if pos.Dropped {
			continue
		}
		if !first {
			sb.WriteString("\n")
		}
		first = false
		writeBlock(&sb, pos.Record)
	}
	return sb.String()
}

func writeBlock(sb *strings.Builder, rec model.MailRecord) {
	sb.WriteString("From: ")
	sb.WriteString(orPlaceholder(rec.Author, UnknownAuthor))
	sb.WriteString("\nDate: ")
	if rec.HasTimestamp() {
		sb.WriteString(rec.Timestamp.UTC().Format(time.RFC3339))
	} else {
		sb.WriteString(UnknownDate)
	}
	sb.WriteString("\nSubject: ")
	sb.WriteString(orPlaceholder(rec.Subject, UnknownSubject))
	sb.WriteString("\n\n")
	if rec.Body != "" {
		sb.WriteString(rec.Body)
		sb.WriteString("\n")
	}
}

func orPlaceholder(value, placeholder string) string {
	if strings.TrimSpace(value) == "" {
		return placeholder
	}
	return value
}

// Metadata summarizes a filtered thread. Counts, participants and the time
// range cover surviving records only.
func Metadata(ft model.FilteredThread) model.Metadata {
	meta := model.Metadata{
		DroppedCount: ft.DroppedCount(),
		Participants: []string{},
		SourceFile:   ft.Thread.SourceFile,
		Orphan:       ft.Thread.Orphan,
		RootID:       ft.Thread.RootID,
		Subject:      UnknownSubject,
	}

	seen := make(map[string]struct{})
	for _, pos := range ft.Positions {
		if pos.Dropped {
			continue
		}
		rec := pos.Record
		meta.MessageCount++

		if meta.MessageCount == 1 {
			meta.Subject = orPlaceholder(rec.Subject, UnknownSubject)
		}

		author := orPlaceholder(rec.Author, UnknownAuthor)
		if _, ok := seen[author]; !ok {
			seen[author] = struct{}{}
			meta.Participants = append(meta.Participants, author)
		}

		if !rec.HasTimestamp() {
			continue
		}
		ts := rec.Timestamp.UTC()
		if meta.StartTime == nil || ts.Before(*meta.StartTime) {
			start := ts
			meta.StartTime = &start
		}
		if meta.EndTime == nil || ts.After(*meta.EndTime) {
			end := ts
			meta.EndTime = &end
		}
	}
	sort.Strings(meta.Participants)

	return meta
}

// Thread exports a filtered thread for the forum it came from. ok is false
// when every record was dropped and nothing should be written.
func Thread(ft model.FilteredThread, forum string) (exp model.Export, ok bool) {
	if ft.AllDropped() {
		return model.Export{}, false
	}

	content := Text(ft)
	meta := Metadata(ft)
	meta.ForumName = forum
	sum := blake3.Sum256([]byte(content))
	meta.ContentHash = hex.EncodeToString(sum[:])

	return model.Export{Content: content, Metadata: meta}, true
}
