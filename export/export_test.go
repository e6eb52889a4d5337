package export

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhcgn/mbox-curator/filter"
	"github.com/dhcgn/mbox-curator/model"
)

var t0 = time.Date(1991, 8, 25, 20, 57, 8, 0, time.UTC)

func sampleThread() model.Thread {
	return model.Thread{
		RootID:     "a",
		SourceFile: "comp.os.minix.mbox",
		Records: []model.MailRecord{
			{ID: "a", Author: "Linus <torvalds@klaava>", Subject: "What would you like to see most in minix?", Timestamp: t0, Body: "Hello everybody out there using minix"},
			{ID: "b", Author: "Spammer <s@x>", Subject: "Re: What would you like", Timestamp: t0.Add(time.Hour), Body: "buy spamword now"},
			{ID: "c", Author: "", Subject: "", Body: "sounds great"},
		},
		Parents: map[string]string{"b": "a", "c": "b"},
	}
}

func TestText(t *testing.T) {
	ft := model.FilteredThread{Thread: sampleThread()}
	for _, r := range ft.Thread.Records {
		ft.Positions = append(ft.Positions, model.Kept(r))
	}

	text := Text(ft)
	want := "From: Linus <torvalds@klaava>\n" +
		"Date: 1991-08-25T20:57:08Z\n" +
		"Subject: What would you like to see most in minix?\n" +
		"\n" +
		"Hello everybody out there using minix\n" +
		"\n" +
		"From: Spammer <s@x>\n" +
		"Date: 1991-08-25T21:57:08Z\n" +
		"Subject: Re: What would you like\n" +
		"\n" +
		"buy spamword now\n" +
		"\n" +
		"From: <unknown author>\n" +
		"Date: <unknown date>\n" +
		"Subject: <no subject>\n" +
		"\n" +
		"sounds great\n"
	assert.Equal(t, want, text)
}

func TestText_EmptyBody(t *testing.T) {
	ft := model.FilteredThread{Positions: []model.Position{
		model.Kept(model.MailRecord{ID: "x", Author: "A", Subject: "S", Timestamp: t0}),
	}}
	assert.Equal(t, "From: A\nDate: 1991-08-25T20:57:08Z\nSubject: S\n\n", Text(ft))
}

func TestThread_DroppedRecordLeavesNoTrace(t *testing.T) {
	a, err := filter.Build([]string{"spamword"})
	require.NoError(t, err)

	th := sampleThread()
	th.Records = th.Records[:2]
	ft := filter.Apply(th, a)

	exp, ok := Thread(ft, "comp.os.minix")
	require.True(t, ok)
	assert.Contains(t, exp.Content, "Hello everybody out there using minix")
	assert.NotContains(t, exp.Content, "spamword")
	assert.NotContains(t, exp.Content, "Spammer")

	assert.Equal(t, 1, exp.Metadata.MessageCount)
	assert.Equal(t, 1, exp.Metadata.DroppedCount)
	assert.Equal(t, []string{"Linus <torvalds@klaava>"}, exp.Metadata.Participants)
	assert.Equal(t, "comp.os.minix", exp.Metadata.ForumName)
	assert.Len(t, exp.Metadata.ContentHash, 64)
}

func TestDroppedMiddleKeepsDescendants(t *testing.T) {
	a, err := filter.Build([]string{"spamword"})
	require.NoError(t, err)

	ft := filter.Apply(sampleThread(), a)
	text := Text(ft)

	first := strings.Index(text, "Hello everybody")
	last := strings.Index(text, "sounds great")
	require.GreaterOrEqual(t, first, 0)
	require.Greater(t, last, first, "reply to the dropped record still follows the root")
	assert.Equal(t, 2, strings.Count(text, "From: "))
}

func TestMetadata(t *testing.T) {
	th := sampleThread()
	th.Orphan = true
	ft := model.FilteredThread{Thread: th}
	for _, r := range th.Records {
		ft.Positions = append(ft.Positions, model.Kept(r))
	}

	meta := Metadata(ft)
	assert.Equal(t, 3, meta.MessageCount)
	assert.Equal(t, 0, meta.DroppedCount)
	assert.Equal(t, []string{"<unknown author>", "Linus <torvalds@klaava>", "Spammer <s@x>"}, meta.Participants)
	require.NotNil(t, meta.StartTime)
	require.NotNil(t, meta.EndTime)
	assert.True(t, meta.StartTime.Equal(t0))
	assert.True(t, meta.EndTime.Equal(t0.Add(time.Hour)))
	assert.Equal(t, "comp.os.minix.mbox", meta.SourceFile)
	assert.True(t, meta.Orphan)
	assert.Equal(t, "a", meta.RootID)
	assert.Equal(t, "What would you like to see most in minix?", meta.Subject)
}

func TestMetadata_NoTimestamps(t *testing.T) {
	ft := model.FilteredThread{Positions: []model.Position{
		model.Kept(model.MailRecord{ID: "x", Body: "b"}),
	}}
	meta := Metadata(ft)
	assert.Nil(t, meta.StartTime)
	assert.Nil(t, meta.EndTime)

	data, err := json.Marshal(meta)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"start_time":null`)
	assert.Contains(t, string(data), `"participants":["<unknown author>"]`)
}

func TestThread_AllDropped(t *testing.T) {
	ft := model.FilteredThread{Positions: []model.Position{model.Dropped("a"), model.Dropped("b")}}
	_, ok := Thread(ft, "forum")
	assert.False(t, ok)
}

func TestThread_HashIsDeterministic(t *testing.T) {
	a, err := filter.Build([]string{"spamword"})
	require.NoError(t, err)

	first, ok := Thread(filter.Apply(sampleThread(), a), "f")
	require.True(t, ok)
	second, ok := Thread(filter.Apply(sampleThread(), a), "f")
	require.True(t, ok)
	assert.Equal(t, first.Metadata.ContentHash, second.Metadata.ContentHash)
	assert.Equal(t, first.Content, second.Content)
}
