package thread

import (
	"container/heap"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/dhcgn/mbox-curator/model"
)

// DefaultSubjectWindow bounds how far apart two records with the same base
// subject may be and still be grouped without reference headers.
const DefaultSubjectWindow = 30 * 24 * time.Hour

var ErrDuplicateID = errors.New("duplicate message id")

type Options struct {
	// SubjectWindow is the largest timestamp gap for subject-based grouping.
	// Zero or negative disables the fallback.
	SubjectWindow time.Duration
}

// Result holds the threads of one archive file.
type Result struct {
	Threads []model.Thread
	// Duplicates counts records dropped because their id was already seen.
	Duplicates int
}

// Assembler groups the records of one archive file into threads.
type Assembler struct {
	opts   Options
	logger *slog.Logger
}

func NewAssembler(opts Options, logger *slog.Logger) *Assembler {
	return &Assembler{opts: opts, logger: logger}
}

// arena holds the records of one file. Relations are stored as indexes into
// records so a parent may appear after its children in the input.
type arena struct {
	records  []model.MailRecord
	index    map[string]int
	parent   []int
	orphan   []bool
	declared []string
	uf       unionFind
}

// Assemble builds the reply forest for records and returns one thread per
// connected component. The result depends only on the input sequence.
func (a *Assembler) Assemble(source string, records []model.MailRecord) Result {
	ar := &arena{index: make(map[string]int, len(records))}

	var result Result
	for _, rec := range records {
		if _, ok := ar.index[rec.ID]; ok {
			result.Duplicates++
			if a.logger != nil {
				a.logger.Debug("dropping record", "path", source, "id", rec.ID, "index", rec.Index, "err", ErrDuplicateID)
			}
			continue
		}
		ar.index[rec.ID] = len(ar.records)
		ar.records = append(ar.records, rec)
	}

	n := len(ar.records)
	ar.parent = make([]int, n)
	ar.orphan = make([]bool, n)
	ar.declared = make([]string, n)
	ar.uf = newUnionFind(n)
	for i := range ar.parent {
		ar.parent[i] = -1
	}

	// Header links go first so a subject guess can never block or invert a
	// declared reply.
	for i, rec := range ar.records {
		if p := ar.headerParent(i, rec); p >= 0 {
			a.link(ar, source, i, p)
		}
	}

	bySubject := a.subjectPredecessors(ar.records)
	for i, rec := range ar.records {
		if rec.InReplyTo != "" || len(rec.References) > 0 {
			continue
		}
		if p := bySubject[i]; p >= 0 {
			a.link(ar, source, i, p)
		}
	}

	result.Threads = ar.threads(source)
	return result
}

// link makes p the parent of i unless that would close a cycle. i never has
// a parent yet, so p sharing its component means p descends from i.
func (a *Assembler) link(ar *arena, source string, i, p int) {
	if ar.uf.find(p) == ar.uf.find(i) {
		if a.logger != nil {
			a.logger.Debug("refusing cyclic reply link", "path", source, "id", ar.records[i].ID, "parent", ar.records[p].ID)
		}
		return
	}
	ar.parent[i] = p
	ar.uf.union(i, p)
}

// headerParent returns the parent named by In-Reply-To or the last known
// References entry, or -1. Records whose declared parent is missing from the
// archive are flagged as orphans.
func (ar *arena) headerParent(i int, rec model.MailRecord) int {
	if rec.InReplyTo != "" && rec.InReplyTo != rec.ID {
		if j, ok := ar.index[rec.InReplyTo]; ok {
			return j
		}
	}
	for k := len(rec.References) - 1; k >= 0; k-- {
		ref := rec.References[k]
		if ref == rec.ID {
			continue
		}
		if j, ok := ar.index[ref]; ok {
			return j
		}
	}

	if rec.DeclaresParent() {
		ar.orphan[i] = true
		ar.declared[i] = declaredParent(rec)
	}
	return -1
}

func declaredParent(rec model.MailRecord) string {
	if rec.InReplyTo != "" && rec.InReplyTo != rec.ID {
		return rec.InReplyTo
	}
	for k := len(rec.References) - 1; k >= 0; k-- {
		if rec.References[k] != rec.ID {
			return rec.References[k]
		}
	}
	return ""
}

// subjectPredecessors maps each record to the most recent earlier record with
// the same normalized subject within the window, or -1. Records without a
// timestamp or without a subject never take part.
func (a *Assembler) subjectPredecessors(records []model.MailRecord) []int {
	pred := make([]int, len(records))
	for i := range pred {
		pred[i] = -1
	}
	if a.opts.SubjectWindow <= 0 {
		return pred
	}

	groups := make(map[string][]int)
	for i, rec := range records {
		if rec.NormalizedSubject == "" || !rec.HasTimestamp() {
			continue
		}
		groups[rec.NormalizedSubject] = append(groups[rec.NormalizedSubject], i)
	}

	for _, group := range groups {
		sort.Slice(group, func(x, y int) bool {
			return model.Before(records[group[x]], records[group[y]])
		})
		for k := 1; k < len(group); k++ {
			prev, cur := records[group[k-1]], records[group[k]]
			if cur.Timestamp.Sub(prev.Timestamp) <= a.opts.SubjectWindow {
				pred[group[k]] = group[k-1]
			}
		}
	}
	return pred
}

// threads turns the linked forest into ordered threads.
func (ar *arena) threads(source string) []model.Thread {
	children := make([][]int, len(ar.records))
	var roots []int
	for i, p := range ar.parent {
		if p < 0 {
			roots = append(roots, i)
			continue
		}
		children[p] = append(children[p], i)
	}

	threads := make([]model.Thread, 0, len(roots))
	for _, root := range roots {
		t := model.Thread{
			RootID:     ar.records[root].ID,
			Orphan:     ar.orphan[root],
			SourceFile: source,
			Parents:    make(map[string]string),
			Declared:   make(map[string]string),
		}
		if ar.declared[root] != "" {
			t.Declared[ar.records[root].ID] = ar.declared[root]
		}

		// Parents always come before their children; among the records that
		// are ready, the earliest by timestamp and id goes first.
		ready := &recordHeap{records: ar.records}
		heap.Push(ready, root)
		for ready.Len() > 0 {
			i := heap.Pop(ready).(int)
			rec := ar.records[i]
			t.Records = append(t.Records, rec)
			if p := ar.parent[i]; p >= 0 {
				t.Parents[rec.ID] = ar.records[p].ID
			}
			for _, c := range children[i] {
				heap.Push(ready, c)
			}
		}
		threads = append(threads, t)
	}

	sort.Slice(threads, func(x, y int) bool {
		return model.Before(threads[x].Records[0], threads[y].Records[0])
	})
	return threads
}

type recordHeap struct {
	records []model.MailRecord
	items   []int
}

func (h *recordHeap) Len() int { return len(h.items) }
func (h *recordHeap) Less(i, j int) bool {
	return model.Before(h.records[h.items[i]], h.records[h.items[j]])
}
func (h *recordHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *recordHeap) Push(x any)    { h.items = append(h.items, x.(int)) }
func (h *recordHeap) Pop() any {
	last := h.items[len(h.items)-1]
	h.items = h.items[:len(h.items)-1]
	return last
}

type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) unionFind {
	uf := unionFind{parent: make([]int, n), rank: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (u unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u unionFind) union(x, y int) {
	rx, ry := u.find(x), u.find(y)
	if rx == ry {
		return
	}
	switch {
	case u.rank[rx] < u.rank[ry]:
		u.parent[rx] = ry
	case u.rank[rx] > u.rank[ry]:
		u.parent[ry] = rx
	default:
		u.parent[ry] = rx
		u.rank[rx]++
	}
}
