package filter

import (
	"github.com/dhcgn/mbox-curator/model"
)

// Apply marks every record whose body contains a disallowed substring as
// dropped. Nothing is removed or reordered: a dropped record keeps its slot so
// its surviving replies stay where they were.
func Apply(t model.Thread, a *Automaton) model.FilteredThread {
	positions := make([]model.Position, 0, len(t.Records))
	for _, rec := range t.Records {
		if a.Match(rec.Body) {
			positions = append(positions, model.Dropped(rec.ID))
			continue
		}
		positions = append(positions, model.Kept(rec))
	}
	return model.FilteredThread{Thread: t, Positions: positions}
}
