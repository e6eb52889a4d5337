package filter

import (
	"errors"
	"fmt"
	"unicode"
	"unicode/utf8"
)

var ErrEmptyDictionary = errors.New("disallowed-string dictionary is empty")

// Automaton is an Aho-Corasick matcher over a fixed set of disallowed
// substrings. It is immutable once built and safe for concurrent use.
//
// The trie is compiled into a dense transition table indexed by byte class:
// every byte that occurs in some pattern gets its own class and all other
// bytes share class 0, so the table stays small for large alphabets.
type Automaton struct {
	classes  [256]uint16
	nclasses int
	delta    []int32
	terminal []bool
	patterns int
}

// Build compiles the patterns into an automaton. Matching is case-insensitive;
// blank patterns are ignored. An error wrapping ErrEmptyDictionary is returned
// when nothing is left to match.
func Build(patterns []string) (*Automaton, error) {
	folded := make([]string, 0, len(patterns))
	seen := make(map[string]struct{}, len(patterns))
	for _, p := range patterns {
		if p == "" {
			continue
		}
		f := foldString(p)
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		folded = append(folded, f)
	}
	if len(folded) == 0 {
		return nil, fmt.Errorf("build automaton: %w", ErrEmptyDictionary)
	}

	a := &Automaton{patterns: len(folded)}
	a.nclasses = 1
	for _, p := range folded {
		for i := 0; i < len(p); i++ {
			if a.classes[p[i]] == 0 {
				a.classes[p[i]] = uint16(a.nclasses)
				a.nclasses++
			}
		}
	}

	// goto function of the trie, node 0 is the root
	children := []map[uint16]int32{{}}
	terminal := []bool{false}
	for _, p := range folded {
		node := int32(0)
		for i := 0; i < len(p); i++ {
			c := a.classes[p[i]]
			next, ok := children[node][c]
			if !ok {
				next = int32(len(children))
				children = append(children, map[uint16]int32{})
				terminal = append(terminal, false)
				children[node][c] = next
			}
			node = next
		}
		terminal[node] = true
	}

	n := a.nclasses
	a.delta = make([]int32, len(children)*n)
	fail := make([]int32, len(children))
	queue := make([]int32, 0, len(children))

	for c := 0; c < n; c++ {
		if v, ok := children[0][uint16(c)]; ok {
			a.delta[c] = v
			queue = append(queue, v)
		}
	}
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		for c := 0; c < n; c++ {
			v, ok := children[u][uint16(c)]
			if !ok {
				a.delta[int(u)*n+c] = a.delta[int(fail[u])*n+c]
				continue
			}
			fail[v] = a.delta[int(fail[u])*n+c]
			terminal[v] = terminal[v] || terminal[fail[v]]
			a.delta[int(u)*n+c] = v
			queue = append(queue, v)
		}
	}
	a.terminal = terminal

	return a, nil
}

// Len returns the number of distinct patterns compiled into the automaton.
func (a *Automaton) Len() int {
	return a.patterns
}

// Match reports whether any pattern occurs in text, ignoring case.
func (a *Automaton) Match(text string) bool {
	state := int32(0)
	step := func(b byte) bool {
		state = a.delta[int(state)*a.nclasses+int(a.classes[b])]
		return a.terminal[state]
	}

	var buf [utf8.UTFMax]byte
	for i := 0; i < len(text); {
		b := text[i]
		if b < utf8.RuneSelf {
			if 'A' <= b && b <= 'Z' {
				b += 'a' - 'A'
			}
			if step(b) {
				return true
			}
			i++
			continue
		}

		r, size := utf8.DecodeRuneInString(text[i:])
		lower := unicode.ToLower(r)
		if lower == r && r != utf8.RuneError {
			for j := i; j < i+size; j++ {
				if step(text[j]) {
					return true
				}
			}
		} else {
			w := utf8.EncodeRune(buf[:], lower)
			for j := 0; j < w; j++ {
				if step(buf[j]) {
					return true
				}
			}
		}
		i += size
	}
	return false
}

// foldString lowercases s the same way Match folds its input.
func foldString(s string) string {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		out = utf8.AppendRune(out, unicode.ToLower(r))
	}
	return string(out)
}
