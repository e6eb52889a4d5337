package filter

import (
	"fmt"
	"strings"
	"testing"
)

func benchDictionary(n int) []string {
	patterns := make([]string, 0, n)
	for i := 0; i < n; i++ {
		patterns = append(patterns, fmt.Sprintf("forbidden-%04d", i))
	}
	return patterns
}

// BenchmarkAutomaton_Build benchmarks compiling a dictionary of 500 entries
func BenchmarkAutomaton_Build(b *testing.B) {
	patterns := benchDictionary(500)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Build(patterns); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkAutomaton_Match_Clean benchmarks a full scan of a body without hits
func BenchmarkAutomaton_Match_Clean(b *testing.B) {
	a, err := Build(benchDictionary(500))
	if err != nil {
		b.Fatal(err)
	}
	body := strings.Repeat("Has anyone tried compiling this with the new toolchain? ", 200)

	b.SetBytes(int64(len(body)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		a.Match(body)
	}
}

// BenchmarkAutomaton_Match_NonASCII benchmarks folding of multi-byte text
func BenchmarkAutomaton_Match_NonASCII(b *testing.B) {
	a, err := Build(benchDictionary(500))
	if err != nil {
		b.Fatal(err)
	}
	body := strings.Repeat("Grüße aus München, ÄÖÜ ß ", 200)

	b.SetBytes(int64(len(body)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		a.Match(body)
	}
}
