package tokenizer

import (
	"fmt"
	"strings"
	"testing"
)

var sampleTexts = map[string]string{
	"short": "The quick brown fox jumps over the lazy dog",
	"medium": `Histogram search engines weigh every term of a document by how often it
        occurs there and how rare it is across the corpus. A query is turned into the
        same kind of histogram and compared with each stored document page by page.
        Documents that share no weighted term with the query are dropped before
        ranking, and ties are broken by document identifier.`,
	"long": strings.Repeat(`Information retrieval systems combine tokenization, stemming
        and stop word removal to normalize text into comparable terms. Naïve café
        menus, résumés and façades fold to plain letters before stemming. `, 20),
}

func newBenchAnalyzer(b *testing.B) *Analyzer {
	b.Helper()
	a, err := New(Config{Language: "english"})
	if err != nil {
		b.Fatal(err)
	}
	return a
}

func BenchmarkTokenize(b *testing.B) {
	a := newBenchAnalyzer(b)
	for name, text := range sampleTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for b.Loop() {
				if _, err := a.Tokenize(text); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkTokenizeParallel(b *testing.B) {
	a := newBenchAnalyzer(b)
	text := sampleTexts["medium"]
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := a.Tokenize(text); err != nil {
				b.Fatal(err)
			}
		}
	})
}

func BenchmarkTokenizeVaryingSize(b *testing.B) {
	a := newBenchAnalyzer(b)
	baseWord := "histogram frequency ranking corpus "
	for _, size := range []int{10, 100, 500, 1000, 5000} {
		text := strings.Repeat(baseWord, size/len(baseWord)+1)[:size]
		b.Run(fmt.Sprintf("bytes_%d", size), func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for b.Loop() {
				if _, err := a.Tokenize(text); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
