package executor

import (
	"context"
	"fmt"
	"strings"
	"testing"
)

var benchVocabulary = strings.Fields(`histogram frequency inverse document corpus
	ranking similarity vector cosine token stemming query index weight scan page
	worker cache stale merge score term`)

func benchCorpus(b *testing.B, n int) []doc {
	b.Helper()
	docs := make([]doc, n)
	for i := range docs {
		words := make([]string, 20)
		for j := range words {
			words[j] = benchVocabulary[(i*7+j*j)%len(benchVocabulary)]
		}
		docs[i] = doc{id: int64(i + 1), text: strings.Join(words, " ")}
	}
	return docs
}

func BenchmarkExecute(b *testing.B) {
	for _, n := range []int{100, 1000, 5000} {
		b.Run(fmt.Sprintf("docs_%d", n), func(b *testing.B) {
			store := seed(b, benchCorpus(b, n)...)
			e := New(store, fields, Config{})
			ctx := context.Background()
			b.ReportAllocs()
			b.ResetTimer()
			for b.Loop() {
				if _, err := e.Execute(ctx, "cosine similarity ranking", 10); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkExecuteWorkers(b *testing.B) {
	store := seed(b, benchCorpus(b, 2000)...)
	ctx := context.Background()
	for _, workers := range []int{1, 2, 4, 8} {
		b.Run(fmt.Sprintf("workers_%d", workers), func(b *testing.B) {
			e := New(store, fields, Config{Workers: workers})
			b.ReportAllocs()
			for b.Loop() {
				if _, err := e.Execute(ctx, "stale weight merge", 0); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
