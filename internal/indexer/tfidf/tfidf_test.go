package tfidf

import (
	"errors"
	"math"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/indexer/histogram"
	apperrors "github.com/Adithya-Monish-Kumar-K/histogram-search/pkg/errors"
)

const epsilon = 1e-12

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < epsilon
}

func TestTermFrequencyIsRealValued(t *testing.T) {
	tests := []struct {
		count, distinct int
		want            float64
	}{
		{1, 2, 0.5},
		{1, 3, 1.0 / 3.0},
		{3, 1, 3},
		{0, 4, 0},
		{5, 0, 0},
	}
	for _, tt := range tests {
		if got := TermFrequency(tt.count, tt.distinct); !almostEqual(got, tt.want) {
			t.Errorf("TermFrequency(%d, %d) = %v, want %v", tt.count, tt.distinct, got, tt.want)
		}
	}
}

func TestInverseDocumentFrequency(t *testing.T) {
	const n = 8

	everywhere, err := InverseDocumentFrequency(n, n)
	if err != nil {
		t.Fatal(err)
	}
	if !almostEqual(everywhere, 1) {
		t.Errorf("idf(term in all %d) = %v, want 1", n, everywhere)
	}

	once, err := InverseDocumentFrequency(n, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !almostEqual(once, 1+math.Log(n)) {
		t.Errorf("idf(term in one of %d) = %v, want %v", n, once, 1+math.Log(n))
	}

	absent, err := InverseDocumentFrequency(n, 0)
	if err != nil {
		t.Fatal(err)
	}
	if absent != once {
		t.Errorf("absent term idf = %v, want floor to df=1 (%v)", absent, once)
	}

	for df := 1; df <= n; df++ {
		idf, _ := InverseDocumentFrequency(n, df)
		if idf > once {
			t.Errorf("idf(df=%d) = %v exceeds maximum %v", df, idf, once)
		}
	}
}

func TestInverseDocumentFrequencyEmptyCorpus(t *testing.T) {
	_, err := InverseDocumentFrequency(0, 0)
	if !errors.Is(err, apperrors.ErrEmptyCorpus) {
		t.Fatalf("err = %v, want ErrEmptyCorpus", err)
	}
}

func TestCollectAndWithMember(t *testing.T) {
	corpus := []*histogram.Histogram{
		histogram.Build(1, []string{"cat", "cat"}),
		histogram.Build(2, []string{"cat", "dog"}),
	}
	stats := Collect(corpus)
	if stats.Size != 2 {
		t.Fatalf("size = %d", stats.Size)
	}
	if stats.DocumentFrequency["cat"] != 2 || stats.DocumentFrequency["dog"] != 1 {
		t.Fatalf("df = %v", stats.DocumentFrequency)
	}

	extended := stats.WithMember(histogram.Build(3, []string{"dog", "fish"}))
	if extended.Size != 3 {
		t.Errorf("extended size = %d", extended.Size)
	}
	if extended.DocumentFrequency["dog"] != 2 || extended.DocumentFrequency["fish"] != 1 {
		t.Errorf("extended df = %v", extended.DocumentFrequency)
	}
	if stats.DocumentFrequency["dog"] != 1 {
		t.Error("WithMember mutated the receiver")
	}
}

func TestComputeWorkedExample(t *testing.T) {
	doc1 := histogram.Build(1, []string{"cat", "cat", "cat"})
	doc2 := histogram.Build(2, []string{"cat", "cat", "cat", "dog"})
	computer := NewComputer(Collect([]*histogram.Histogram{doc1, doc2}), ModeGraded)

	w1, err := computer.Compute(doc1)
	if err != nil {
		t.Fatal(err)
	}
	w2, err := computer.Compute(doc2)
	if err != nil {
		t.Fatal(err)
	}

	if !w1.Initialized() || !w1.UpToDate() {
		t.Fatal("computed histogram must be initialized")
	}
	if doc1.Initialized() {
		t.Fatal("Compute mutated its input")
	}
	if !almostEqual(w1.Weight("cat"), 3) {
		t.Errorf("doc1 cat = %v, want 3", w1.Weight("cat"))
	}
	if !almostEqual(w2.Weight("cat"), 1.5) {
		t.Errorf("doc2 cat = %v, want 1.5", w2.Weight("cat"))
	}
	if want := 0.5 * (1 + math.Log(2)); !almostEqual(w2.Weight("dog"), want) {
		t.Errorf("doc2 dog = %v, want %v", w2.Weight("dog"), want)
	}
}

func TestComputePresenceMode(t *testing.T) {
	corpus := []*histogram.Histogram{
		histogram.Build(1, []string{"common", "rare"}),
		histogram.Build(2, []string{"common"}),
		histogram.Build(3, []string{"common"}),
	}
	stats := Collect(corpus)

	graded := NewComputer(stats, ModeGraded)
	presence := NewComputer(stats, ModePresence)

	gCommon, _ := graded.IDF("common")
	gRare, _ := graded.IDF("rare")
	if !(gRare > gCommon) {
		t.Errorf("graded idf should rank rare (%v) above common (%v)", gRare, gCommon)
	}

	pCommon, _ := presence.IDF("common")
	pRare, _ := presence.IDF("rare")
	pAbsent, _ := presence.IDF("absent")
	if pCommon != pRare || pRare != pAbsent {
		t.Errorf("presence idf should be flat: common=%v rare=%v absent=%v", pCommon, pRare, pAbsent)
	}
	if !almostEqual(pCommon, 1+math.Log(3)) {
		t.Errorf("presence idf = %v, want %v", pCommon, 1+math.Log(3))
	}
}

func TestComputeEmptyCorpus(t *testing.T) {
	computer := NewComputer(Stats{}, ModeGraded)
	_, err := computer.Compute(histogram.Build(1, []string{"a"}))
	if !errors.Is(err, apperrors.ErrEmptyCorpus) {
		t.Fatalf("err = %v, want ErrEmptyCorpus", err)
	}

	empty, err := computer.Compute(histogram.Build(1, nil))
	if err != nil {
		t.Fatalf("empty histogram needs no idf: %v", err)
	}
	if !empty.Initialized() {
		t.Error("empty histogram should still become initialized")
	}
}

func TestParseMode(t *testing.T) {
	if m, err := ParseMode(""); err != nil || m != ModeGraded {
		t.Errorf("ParseMode(\"\") = %q, %v", m, err)
	}
	if m, err := ParseMode("presence"); err != nil || m != ModePresence {
		t.Errorf("ParseMode(presence) = %q, %v", m, err)
	}
	if _, err := ParseMode("binary"); !errors.Is(err, apperrors.ErrInvalidConfig) {
		t.Errorf("ParseMode(binary) err = %v", err)
	}
}
