package histogram

import (
	"slices"
	"testing"
)

func TestBuildCountsDistinctTerms(t *testing.T) {
	h := Build(7, []string{"cat", "dog", "cat", "bird", "cat"})

	if h.DocumentID() != 7 {
		t.Fatalf("document id = %d, want 7", h.DocumentID())
	}
	if h.Len() != 3 {
		t.Fatalf("len = %d, want 3", h.Len())
	}
	want := map[NGram]int{"cat": 3, "dog": 1, "bird": 1}
	for key, count := range want {
		item, ok := h.Get(key)
		if !ok {
			t.Fatalf("missing term %q", key)
		}
		if item.Count != count {
			t.Errorf("count(%q) = %d, want %d", key, item.Count, count)
		}
		if item.TfIdf != 0 {
			t.Errorf("tfidf(%q) = %v, want 0 before weighting", key, item.TfIdf)
		}
	}
	if h.Initialized() || h.UpToDate() {
		t.Error("freshly built histogram must not be initialized")
	}
}

func TestBuildIsOrderIndependent(t *testing.T) {
	a := Build(1, []string{"x", "y", "x", "z"})
	b := Build(1, []string{"z", "x", "y", "x"})
	if !slices.Equal(a.Items(), b.Items()) {
		t.Fatalf("items differ: %v vs %v", a.Items(), b.Items())
	}
}

func TestBuildEmpty(t *testing.T) {
	h := Build(1, nil)
	if h.Len() != 0 {
		t.Fatalf("len = %d, want 0", h.Len())
	}
}

func TestWithWeightsDoesNotMutateReceiver(t *testing.T) {
	h := Build(1, []string{"a", "b"})
	w := h.WithWeights(map[NGram]float64{"a": 0.5, "b": 0.25})

	if h.Initialized() {
		t.Error("receiver became initialized")
	}
	if h.Weight("a") != 0 {
		t.Error("receiver weight changed")
	}
	if !w.Initialized() || !w.UpToDate() {
		t.Error("weighted copy must be initialized and up to date")
	}
	if w.Weight("a") != 0.5 || w.Weight("b") != 0.25 {
		t.Errorf("weights = %v", w.Weights())
	}
	if w.Weight("missing") != 0 {
		t.Error("absent term must weigh 0")
	}
}

func TestRecountKeepsTermSet(t *testing.T) {
	h := Restore(3, []string{"a", "a", "b"}, []Item{
		{Key: "a", Count: 9, TfIdf: 1},
		{Key: "b", Count: 9, TfIdf: 1},
		{Key: "c", Count: 9, TfIdf: 1},
	}, true, false)

	r := h.Recount()
	if r.Initialized() {
		t.Error("recount must clear initialization")
	}
	if got := r.Keys(); !slices.Equal(got, []NGram{"a", "b", "c"}) {
		t.Fatalf("keys = %v", got)
	}
	for key, want := range map[NGram]int{"a": 2, "b": 1, "c": 0} {
		item, _ := r.Get(key)
		if item.Count != want {
			t.Errorf("count(%q) = %d, want %d", key, item.Count, want)
		}
	}
}

type constWeigher float64

func (c constWeigher) Compute(h *Histogram) (*Histogram, error) {
	weights := make(map[NGram]float64)
	for _, key := range h.Keys() {
		item, _ := h.Get(key)
		weights[key] = float64(item.Count) * float64(c)
	}
	return h.WithWeights(weights), nil
}

func TestRefresh(t *testing.T) {
	h := Build(1, []string{"a", "a", "b"}).WithWeights(map[NGram]float64{"a": 5, "b": 5})
	h.MarkStale()
	if h.UpToDate() {
		t.Fatal("MarkStale did not clear the flag")
	}

	r, err := Refresh(h, constWeigher(2))
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if !r.UpToDate() || !r.Initialized() {
		t.Error("refreshed histogram must be initialized and up to date")
	}
	if r.Weight("a") != 4 || r.Weight("b") != 2 {
		t.Errorf("weights = %v", r.Weights())
	}
}

func TestCloneIsDeep(t *testing.T) {
	h := Build(1, []string{"a"})
	c := h.Clone()
	c.items["a"] = Item{Key: "a", Count: 100}
	if item, _ := h.Get("a"); item.Count != 1 {
		t.Fatal("clone shares item storage")
	}
}
