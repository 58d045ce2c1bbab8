package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/ingestion/publisher"
	apperrors "github.com/Adithya-Monish-Kumar-K/histogram-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/pkg/kafka"
)

type fakeIndexer struct {
	docs []indexer.Document
	err  error
}

func (f *fakeIndexer) IndexDocument(_ context.Context, doc indexer.Document) (indexer.Result, error) {
	if f.err != nil {
		return indexer.Result{}, f.err
	}
	f.docs = append(f.docs, doc)
	return indexer.Result{DocumentID: doc.ID, DistinctTerms: 1}, nil
}

type recordingProducer struct{ events []kafka.Event }

func (p *recordingProducer) Publish(_ context.Context, e kafka.Event) error {
	p.events = append(p.events, e)
	return nil
}

func (p *recordingProducer) PublishBatch(_ context.Context, events []kafka.Event) error {
	p.events = append(p.events, events...)
	return nil
}

func encode(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestHandleMessageIndexesAndAnnounces(t *testing.T) {
	idx := &fakeIndexer{}
	prod := &recordingProducer{}
	handle := HandleMessage(idx, publisher.NewInvalidator(prod))

	value := encode(t, ingestion.DocumentEvent{DocumentID: 9, Text: "cat dog", Private: true})
	if err := handle(context.Background(), []byte("9"), value); err != nil {
		t.Fatal(err)
	}
	if len(idx.docs) != 1 || idx.docs[0] != (indexer.Document{ID: 9, Text: "cat dog", Private: true}) {
		t.Fatalf("indexed = %+v", idx.docs)
	}
	if len(prod.events) != 1 {
		t.Fatalf("announced %d events", len(prod.events))
	}
	ev := prod.events[0].Value.(ingestion.IndexedEvent)
	if ev.DocumentID != 9 || ev.Action != ingestion.ActionIndexed {
		t.Fatalf("announcement = %+v", ev)
	}
}

func TestHandleMessageErrors(t *testing.T) {
	tests := []struct {
		name     string
		value    []byte
		err      error
		wantSkip bool
	}{
		{"malformed", []byte("{not json"), nil, true},
		{"invalid document", []byte(`{"document_id": 0, "text": "x"}`), fmt.Errorf("wrapped: %w", apperrors.ErrInvalidInput), true},
		{"store failure", []byte(`{"document_id": 1, "text": "x"}`), apperrors.ErrStoreUnavailable, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prod := &recordingProducer{}
			handle := HandleMessage(&fakeIndexer{err: tt.err}, publisher.NewInvalidator(prod))
			err := handle(context.Background(), nil, tt.value)
			if err == nil {
				t.Fatal("expected an error")
			}
			if got := errors.Is(err, kafka.ErrSkip); got != tt.wantSkip {
				t.Fatalf("errors.Is(err, ErrSkip) = %v, want %v (err: %v)", got, tt.wantSkip, err)
			}
			if len(prod.events) != 0 {
				t.Fatal("failed message must not announce")
			}
		})
	}
}
