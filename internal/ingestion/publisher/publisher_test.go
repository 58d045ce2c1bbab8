package publisher

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/histogram-search/pkg/kafka"
)

type recordingProducer struct {
	mu     sync.Mutex
	events []kafka.Event
	err    error
}

func (p *recordingProducer) Publish(_ context.Context, event kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *recordingProducer) PublishBatch(ctx context.Context, events []kafka.Event) error {
	for _, e := range events {
		if err := p.Publish(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

type fakeIndexer struct {
	docs []indexer.Document
	err  error
}

func (f *fakeIndexer) IndexDocument(_ context.Context, doc indexer.Document) (indexer.Result, error) {
	if f.err != nil {
		return indexer.Result{}, f.err
	}
	f.docs = append(f.docs, doc)
	return indexer.Result{DocumentID: doc.ID}, nil
}

func TestPublisherSubmit(t *testing.T) {
	prod := &recordingProducer{}
	resp, err := New(prod).Submit(context.Background(), &ingestion.DocumentRequest{DocumentID: 7, Text: "cat", Private: true})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != ingestion.StatusQueued || resp.DocumentID != 7 {
		t.Fatalf("response = %+v", resp)
	}
	if len(prod.events) != 1 || prod.events[0].Key != "7" {
		t.Fatalf("events = %+v", prod.events)
	}
	ev, ok := prod.events[0].Value.(ingestion.DocumentEvent)
	if !ok || ev.Text != "cat" || !ev.Private || ev.IngestedAt.IsZero() {
		t.Fatalf("event value = %#v", prod.events[0].Value)
	}
}

func TestPublisherSubmitError(t *testing.T) {
	boom := errors.New("broker down")
	_, err := New(&recordingProducer{err: boom}).Submit(context.Background(), &ingestion.DocumentRequest{DocumentID: 1, Text: "x"})
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v", err)
	}
}

func TestDirectSubmitIndexesAndAnnounces(t *testing.T) {
	idx := &fakeIndexer{}
	prod := &recordingProducer{}
	resp, err := NewDirect(idx, NewInvalidator(prod)).Submit(context.Background(), &ingestion.DocumentRequest{DocumentID: 3, Text: "dog"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != ingestion.StatusIndexed || len(idx.docs) != 1 || idx.docs[0].Text != "dog" {
		t.Fatalf("resp = %+v, docs = %+v", resp, idx.docs)
	}
	if len(prod.events) != 1 {
		t.Fatalf("announced %d events, want 1", len(prod.events))
	}
	if ev := prod.events[0].Value.(ingestion.IndexedEvent); ev.Action != ingestion.ActionIndexed || ev.DocumentID != 3 {
		t.Fatalf("announcement = %+v", ev)
	}
}

func TestDirectSubmitError(t *testing.T) {
	boom := errors.New("store down")
	prod := &recordingProducer{}
	if _, err := NewDirect(&fakeIndexer{err: boom}, NewInvalidator(prod)).Submit(context.Background(), &ingestion.DocumentRequest{DocumentID: 1, Text: "x"}); !errors.Is(err, boom) {
		t.Fatalf("error = %v", err)
	}
	if len(prod.events) != 0 {
		t.Fatal("failed indexing must not announce")
	}
}

func TestNilInvalidatorIsNoop(t *testing.T) {
	var inv *Invalidator
	inv.Announce(context.Background(), 1, ingestion.ActionDeleted)
	NewInvalidator(nil).Announce(context.Background(), 1, ingestion.ActionDeleted)
	NewInvalidator(&recordingProducer{err: errors.New("x")}).Announce(context.Background(), 1, ingestion.ActionDeleted)
}
