package stream

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyperjump/bunbetsu/internal/llm"
	"github.com/hyperjump/bunbetsu/internal/models"
)

func scripted(frags []string, tail error) Opener {
	rt := &llm.Scripted{
		Fragments:    map[string][]string{"m": frags},
		StreamErrors: map[string]error{},
	}
	if tail != nil {
		rt.StreamErrors["m"] = tail
	}
	return func(ctx context.Context) (llm.FragmentIterator, error) {
		return rt.ChatStream(ctx, llm.ChatRequest{Model: "m"})
	}
}

func TestBridge_OrderedUnderCapacityOne(t *testing.T) {
	for i := 0; i < 20; i++ {
		s := Bridge(context.Background(), scripted([]string{"A", "B", "C"}, nil), Options{Capacity: 1})
		var got []models.StreamFragment
		for f := range s.C() {
			time.Sleep(time.Millisecond)
			got = append(got, f)
		}
		want := []models.StreamFragment{
			{Kind: models.FragmentChunk, Payload: "A"},
			{Kind: models.FragmentChunk, Payload: "B"},
			{Kind: models.FragmentChunk, Payload: "C"},
			{Kind: models.FragmentComplete, Payload: "ABC"},
		}
		if len(got) != len(want) {
			t.Fatalf("run %d: got %v", i, got)
		}
		for j := range want {
			if got[j] != want[j] {
				t.Fatalf("run %d: fragment %d = %+v, want %+v", i, j, got[j], want[j])
			}
		}
	}
}

func TestBridge_ErrorBecomesSingleFragment(t *testing.T) {
	var doneText string
	var doneErr error
	s := Bridge(context.Background(), scripted([]string{"A"}, errors.New("connection reset")), Options{
		ErrorMessage: func(error) string { return "sorry" },
		OnDone:       func(text string, err error) { doneText, doneErr = text, err },
	})
	text, last := Collect(s)
	if text != "A" {
		t.Errorf("chunks = %q", text)
	}
	if last.Kind != models.FragmentError || last.Payload != "sorry" {
		t.Errorf("terminal = %+v", last)
	}
	<-s.Done()
	if doneText != "A" || doneErr == nil {
		t.Errorf("OnDone got %q, %v", doneText, doneErr)
	}
}

func TestBridge_OpenFailure(t *testing.T) {
	s := Bridge(context.Background(), func(ctx context.Context) (llm.FragmentIterator, error) {
		return nil, errors.New("refused")
	}, Options{})
	text, last := Collect(s)
	if text != "" || last.Kind != models.FragmentError || last.Payload != "refused" {
		t.Errorf("got %q, %+v", text, last)
	}
	if _, err := s.Result(); err == nil {
		t.Error("Result should carry the open error")
	}
}

type endless struct{ produced atomic.Int64 }

func (e *endless) Next() (string, error) {
	e.produced.Add(1)
	return "x", nil
}

func (e *endless) Close() error { return nil }

func TestBridge_CloseStopsProducer(t *testing.T) {
	it := &endless{}
	s := Bridge(context.Background(), func(ctx context.Context) (llm.FragmentIterator, error) {
		return it, nil
	}, Options{Capacity: 2})

	f, ok, err := s.Poll(time.Second)
	if err != nil || !ok || f.Payload != "x" {
		t.Fatalf("Poll = %+v, %v, %v", f, ok, err)
	}
	s.Close()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("producer did not stop after Close")
	}
	n := it.produced.Load()
	time.Sleep(10 * time.Millisecond)
	if it.produced.Load() != n {
		t.Error("producer kept pulling fragments after stopping")
	}
}

type blocked struct{ release chan struct{} }

func (b *blocked) Next() (string, error) {
	<-b.release
	return "", io.EOF
}

func (b *blocked) Close() error { return nil }

func TestStream_PollTimeoutAndClosed(t *testing.T) {
	it := &blocked{release: make(chan struct{})}
	s := Bridge(context.Background(), func(ctx context.Context) (llm.FragmentIterator, error) {
		return it, nil
	}, Options{})

	if _, ok, err := s.Poll(5 * time.Millisecond); ok || err != nil {
		t.Fatalf("expected timeout, got ok=%v err=%v", ok, err)
	}
	close(it.release)
	f, ok, err := s.Poll(time.Second)
	if !ok || err != nil || f.Kind != models.FragmentComplete {
		t.Fatalf("expected completion, got %+v ok=%v err=%v", f, ok, err)
	}
	if _, _, err := s.Poll(time.Second); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestText(t *testing.T) {
	text, last := Collect(Text("資源化物"))
	if text != "資源化物" || last.Kind != models.FragmentComplete || last.Payload != "資源化物" {
		t.Errorf("got %q, %+v", text, last)
	}
	_, last = Collect(Failed("sorry", errors.New("down")))
	if last.Kind != models.FragmentError || last.Payload != "sorry" {
		t.Errorf("Failed terminal = %+v", last)
	}
}
