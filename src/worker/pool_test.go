package worker

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type slowEngine struct {
	active  atomic.Int32
	maxSeen atomic.Int32
}

func (e *slowEngine) Recognize(ctx context.Context, image []byte) (string, error) {
	n := e.active.Add(1)
	defer e.active.Add(-1)
	for {
		m := e.maxSeen.Load()
		if n <= m || e.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	// Later images finish first to prove ordering does not depend on timing.
	time.Sleep(time.Duration(10-len(image)) * time.Millisecond)
	if string(image) == "bad" {
		return "", errors.New("unreadable")
	}
	return strings.ToUpper(string(image)), nil
}

func TestRecognizeAllPreservesOrder(t *testing.T) {
	e := &slowEngine{}
	p := New(3, e)
	defer p.Close()

	images := [][]byte{[]byte("a"), []byte("bb"), []byte("bad"), []byte("dddd"), []byte("eeeee")}
	got := p.RecognizeAll(context.Background(), images)

	want := []string{"A", "BB", "", "DDDD", "EEEEE"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("RecognizeAll = %q, want %q", got, want)
	}
	if e.maxSeen.Load() > 3 {
		t.Errorf("expected at most 3 concurrent jobs, saw %d", e.maxSeen.Load())
	}
}

func TestRecognizeAllEmpty(t *testing.T) {
	p := New(2, &slowEngine{})
	defer p.Close()

	if got := p.RecognizeAll(context.Background(), nil); len(got) != 0 {
		t.Errorf("expected no results, got %v", got)
	}
}

func TestRecognizeCancelled(t *testing.T) {
	p := New(1, &slowEngine{})
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Recognize(ctx, []byte("a")); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRecognizeAllCancelledReturnsDispatchedOnly(t *testing.T) {
	p := New(2, &slowEngine{})
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got := p.RecognizeAll(ctx, [][]byte{[]byte("a"), []byte("bb")})
	if len(got) != 0 {
		t.Errorf("expected no texts after cancellation, got %q", got)
	}
}

func TestNewDefaultsToNumCPU(t *testing.T) {
	p := New(0, &slowEngine{})
	defer p.Close()

	got := p.RecognizeAll(context.Background(), [][]byte{[]byte("x")})
	if len(got) != 1 || got[0] != "X" {
		t.Errorf("unexpected result %v", got)
	}
}
