package wake

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalAndDrain(t *testing.T) {
	n := New(8)

	n.Signal()
	assert.Equal(t, 1, n.Pending())
	assert.Equal(t, 1, n.Drain())
	assert.Equal(t, 0, n.Drain(), "second drain finds nothing")
	assert.Equal(t, 0, n.Pending())
}

func TestCoalescingWhenRingFull(t *testing.T) {
	n := New(4)

	for i := 0; i < 10; i++ {
		n.Signal()
	}

	assert.Equal(t, 4, n.Drain(), "only ring capacity signals are retained")

	stats := n.Stats()
	assert.Equal(t, uint64(10), stats.Signaled)
	assert.Equal(t, uint64(6), stats.Coalesced)
	assert.Equal(t, uint64(4), stats.Drained)
}

func TestEdgeChannel(t *testing.T) {
	n := New(4)

	select {
	case <-n.C():
		t.Fatal("edge channel fired without a signal")
	default:
	}

	n.Signal()
	select {
	case <-n.C():
	case <-time.After(time.Second):
		t.Fatal("edge channel did not fire after signal")
	}

	// Repeated signals arm the edge at most once.
	n.Signal()
	n.Signal()
	n.Drain()
	select {
	case <-n.C():
		t.Fatal("drain left a stale edge pending")
	default:
	}
}

func TestDrainReArmsForRacingSignal(t *testing.T) {
	n := New(4)

	n.Signal()
	n.Drain()

	// A signal after the drain must wake the consumer again.
	n.Signal()
	select {
	case <-n.C():
	case <-time.After(time.Second):
		t.Fatal("signal after drain did not re-arm the edge channel")
	}
}

func TestConcurrentSignalAndDrain(t *testing.T) {
	const signals = 5000
	n := New(256)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < signals; i++ {
			n.Signal()
		}
	}()

	total := 0
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
loop:
	for {
		total += n.Drain()
		select {
		case <-done:
			total += n.Drain()
			break loop
		default:
		}
	}

	stats := n.Stats()
	require.Equal(t, uint64(signals), stats.Signaled)
	assert.Equal(t, uint64(total), stats.Drained)
	assert.Equal(t, uint64(signals), stats.Drained+stats.Coalesced,
		"every signal is either drained or coalesced, never lost track of")
}

func TestNewDefaultCapacity(t *testing.T) {
	n := New(0)
	for i := 0; i < DefaultCapacity+10; i++ {
		n.Signal()
	}
	assert.Equal(t, DefaultCapacity, n.Drain())
}
