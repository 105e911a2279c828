package api

import (
	"testing"
	"time"
)

// Broadcast is called from the ingest pipeline while its admission slot is
// held; a full buffer must cost a dropped message, never a blocked caller.
func TestStreamHub_BroadcastNeverBlocks(t *testing.T) {
	s := NewStreamHub()
	// No Run loop draining the channel: the buffer fills and stays full.

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			s.Broadcast([]byte(`{"type":"advisory"}`))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Broadcast blocked on a full buffer")
	}
}
