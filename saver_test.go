package reader

import (
	"testing"
	"time"
)

func TestSaver_CoalescesQueuedRequests(t *testing.T) {
	fs := newFakeStore()
	fs.gate = make(chan struct{})
	s := newSaver(fs, quietLogger())
	defer s.close()

	s.save(saveRequest{bookID: "b", pos: ReadingPosition{Unit: 0}})
	// Let the first write start and block on the gate.
	time.Sleep(20 * time.Millisecond)
	for unit := 1; unit <= 3; unit++ {
		s.save(saveRequest{bookID: "b", pos: ReadingPosition{Unit: unit}})
	}
	close(fs.gate)
	s.flush()

	saves := fs.history()
	if len(saves) == 0 || saves[len(saves)-1].Unit != 3 {
		t.Fatalf("saves = %+v, want last write for unit 3", saves)
	}
	if len(saves) > 2 {
		t.Errorf("wrote %d times, want queued requests coalesced", len(saves))
	}
}

func TestSaver_CloseWritesPending(t *testing.T) {
	fs := newFakeStore()
	s := newSaver(fs, quietLogger())

	s.save(saveRequest{bookID: "b", pos: ReadingPosition{Unit: 4, Fraction: 0.5}, percent: 45})
	s.close()
	s.close()

	saves := fs.history()
	if len(saves) != 1 || saves[0].Unit != 4 || saves[0].Percent != 45 {
		t.Errorf("saves = %+v, want the pending request written", saves)
	}

	s.save(saveRequest{bookID: "b"})
	s.flush()
	if len(fs.history()) != 1 {
		t.Error("save after close was written")
	}
}

func TestSaver_FlushIdle(t *testing.T) {
	s := newSaver(newFakeStore(), quietLogger())
	defer s.close()

	done := make(chan struct{})
	go func() {
		s.flush()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("flush on an idle saver did not return")
	}
}
