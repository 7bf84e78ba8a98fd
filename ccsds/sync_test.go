package ccsds

import (
	"testing"
)

func feed(state SyncState, bytes []byte) SyncState {
	for _, b := range bytes {
		state = state.Next(b)
	}
	return state
}

// TestSyncDetectMarker walks the detector through the exact marker.
func TestSyncDetectMarker(t *testing.T) {
	state := SyncFind
	expected := []SyncState{SyncMatched1, SyncMatched2, SyncMatched3, SyncCompleted}
	for i, b := range FrameSync {
		state = state.Next(b)
		if state != expected[i] {
			t.Errorf("after marker byte %d the state was %v, want %v", i, state, expected[i])
		}
	}
}

// TestSyncDetectOverlap feeds a failed partial match whose failure byte is
// itself the start of the real marker.  The resync byte must be consumed
// exactly once.
func TestSyncDetectOverlap(t *testing.T) {
	state := feed(SyncFind, []byte{0x1A, 0xCF, 0x1A, 0xCF, 0xFC, 0x1D})
	if state != SyncCompleted {
		t.Errorf("embedded restart ended in state %v, want SyncCompleted", state)
	}
}

// TestSyncDetectRestartFromEveryDepth fails a match at each depth with a
// marker-start byte and with an unrelated byte.
func TestSyncDetectRestartFromEveryDepth(t *testing.T) {
	for depth := 1; depth <= 3; depth++ {
		state := feed(SyncFind, FrameSync[:depth])

		if s := state.Next(0x1A); s != SyncMatched1 {
			t.Errorf("failing at depth %d on 0x1A gave %v, want SyncMatched1", depth, s)
		}
		if s := state.Next(0x42); s != SyncFind {
			t.Errorf("failing at depth %d on 0x42 gave %v, want SyncFind", depth, s)
		}
	}
}

// TestSyncDetectNoise hides the marker inside unrelated traffic.
func TestSyncDetectNoise(t *testing.T) {
	stream := []byte{0x00, 0xFF, 0x1A, 0x1A, 0xCF, 0xFC, 0x1D, 0x99}
	state := SyncFind
	completedAt := -1
	for i, b := range stream {
		state = state.Next(b)
		if state == SyncCompleted {
			completedAt = i
			break
		}
	}
	if completedAt != 6 {
		t.Errorf("marker completed at index %d, want 6", completedAt)
	}
}

// TestSyncCompletedTerminal: more bytes must not restart the match until the
// caller resets.
func TestSyncCompletedTerminal(t *testing.T) {
	state := feed(SyncFind, FrameSync[:])
	if s := state.Next(0x1A); s != SyncCompleted {
		t.Errorf("byte after completion moved the state to %v", s)
	}
}

// TestSyncInvalidState: garbage states behave like SyncFind.
func TestSyncInvalidState(t *testing.T) {
	if s := SyncState(0xE0).Next(0x1A); s != SyncMatched1 {
		t.Errorf("invalid state on marker start gave %v, want SyncMatched1", s)
	}
	if s := SyncState(0).Next(0x42); s != SyncFind {
		t.Errorf("invalid state on noise gave %v, want SyncFind", s)
	}
}
