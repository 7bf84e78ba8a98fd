package ccsds

// FrameSync is the 4-byte attached synchronization marker transmitted ahead
// of every frame.
var FrameSync = [4]byte{0x1A, 0xCF, 0xFC, 0x1D}

// FrameSyncSize ...
const FrameSyncSize = 4

// SyncState tracks progress through matching the synchronization marker in a
// receive stream.  One SyncState belongs to one stream; it must not be shared
// between concurrently synchronized channels.
type SyncState byte

// Sync detector states.  SyncCompleted is terminal for the current frame;
// the receive loop resets to SyncFind after consuming the frame.
const (
	SyncFind SyncState = 1 << iota
	SyncMatched1
	SyncMatched2
	SyncMatched3
	SyncCompleted
)

// Next consumes one received byte and returns the new state.
//
// On a failed match the byte is re-tested against FrameSync[0] rather than
// discarded, so a byte that ends one match attempt can still start the next
// (e.g. 1A CF 1A CF FC 1D still completes).
func (s SyncState) Next(b byte) SyncState {
	switch s {
	case SyncMatched1:
		if b == FrameSync[1] {
			return SyncMatched2
		}
	case SyncMatched2:
		if b == FrameSync[2] {
			return SyncMatched3
		}
	case SyncMatched3:
		if b == FrameSync[3] {
			return SyncCompleted
		}
	case SyncCompleted:
		return SyncCompleted
	}
	// SyncFind, a failed partial match, or an invalid state: restart on the
	// current byte.
	if b == FrameSync[0] {
		return SyncMatched1
	}
	return SyncFind
}
