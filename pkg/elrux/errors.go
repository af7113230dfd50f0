package elrux

import "errors"

var (
	// ErrInvalidFrameID is returned by Touch/ReleaseFrame when id is outside [0, N).
	// Programming error; callers should treat it as fatal to the calling
	// operation.
	ErrInvalidFrameID = errors.New("elrux: invalid frame id")

	// ErrNoUnpinnedBuffer is returned by AcquireFrame when every resident
	// frame is pinned, the free list is empty, and the ring offered nothing
	// usable.
	ErrNoUnpinnedBuffer = errors.New("elrux: no unpinned buffer available")

	// ErrUnrecognizedRingKind is returned by NewRing for an unknown kind.
	ErrUnrecognizedRingKind = errors.New("elrux: unrecognized ring kind")
)
