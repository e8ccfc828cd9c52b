package distribdtypes

import "errors"

// Sentinel errors for the error kinds enumerated in the error handling
// design. Callers use errors.Is/errors.As rather than string matching.
var (
	// ErrNotALeader is returned by transport.Client.AddEntry when the peer
	// answers that it is not the leader; the submitter then tries another peer.
	ErrNotALeader = errors.New("not a leader")

	// ErrDigestMismatch is returned by the mirror's transfer protocol when
	// the downloaded bytes' SHA-256 does not match the expected digest.
	ErrDigestMismatch = errors.New("digest mismatch")

	// ErrQuorumUnavailable is returned by the event submitter when no
	// leader could be found within the retry bound.
	ErrQuorumUnavailable = errors.New("quorum unavailable")

	// ErrLogCorrupt is returned by the log store's load on a malformed
	// non-trailing line; the process must not start.
	ErrLogCorrupt = errors.New("log corrupt")

	// ErrUnknownTag is returned by the reducer when a repository+tag pair
	// has never been bound by a hash-tagged action.
	ErrUnknownTag = errors.New("unknown tag")

	// ErrPeerUnreachable is the normalized form of any peer transport
	// failure (non-200, connection error, timeout).
	ErrPeerUnreachable = errors.New("peer unreachable")

	// ErrInvalidDigest is returned by ParseDigest for malformed input.
	ErrInvalidDigest = errors.New("invalid digest")

	// ErrUnknownAction is a fatal, non-recoverable error: the reducer was
	// asked to apply an action tag outside the closed set in the data
	// model. It indicates a programming error, not a runtime condition.
	ErrUnknownAction = errors.New("unknown action tag")
)
