package mptcp

import "errors"

// Sentinel errors for the error kinds of §7. Propagation policy: codec-level
// errors (OptionMalformed, ChecksumMismatch, AddressSetFull) are local and
// recovered; protocol-layer violations (MappingViolation) fail the MPCB; IO
// errors surface as classical send/recv errors on the master socket after
// fallback or close.
var (
	// ErrOptionMalformed: DSS/ADD_ADDR/JOIN of wrong length. Logged,
	// ignored; connection continues.
	ErrOptionMalformed = errors.New("mptcp: malformed option")

	// ErrChecksumMismatch: DSS checksum failure. The carrying subflow is
	// reset; infinite-mapping fallback may follow.
	ErrChecksumMismatch = errors.New("mptcp: dss checksum mismatch")

	// ErrMappingViolation: subflow bytes outside its current mapping
	// cursor. Fatal for the MPCB.
	ErrMappingViolation = errors.New("mptcp: mapping violation")

	// ErrTokenUnknown: JOIN references a token with no MPCB.
	ErrTokenUnknown = errors.New("mptcp: unknown token")

	// ErrAddressSetFull: address set cap reached.
	ErrAddressSetFull = errors.New("mptcp: address set full")

	// ErrBackpressureDrop: backlog full when deferring packet processing.
	ErrBackpressureDrop = errors.New("mptcp: backpressure drop")

	// ErrFallbackRequired: CAPABLE missing at handshake end.
	ErrFallbackRequired = errors.New("mptcp: capable missing, falling back to tcp")

	// ErrSubflowReset: underlying subflow reset.
	ErrSubflowReset = errors.New("mptcp: subflow reset")

	// ErrClosed is returned by meta-socket operations once the MPCB has
	// been closed.
	ErrClosed = errors.New("mptcp: closed")
)
