// Package mpopt encodes and decodes MPTCP TCP options (CAPABLE, JOIN, DSS,
// ADD_ADDR, FAIL) per the wire formats they use inside the TCP option space.
package mpopt

import (
	"errors"
	"net/netip"
)

// Kind is the TCP option kind byte MPTCP options are carried under.
const Kind = 30

// Subtype identifies which MPTCP option is carried in an option's payload.
type Subtype uint8

const (
	SubtypeCapable Subtype = 0
	SubtypeJoin    Subtype = 1
	SubtypeDSS     Subtype = 2
	SubtypeAddAddr Subtype = 3
	SubtypeFail    Subtype = 6
)

func (s Subtype) String() string {
	switch s {
	case SubtypeCapable:
		return "CAPABLE"
	case SubtypeJoin:
		return "JOIN"
	case SubtypeDSS:
		return "DSS"
	case SubtypeAddAddr:
		return "ADD_ADDR"
	case SubtypeFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// ErrMalformed is wrapped by any decode error caused by a bad option length
// or an internally inconsistent field combination (§7 OptionMalformed). It is
// always local and recoverable: the caller logs and ignores the option.
var ErrMalformed = errors.New("mpopt: malformed option")

// ErrUnknownSubtype is returned for option subtypes this codec doesn't parse.
// The caller should skip the option and continue parsing the option stream.
var ErrUnknownSubtype = errors.New("mpopt: unknown subtype")

// Option is implemented by every decodable MPTCP option.
type Option interface {
	Subtype() Subtype

	// encode appends the option's encoded form (kind, length, and payload)
	// to b and returns the result.
	encode(b []byte) []byte
}

// Encode encodes opt, including the leading kind and length bytes.
func Encode(opt Option) []byte {
	return opt.encode(nil)
}

// CapableStage distinguishes which handshake segment a CAPABLE option is
// carried on, since the payload (and thus wire length) differs by stage.
type CapableStage uint8

const (
	CapableSYN CapableStage = iota
	CapableSYNACK
	CapableACK
)

// Capable is the MP_CAPABLE option (§6.1 subtype 0), negotiating MPTCP
// support and exchanging the 64-bit keys the token and HMACs derive from.
type Capable struct {
	Stage            CapableStage
	Version          uint8
	ChecksumRequired bool
	// Flags carries any flag bits besides the checksum-required bit
	// verbatim, so decode-then-encode round-trips exactly.
	Flags uint8

	// Key is the sender's key. Present on SYN-ACK and ACK.
	Key uint64
	// PeerKey is the key the ACK sender received from its peer, echoed
	// back so both ends can confirm the exchange. ACK only.
	PeerKey uint64
}

func (Capable) Subtype() Subtype { return SubtypeCapable }

// JoinStage distinguishes which handshake segment a JOIN option is carried
// on.
type JoinStage uint8

const (
	JoinSYN JoinStage = iota
	JoinSYNACK
	JoinACK
)

// Join is the MP_JOIN option (§6.1 subtype 1), associating a new subflow's
// SYN with an existing MPCB via the peer's token.
type Join struct {
	Stage  JoinStage
	Backup bool
	AddrID uint8

	// Token is the peer's 32-bit token. SYN only.
	Token uint32
	// Nonce is this end's random nonce. SYN and SYN-ACK.
	Nonce uint32
	// HMAC is the (possibly truncated) HMAC proving key possession: 8
	// bytes on SYN-ACK, 20 bytes (full SHA-1 HMAC width) on ACK.
	HMAC []byte
}

func (Join) Subtype() Subtype { return SubtypeJoin }

// DSS is the Data Sequence Signal option (§6.1 subtype 2): it carries a
// DATA_ACK, a full DSN mapping, DATA_FIN, or any combination.
type DSS struct {
	DataAckPresent bool
	DataAck        uint32

	MappingPresent bool
	DataSeq        uint32
	SubSeq         uint32
	DataLen        uint16

	ChecksumPresent bool
	Checksum        uint16

	DataFin bool
}

func (DSS) Subtype() Subtype { return SubtypeDSS }

// AddAddr is the ADD_ADDR option (§6.1 subtype 3), advertising a remote
// address and its id. Length discriminates v4/v6 and with/without port.
type AddAddr struct {
	AddrID  uint8
	Addr    netip.Addr
	Port    uint16
	HasPort bool
}

func (AddAddr) Subtype() Subtype { return SubtypeAddAddr }

// Fail is the FAIL option (§6.1 subtype 6), signaling a switch to infinite
// mapping starting at DataSeq.
type Fail struct {
	DataSeq uint32
}

func (Fail) Subtype() Subtype { return SubtypeFail }
