package mpopt

import (
	"encoding/binary"
	"fmt"
	"net/netip"
)

const (
	dssFlagDataAck = 1 << 0
	dssFlagMapping = 1 << 2
	dssFlagDataFin = 1 << 4

	joinFlagBackup = 1 << 0

	capableFlagChecksum = 1 << 0
)

// Decode parses a single MPTCP option (including its kind and length bytes)
// from raw. raw may contain trailing bytes belonging to later options; only
// the first option's bytes, as determined by its own length field, are
// consumed.
//
// Decode errors are always local: per §4.3 and §7 (OptionMalformed), the
// caller should log and continue parsing rather than fail the connection.
func Decode(raw []byte) (Option, error) {
	if len(raw) < 2 {
		return nil, fmt.Errorf("%w: option shorter than kind+length", ErrMalformed)
	}
	if raw[0] != Kind {
		return nil, fmt.Errorf("%w: not an mptcp option (kind %d)", ErrMalformed, raw[0])
	}
	l := int(raw[1])
	if l < 3 || l > len(raw) {
		return nil, fmt.Errorf("%w: invalid option length %d", ErrMalformed, l)
	}
	body := raw[2:l]
	subtype := Subtype(body[0] >> 4)
	switch subtype {
	case SubtypeCapable:
		return decodeCapable(body)
	case SubtypeJoin:
		return decodeJoin(body)
	case SubtypeDSS:
		return decodeDSS(body)
	case SubtypeAddAddr:
		return decodeAddAddr(body)
	case SubtypeFail:
		return decodeFail(body)
	default:
		return nil, fmt.Errorf("%w: subtype %d", ErrUnknownSubtype, subtype)
	}
}

// Len reports the total wire length (kind+length+payload) Encode(opt) would
// produce, without allocating.
func Len(opt Option) int {
	return len(opt.encode(nil))
}

func header(b []byte, subtypeVersion byte, payloadLen int) []byte {
	b = append(b, Kind, byte(2+1+payloadLen), subtypeVersion)
	return b
}

// --- CAPABLE ---

func (c Capable) encode(b []byte) []byte {
	flags := c.Flags &^ capableFlagChecksum
	if c.ChecksumRequired {
		flags |= capableFlagChecksum
	}
	switch c.Stage {
	case CapableSYN:
		b = header(b, byte(SubtypeCapable)<<4|c.Version&0x0f, 1)
		b = append(b, flags)
	case CapableSYNACK:
		b = header(b, byte(SubtypeCapable)<<4|c.Version&0x0f, 1+8)
		b = append(b, flags)
		b = binary.BigEndian.AppendUint64(b, c.Key)
	case CapableACK:
		b = header(b, byte(SubtypeCapable)<<4|c.Version&0x0f, 1+8+8)
		b = append(b, flags)
		b = binary.BigEndian.AppendUint64(b, c.Key)
		b = binary.BigEndian.AppendUint64(b, c.PeerKey)
	}
	return b
}

func decodeCapable(body []byte) (Option, error) {
	if len(body) < 2 {
		return nil, fmt.Errorf("%w: CAPABLE too short", ErrMalformed)
	}
	c := Capable{
		Version: body[0] & 0x0f,
		Flags:   body[1] &^ capableFlagChecksum,
	}
	c.ChecksumRequired = body[1]&capableFlagChecksum != 0

	switch len(body) {
	case 2:
		c.Stage = CapableSYN
	case 2 + 8:
		c.Stage = CapableSYNACK
		c.Key = binary.BigEndian.Uint64(body[2:])
	case 2 + 8 + 8:
		c.Stage = CapableACK
		c.Key = binary.BigEndian.Uint64(body[2:])
		c.PeerKey = binary.BigEndian.Uint64(body[10:])
	default:
		return nil, fmt.Errorf("%w: CAPABLE length %d", ErrMalformed, len(body)+2)
	}
	return c, nil
}

// --- JOIN ---

func (j Join) encode(b []byte) []byte {
	var flags byte
	if j.Backup {
		flags |= joinFlagBackup
	}
	switch j.Stage {
	case JoinSYN:
		b = header(b, byte(SubtypeJoin)<<4|flags, 1+4+4)
		b = append(b, j.AddrID)
		b = binary.BigEndian.AppendUint32(b, j.Token)
		b = binary.BigEndian.AppendUint32(b, j.Nonce)
	case JoinSYNACK:
		h := make([]byte, 8)
		copy(h, j.HMAC)
		b = header(b, byte(SubtypeJoin)<<4|flags, 1+8+4)
		b = append(b, j.AddrID)
		b = append(b, h...)
		b = binary.BigEndian.AppendUint32(b, j.Nonce)
	case JoinACK:
		h := make([]byte, 20)
		copy(h, j.HMAC)
		b = header(b, byte(SubtypeJoin)<<4|flags, 1+20)
		b = append(b, 0) // reserved, no addr-id on the completing ACK
		b = append(b, h...)
	}
	return b
}

func decodeJoin(body []byte) (Option, error) {
	if len(body) < 2 {
		return nil, fmt.Errorf("%w: JOIN too short", ErrMalformed)
	}
	j := Join{Backup: body[0]&joinFlagBackup != 0, AddrID: body[1]}
	switch len(body) {
	case 2 + 4 + 4:
		j.Stage = JoinSYN
		j.Token = binary.BigEndian.Uint32(body[2:])
		j.Nonce = binary.BigEndian.Uint32(body[6:])
	case 2 + 8 + 4:
		j.Stage = JoinSYNACK
		j.HMAC = append([]byte(nil), body[2:10]...)
		j.Nonce = binary.BigEndian.Uint32(body[10:])
	case 2 + 20:
		j.Stage = JoinACK
		j.AddrID = 0
		j.HMAC = append([]byte(nil), body[2:22]...)
	default:
		return nil, fmt.Errorf("%w: JOIN length %d", ErrMalformed, len(body)+2)
	}
	return j, nil
}

// --- DSS ---

func (d DSS) encode(b []byte) []byte {
	var flags byte
	if d.DataAckPresent {
		flags |= dssFlagDataAck
	}
	if d.MappingPresent {
		flags |= dssFlagMapping
	}
	if d.DataFin {
		flags |= dssFlagDataFin
	}

	n := 1
	if d.DataAckPresent {
		n += 4
	}
	if d.MappingPresent {
		n += 4 + 4 + 2
		if d.ChecksumPresent {
			n += 2
		}
	}

	b = header(b, byte(SubtypeDSS)<<4, n)
	b = append(b, flags)
	if d.DataAckPresent {
		b = binary.BigEndian.AppendUint32(b, d.DataAck)
	}
	if d.MappingPresent {
		b = binary.BigEndian.AppendUint32(b, d.DataSeq)
		b = binary.BigEndian.AppendUint32(b, d.SubSeq)
		b = binary.BigEndian.AppendUint16(b, d.DataLen)
		if d.ChecksumPresent {
			b = binary.BigEndian.AppendUint16(b, d.Checksum)
		}
	}
	return b
}

func decodeDSS(body []byte) (Option, error) {
	if len(body) < 2 {
		return nil, fmt.Errorf("%w: DSS too short", ErrMalformed)
	}
	flags := body[1]
	d := DSS{
		DataAckPresent: flags&dssFlagDataAck != 0,
		MappingPresent: flags&dssFlagMapping != 0,
		DataFin:        flags&dssFlagDataFin != 0,
	}
	p := body[2:]
	if d.DataAckPresent {
		if len(p) < 4 {
			return nil, fmt.Errorf("%w: DSS DATA_ACK truncated", ErrMalformed)
		}
		d.DataAck = binary.BigEndian.Uint32(p)
		p = p[4:]
	}
	if d.MappingPresent {
		if len(p) < 10 {
			return nil, fmt.Errorf("%w: DSS mapping truncated", ErrMalformed)
		}
		d.DataSeq = binary.BigEndian.Uint32(p)
		d.SubSeq = binary.BigEndian.Uint32(p[4:])
		d.DataLen = binary.BigEndian.Uint16(p[8:])
		p = p[10:]
		if len(p) >= 2 {
			d.ChecksumPresent = true
			d.Checksum = binary.BigEndian.Uint16(p)
			p = p[2:]
		}
	}
	if len(p) != 0 {
		return nil, fmt.Errorf("%w: DSS has %d trailing bytes", ErrMalformed, len(p))
	}
	return d, nil
}

// MappingBytes returns the wire encoding of the mapping fields alone
// (DataSeq, SubSeq, DataLen; 10 bytes) with no flags, checksum, or header
// attached. This is the "mapping bytes ... for MPTCP_SUB_LEN_SEQ_CSUM
// bytes" the checksum of §4.3 runs over, alongside the segment payload.
func (d DSS) MappingBytes() []byte {
	b := make([]byte, 0, 10)
	b = binary.BigEndian.AppendUint32(b, d.DataSeq)
	b = binary.BigEndian.AppendUint32(b, d.SubSeq)
	b = binary.BigEndian.AppendUint16(b, d.DataLen)
	return b
}

// --- ADD_ADDR ---

func (a AddAddr) encode(b []byte) []byte {
	ipver := byte(4)
	if a.Addr.Is6() && !a.Addr.Is4In6() {
		ipver = 6
	}
	var addrSlice []byte
	if ipver == 6 {
		a16 := a.Addr.As16()
		addrSlice = a16[:]
	} else {
		a4 := a.Addr.As4()
		addrSlice = a4[:]
	}

	n := 1 + len(addrSlice)
	if a.HasPort {
		n += 2
	}
	b = header(b, byte(SubtypeAddAddr)<<4|ipver&0x0f, n)
	b = append(b, a.AddrID)
	b = append(b, addrSlice...)
	if a.HasPort {
		b = binary.BigEndian.AppendUint16(b, a.Port)
	}
	return b
}

func decodeAddAddr(body []byte) (Option, error) {
	if len(body) < 2 {
		return nil, fmt.Errorf("%w: ADD_ADDR too short", ErrMalformed)
	}
	ipver := body[0] & 0x0f
	a := AddAddr{AddrID: body[1]}
	p := body[2:]
	switch {
	case ipver == 4 && len(p) == 4:
		var b4 [4]byte
		copy(b4[:], p)
		a.Addr = netip.AddrFrom4(b4)
	case ipver == 4 && len(p) == 6:
		var b4 [4]byte
		copy(b4[:], p[:4])
		a.Addr = netip.AddrFrom4(b4)
		a.Port = binary.BigEndian.Uint16(p[4:])
		a.HasPort = true
	case ipver == 6 && len(p) == 16:
		var b16 [16]byte
		copy(b16[:], p)
		a.Addr = netip.AddrFrom16(b16)
	case ipver == 6 && len(p) == 18:
		var b16 [16]byte
		copy(b16[:], p[:16])
		a.Addr = netip.AddrFrom16(b16)
		a.Port = binary.BigEndian.Uint16(p[16:])
		a.HasPort = true
	default:
		return nil, fmt.Errorf("%w: ADD_ADDR ipver=%d len=%d", ErrMalformed, ipver, len(body))
	}
	return a, nil
}

// --- FAIL ---

func (f Fail) encode(b []byte) []byte {
	b = header(b, byte(SubtypeFail)<<4, 1+4)
	b = append(b, 0)
	b = binary.BigEndian.AppendUint32(b, f.DataSeq)
	return b
}

func decodeFail(body []byte) (Option, error) {
	if len(body) != 2+4 {
		return nil, fmt.Errorf("%w: FAIL length %d", ErrMalformed, len(body)+2)
	}
	return Fail{DataSeq: binary.BigEndian.Uint32(body[2:])}, nil
}
