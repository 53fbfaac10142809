package mpopt

import (
	"fmt"
	"io"
)

// DumpOptions decodes the concatenated run of MPTCP options in raw and
// writes one line per option to w, in the same one-option-per-line style
// the teacher's packet-kind dumpers use for describing a decoded frame.
// Malformed trailing bytes are reported rather than silently dropped.
func DumpOptions(w io.Writer, raw []byte) error {
	n := 0
	for len(raw) > 0 {
		if len(raw) < 2 {
			return fmt.Errorf("mpopt: %d trailing byte(s) too short for an option header", len(raw))
		}
		l := int(raw[1])
		if l < 3 || l > len(raw) {
			return fmt.Errorf("mpopt: option %d has invalid length %d (%d bytes remain)", n, l, len(raw))
		}

		opt, err := Decode(raw[:l])
		if err != nil {
			fmt.Fprintf(w, "%d: <malformed: %v>\n", n, err)
		} else {
			dumpOne(w, n, opt)
		}

		raw = raw[l:]
		n++
	}
	return nil
}

func dumpOne(w io.Writer, n int, opt Option) {
	switch o := opt.(type) {
	case Capable:
		fmt.Fprintf(w, "%d: CAPABLE stage=%d checksum=%v key=%#x peerkey=%#x\n", n, o.Stage, o.ChecksumRequired, o.Key, o.PeerKey)
	case Join:
		fmt.Fprintf(w, "%d: JOIN stage=%d addr_id=%d backup=%v token=%#x nonce=%#x hmac=%x\n", n, o.Stage, o.AddrID, o.Backup, o.Token, o.Nonce, o.HMAC)
	case DSS:
		fmt.Fprintf(w, "%d: DSS data_ack=%v(%d) mapping=%v(seq=%d sub=%d len=%d) checksum=%v(%#x) fin=%v\n",
			n, o.DataAckPresent, o.DataAck, o.MappingPresent, o.DataSeq, o.SubSeq, o.DataLen, o.ChecksumPresent, o.Checksum, o.DataFin)
	case AddAddr:
		fmt.Fprintf(w, "%d: ADD_ADDR id=%d addr=%s port=%d(%v)\n", n, o.AddrID, o.Addr, o.Port, o.HasPort)
	case Fail:
		fmt.Fprintf(w, "%d: FAIL data_seq=%d\n", n, o.DataSeq)
	default:
		fmt.Fprintf(w, "%d: %s <unrecognized option type>\n", n, opt.Subtype())
	}
}
