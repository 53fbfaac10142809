package mpopt

import (
	"net/netip"
	"reflect"
	"testing"
)

// TestRoundTrip exercises the "encode then decode yields the original
// fields" law of §8 for every option subtype and stage.
func TestRoundTrip(t *testing.T) {
	cases := []Option{
		Capable{Stage: CapableSYN, Version: 1, ChecksumRequired: true},
		Capable{Stage: CapableSYNACK, Version: 1, Key: 0x1122334455667788},
		Capable{Stage: CapableACK, Version: 1, Key: 0x1122334455667788, PeerKey: 0x8877665544332211},
		Join{Stage: JoinSYN, AddrID: 3, Token: 0xdeadbeef, Nonce: 0x12345678},
		Join{Stage: JoinSYNACK, Backup: true, AddrID: 4, HMAC: []byte{1, 2, 3, 4, 5, 6, 7, 8}, Nonce: 9},
		Join{Stage: JoinACK, HMAC: []byte{
			1, 2, 3, 4, 5, 6, 7, 8, 9, 10,
			11, 12, 13, 14, 15, 16, 17, 18, 19, 20,
		}},
		DSS{DataAckPresent: true, DataAck: 42},
		DSS{MappingPresent: true, DataSeq: 100, SubSeq: 7, DataLen: 50},
		DSS{MappingPresent: true, ChecksumPresent: true, DataSeq: 100, SubSeq: 7, DataLen: 50, Checksum: 0xbeef},
		DSS{DataAckPresent: true, DataAck: 1, MappingPresent: true, DataSeq: 2, SubSeq: 3, DataLen: 4, DataFin: true},
		AddAddr{AddrID: 1, Addr: netip.MustParseAddr("10.0.0.1")},
		AddAddr{AddrID: 2, Addr: netip.MustParseAddr("10.0.0.2"), Port: 8080, HasPort: true},
		AddAddr{AddrID: 5, Addr: netip.MustParseAddr("2001:db8::1")},
		AddAddr{AddrID: 6, Addr: netip.MustParseAddr("2001:db8::2"), Port: 443, HasPort: true},
		Fail{DataSeq: 0xcafef00d},
	}

	for _, want := range cases {
		raw := Encode(want)
		got, err := Decode(raw)
		if err != nil {
			t.Fatalf("decode %#v: %v", want, err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("round-trip mismatch:\n  want %#v\n  got  %#v", want, got)
		}
	}
}

func TestDecodeRejectsBadLength(t *testing.T) {
	raw := Encode(Capable{Stage: CapableSYN, Version: 1})
	raw[1] = 200 // length exceeds buffer
	if _, err := Decode(raw); err == nil {
		t.Fatal("expected error for out-of-range length")
	}
}

func TestDecodeRejectsWrongKind(t *testing.T) {
	raw := Encode(Fail{DataSeq: 1})
	raw[0] = 99
	if _, err := Decode(raw); err == nil {
		t.Fatal("expected error for wrong option kind")
	}
}

func TestDecodeUnknownSubtype(t *testing.T) {
	raw := []byte{Kind, 3, 0xF0}
	if _, err := Decode(raw); err == nil {
		t.Fatal("expected error for unknown subtype")
	}
}

func TestLenMatchesEncodedLength(t *testing.T) {
	opt := DSS{MappingPresent: true, DataSeq: 1, SubSeq: 2, DataLen: 3}
	if n, want := Len(opt), len(Encode(opt)); n != want {
		t.Errorf("Len() = %d, want %d", n, want)
	}
}

func TestChecksum16(t *testing.T) {
	// Checksumming the payload and the mapping bytes as separate parts must
	// give the same value as checksumming their concatenation.
	payload := []byte{0x01, 0x02, 0x03, 0x04, 0x05}
	mapping := []byte{0x10, 0x20}
	c1 := Checksum16(payload, mapping)
	c2 := Checksum16(append(append([]byte(nil), payload...), mapping...))
	if c1 != c2 {
		t.Errorf("checksum over split parts (%#x) != checksum over concatenated buffer (%#x)", c1, c2)
	}
}
