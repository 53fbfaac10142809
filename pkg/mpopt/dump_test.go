package mpopt

import (
	"bytes"
	"net/netip"
	"strings"
	"testing"
)

func TestDumpOptions(t *testing.T) {
	var raw []byte
	raw = append(raw, Encode(Capable{Stage: CapableSYN, ChecksumRequired: true})...)
	raw = append(raw, Encode(DSS{MappingPresent: true, DataSeq: 100, SubSeq: 1, DataLen: 10})...)
	raw = append(raw, Encode(AddAddr{AddrID: 2, Addr: netip.MustParseAddr("10.0.0.2")})...)

	var buf bytes.Buffer
	if err := DumpOptions(&buf, raw); err != nil {
		t.Fatalf("DumpOptions: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"CAPABLE", "DSS", "ADD_ADDR", "10.0.0.2"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if got := strings.Count(out, "\n"); got != 3 {
		t.Errorf("expected 3 lines, got %d:\n%s", got, out)
	}
}

func TestDumpOptionsMalformed(t *testing.T) {
	raw := []byte{Kind, 3, 0xF0} // unknown subtype, still well-framed
	var buf bytes.Buffer
	if err := DumpOptions(&buf, raw); err != nil {
		t.Fatalf("DumpOptions: %v", err)
	}
	if !strings.Contains(buf.String(), "malformed") {
		t.Errorf("expected a malformed marker in output, got %q", buf.String())
	}
}

func TestDumpOptionsTruncated(t *testing.T) {
	raw := []byte{Kind, 10, 1, 2} // length byte claims more than is present
	if err := DumpOptions(&bytes.Buffer{}, raw); err == nil {
		t.Fatal("expected an error for a truncated option run")
	}
}
