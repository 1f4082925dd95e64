package nanotec

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	f := frame{Address: 3, Command: cmdConfigureMove, Payload: []byte{1, 2, 3, 4, 5, 6, 7, 8}}
	raw, err := encode(f)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if raw[len(raw)-1] != syncByte {
		t.Fatalf("expected trailing sync byte, got %x", raw[len(raw)-1])
	}

	got, consumed, ok := decode(raw)
	if !ok {
		t.Fatalf("decode: not ok")
	}
	if consumed != len(raw) {
		t.Fatalf("consumed = %d, want %d", consumed, len(raw))
	}
	if got.Address != f.Address || got.Command != f.Command || !bytes.Equal(got.Payload, f.Payload) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, f)
	}
}

func TestDecodeBadCRCResyncs(t *testing.T) {
	f := frame{Address: 1, Command: cmdStartMotor}
	raw, err := encode(f)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	raw[len(raw)-2] ^= 0xFF // corrupt CRC low byte

	_, consumed, ok := decode(raw)
	if ok {
		t.Fatalf("expected decode failure on corrupted CRC")
	}
	if consumed != 1 {
		t.Fatalf("expected resync to advance by 1 byte, got %d", consumed)
	}
}

func TestDecodeIncompleteBufferWaits(t *testing.T) {
	f := frame{Address: 2, Command: cmdEnableAutoStatus, Payload: []byte{1}}
	raw, err := encode(f)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	_, consumed, ok := decode(raw[:len(raw)-1])
	if ok || consumed != 0 {
		t.Fatalf("expected to wait for more data, got consumed=%d ok=%v", consumed, ok)
	}
}
