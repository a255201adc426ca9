package wire

import "testing"

func TestHeaderEncodeDecodeRoundTrip(t *testing.T) {
	h := Header{
		InitiatorSPI: 0x0102030405060708,
		ResponderSPI: 0x1112131415161718,
		NextPayload:  33,
		MajorVersion: 2,
		MinorVersion: 0,
		Exchange:     ExchangeCreateChild,
		Flags:        FlagInitiator,
		MessageID:    7,
	}
	body := []byte{0xde, 0xad, 0xbe, 0xef}

	buf := EncodeHeader(h, body)

	got, rest, err := DecodeHeader(buf)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if got.InitiatorSPI != h.InitiatorSPI || got.ResponderSPI != h.ResponderSPI {
		t.Errorf("SPI pair mismatch: got %+v", got)
	}
	if got.Exchange != ExchangeCreateChild || !got.Flags.IsInitiator() {
		t.Errorf("exchange/flags mismatch: got %+v", got)
	}
	if string(rest) != string(body) {
		t.Errorf("rest = %v, want %v", rest, body)
	}
}

func TestDecodeHeaderTruncated(t *testing.T) {
	if _, _, err := DecodeHeader([]byte{1, 2, 3}); err == nil {
		t.Error("DecodeHeader(short buffer) = nil error, want ErrHeaderTruncated")
	}
}

func TestDecodeHeaderLengthMismatch(t *testing.T) {
	buf := EncodeHeader(Header{}, []byte{1, 2, 3})
	buf = append(buf, 0xff) // now isa_length disagrees with len(buf)
	if _, _, err := DecodeHeader(buf); err == nil {
		t.Error("DecodeHeader(mismatched length) = nil error, want ErrLengthMismatch")
	}
}
