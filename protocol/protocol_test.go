package protocol

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestEncodeDecode(t *testing.T) {
	header := Header{
		CodecType: CodecTypeBinary,
		Kind:      KindMessage,
	}
	body := []byte("hello world")

	var buf bytes.Buffer
	if err := Encode(&buf, &header, body); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if header.BodyLen != 11 {
		t.Errorf("Encode should fill BodyLen, got %d", header.BodyLen)
	}

	decodedHeader, decodedBody, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if *decodedHeader != header {
		t.Errorf("Header mismatch: got %+v, want %+v", *decodedHeader, header)
	}
	if !bytes.Equal(decodedBody, body) {
		t.Errorf("Body mismatch: got %s, want %s", string(decodedBody), string(body))
	}

	t.Logf("Pass all the test for Encode and Decode!")
}

func TestMarshalUnmarshal(t *testing.T) {
	data, err := Marshal(&Header{CodecType: CodecTypeJSON, Kind: KindAck}, []byte(`{"kind":"ack"}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != HeaderSize+14 {
		t.Fatalf("unexpected frame size %d", len(data))
	}

	h, body, err := Unmarshal(data)
	if err != nil {
		t.Fatal(err)
	}
	if h.Kind != KindAck || h.CodecType != CodecTypeJSON || string(body) != `{"kind":"ack"}` {
		t.Fatalf("unexpected frame %+v %q", h, body)
	}

	if _, _, err := Unmarshal(append(data, 0)); !errors.Is(err, ErrTrailingPayload) {
		t.Fatalf("expect ErrTrailingPayload, got %v", err)
	}
}

func TestDecodeEmptyBody(t *testing.T) {
	data, err := Marshal(&Header{CodecType: CodecTypeBinary, Kind: KindAck}, nil)
	if err != nil {
		t.Fatal(err)
	}
	h, body, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if h.BodyLen != 0 || len(body) != 0 {
		t.Errorf("Expected empty body, got length %d", len(body))
	}
}

func TestDecodeRejectsBadHeaders(t *testing.T) {
	good, err := Marshal(&Header{CodecType: CodecTypeBinary, Kind: KindMessage}, []byte("x"))
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name   string
		offset int
		value  byte
		want   error
	}{
		{"magic", 0, 0x00, ErrInvalidMagic},
		{"version", 3, 0xFF, ErrVersion},
		{"codec", 4, 7, ErrCodec},
		{"kind", 5, 9, ErrKind},
		{"checksum", 6, good[6] ^ 0xFF, ErrChecksum},
		{"body", HeaderSize, 'y', ErrChecksum},
	}
	for _, tc := range cases {
		data := append([]byte(nil), good...)
		data[tc.offset] = tc.value
		if _, _, err := Unmarshal(data); !errors.Is(err, tc.want) {
			t.Errorf("%s: expect %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestDecodeTruncated(t *testing.T) {
	data, _ := Marshal(&Header{CodecType: CodecTypeBinary, Kind: KindMessage}, []byte("hello"))
	for i := 0; i < len(data); i++ {
		_, _, err := Unmarshal(data[:i])
		if !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
			t.Fatalf("truncation at %d: expect EOF error, got %v", i, err)
		}
	}
}

func TestDecodeBodyTooLarge(t *testing.T) {
	data, _ := Marshal(&Header{CodecType: CodecTypeBinary, Kind: KindMessage}, nil)
	data[10], data[11], data[12], data[13] = 0xFF, 0xFF, 0xFF, 0xFF
	if _, _, err := Unmarshal(data); !errors.Is(err, ErrBodyTooLarge) {
		t.Fatalf("expect ErrBodyTooLarge, got %v", err)
	}
}

func TestDecodeLargeBody(t *testing.T) {
	var buf bytes.Buffer

	largeBody := make([]byte, 1024*1024)
	for i := range largeBody {
		largeBody[i] = byte(i % 256)
	}

	if err := Encode(&buf, &Header{CodecType: CodecTypeBinary, Kind: KindMessage}, largeBody); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	_, decodedBody, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !bytes.Equal(decodedBody, largeBody) {
		t.Errorf("large body mismatch")
	}

	t.Logf("Pass encode/decode of %d byte body", len(largeBody))
}
