package wire

import "testing"

func testCodecs(maxSize int) []Codec {
	return []Codec{NewJSONCodec(maxSize), NewXDRCodec(maxSize)}
}

func TestCodecRoundTripReadFile(t *testing.T) {
	for _, c := range testCodecs(0) {
		id := NewRequestID()
		msg := Message{
			Kind:      KindReadFile,
			RequestID: id,
			Payload:   ReadFilePayload{Path: "/tmp/a.txt", Offset: 10, Length: 100},
		}
		b, err := c.Encode(msg)
		if err != nil {
			t.Fatalf("%T: Encode: %v", c, err)
		}
		got, err := c.Decode(b)
		if err != nil {
			t.Fatalf("%T: Decode: %v", c, err)
		}
		if got.Kind != msg.Kind || got.RequestID != id {
			t.Fatalf("%T: round trip mismatch: %+v", c, got)
		}
		p, ok := got.Payload.(ReadFilePayload)
		if !ok {
			t.Fatalf("%T: payload type = %T, want ReadFilePayload", c, got.Payload)
		}
		if p.Path != "/tmp/a.txt" || p.Offset != 10 || p.Length != 100 {
			t.Fatalf("%T: payload mismatch: %+v", c, p)
		}
	}
}

func TestCodecRoundTripResponseWithError(t *testing.T) {
	for _, c := range testCodecs(0) {
		msg := Message{
			Kind:      KindWriteFileResponse,
			RequestID: NewRequestID(),
			Payload: WriteFileResponsePayload{
				ResponseEnvelope: ResponseEnvelope{Success: false, Error: "disk full"},
			},
		}
		b, err := c.Encode(msg)
		if err != nil {
			t.Fatalf("%T: Encode: %v", c, err)
		}
		got, err := c.Decode(b)
		if err != nil {
			t.Fatalf("%T: Decode: %v", c, err)
		}
		p := got.Payload.(WriteFileResponsePayload)
		if p.Success || p.Error != "disk full" {
			t.Fatalf("%T: payload mismatch: %+v", c, p)
		}
	}
}

func TestCodecRoundTripDirectoryListing(t *testing.T) {
	for _, c := range testCodecs(0) {
		entries := []DirEntry{
			{Name: "a.txt", Metadata: FileMetadata{Size: 12, IsFile: true}},
			{Name: "sub", Metadata: FileMetadata{IsDir: true}},
		}
		msg := Message{
			Kind:      KindListDirResponse,
			RequestID: NewRequestID(),
			Payload: ListDirectoryResponsePayload{
				ResponseEnvelope: ResponseEnvelope{Success: true},
				Entries:          entries,
			},
		}
		b, err := c.Encode(msg)
		if err != nil {
			t.Fatalf("%T: Encode: %v", c, err)
		}
		got, err := c.Decode(b)
		if err != nil {
			t.Fatalf("%T: Decode: %v", c, err)
		}
		p := got.Payload.(ListDirectoryResponsePayload)
		if len(p.Entries) != 2 || p.Entries[0].Name != "a.txt" || p.Entries[1].Metadata.IsDir != true {
			t.Fatalf("%T: entries mismatch: %+v", c, p.Entries)
		}
	}
}

func TestCodecMaxMessageSizeEnforced(t *testing.T) {
	for _, c := range testCodecs(64) {
		msg := Message{
			Kind:      KindWriteFile,
			RequestID: NewRequestID(),
			Payload:   WriteFilePayload{Path: "/tmp/big.bin", Data: make([]byte, 4096)},
		}
		_, err := c.Encode(msg)
		if err == nil {
			t.Fatalf("%T: expected ErrMessageTooLarge on encode of oversized message", c)
		}
		if _, ok := err.(*ErrMessageTooLarge); !ok {
			t.Fatalf("%T: Encode error = %T, want *ErrMessageTooLarge", c, err)
		}
	}
}

func TestCodecDecodeRejectsOversizedFrameBeforeParsing(t *testing.T) {
	for _, c := range testCodecs(8) {
		_, err := c.Decode(make([]byte, 1024))
		if _, ok := err.(*ErrMessageTooLarge); !ok {
			t.Fatalf("%T: Decode error = %T, want *ErrMessageTooLarge", c, err)
		}
	}
}

func TestCodecDecodeRejectsGarbage(t *testing.T) {
	for _, c := range testCodecs(0) {
		_, err := c.Decode([]byte("not a valid frame at all"))
		if err == nil {
			t.Fatalf("%T: expected error decoding garbage", c)
		}
	}
}

func TestEncodingOfSelectsCodec(t *testing.T) {
	textCodec, err := EncodingOf(FrameTypeText, 0)
	if err != nil {
		t.Fatalf("EncodingOf(text): %v", err)
	}
	if _, ok := textCodec.(*JSONCodec); !ok {
		t.Fatalf("FrameTypeText resolved to %T, want *JSONCodec", textCodec)
	}

	binCodec, err := EncodingOf(FrameTypeBinary, 0)
	if err != nil {
		t.Fatalf("EncodingOf(binary): %v", err)
	}
	if _, ok := binCodec.(*XDRCodec); !ok {
		t.Fatalf("FrameTypeBinary resolved to %T, want *XDRCodec", binCodec)
	}

	if _, err := EncodingOf(FrameType(99), 0); err == nil {
		t.Fatalf("expected error for unknown frame type")
	}
}
