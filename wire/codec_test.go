package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"reflect"
	"testing"
)

func TestCodecRoundtrip(t *testing.T) {
	var b bytes.Buffer

	sent := &Payload{
		Type:     TypeSend,
		Name:     "alice",
		RoomName: "lobby",
		Message:  "hello",
	}
	if err := NewEncoder(&b).Encode(sent); err != nil {
		t.Fatal(err)
	}

	got, err := NewDecoder(&b).Decode()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, sent) {
		t.Errorf("Got: %+v; Expected: %+v", got, sent)
	}
}

func TestCodecFrameHeader(t *testing.T) {
	var b bytes.Buffer
	if err := NewEncoder(&b).Encode(&Payload{Type: TypeCheck}); err != nil {
		t.Fatal(err)
	}

	frame := b.Bytes()
	if len(frame) < 4 {
		t.Fatalf("frame too short: %d bytes", len(frame))
	}
	size := binary.BigEndian.Uint32(frame[:4])
	if int(size) != len(frame)-4 {
		t.Errorf("Got: header %d; Expected: %d", size, len(frame)-4)
	}
}

func TestDecodeCleanEOF(t *testing.T) {
	_, err := NewDecoder(bytes.NewReader(nil)).Decode()
	if err != io.EOF {
		t.Errorf("Got: %v; Expected: %v", err, io.EOF)
	}
}

func TestDecodeMidFrameEOF(t *testing.T) {
	// Header promises 100 bytes, stream ends after 3.
	var b bytes.Buffer
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], 100)
	b.Write(header[:])
	b.WriteString(`{"T`)

	_, err := NewDecoder(&b).Decode()
	if err != io.ErrUnexpectedEOF {
		t.Errorf("Got: %v; Expected: %v", err, io.ErrUnexpectedEOF)
	}

	// Partial header alone is also a mid-frame close, not a clean EOF.
	_, err = NewDecoder(bytes.NewReader([]byte{0, 0})).Decode()
	if err != io.ErrUnexpectedEOF {
		t.Errorf("Got: %v; Expected: %v", err, io.ErrUnexpectedEOF)
	}
}

func TestDecodeFrameTooLarge(t *testing.T) {
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], MaxFrameSize+1)

	_, err := NewDecoder(bytes.NewReader(header[:])).Decode()
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("Got: %v; Expected: %v", err, ErrFrameTooLarge)
	}
}

func TestDecodeRejectsNonObject(t *testing.T) {
	body := []byte(`["not", "an", "object"]`)
	var b bytes.Buffer
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(body)))
	b.Write(header[:])
	b.Write(body)

	_, err := NewDecoder(&b).Decode()
	if !errors.Is(err, ErrProtocol) {
		t.Errorf("Got: %v; Expected: %v", err, ErrProtocol)
	}
}

func TestDecodeRejectsMissingType(t *testing.T) {
	var b bytes.Buffer
	body := []byte(`{"MESSAGE": "hi"}`)
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(body)))
	b.Write(header[:])
	b.Write(body)

	_, err := NewDecoder(&b).Decode()
	if !errors.Is(err, ErrProtocol) {
		t.Errorf("Got: %v; Expected: %v", err, ErrProtocol)
	}
}

func TestDecodeIgnoresUnknownFields(t *testing.T) {
	// Older clients send OWNER and TO keys; they must not break decoding.
	var b bytes.Buffer
	body := []byte(`{"TYPE": "CREATE_ROOM", "ROOM_NAME": "lobby", "OWNER": "alice", "TO": "bob"}`)
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(body)))
	b.Write(header[:])
	b.Write(body)

	got, err := NewDecoder(&b).Decode()
	if err != nil {
		t.Fatal(err)
	}
	if got.Type != TypeCreateRoom || got.RoomName != "lobby" {
		t.Errorf("Got: %+v; Expected: CREATE_ROOM for lobby", got)
	}
}

func TestDecodeStreamedFrames(t *testing.T) {
	var b bytes.Buffer
	enc := NewEncoder(&b)
	for _, msg := range []string{"one", "two", "three"} {
		if err := enc.Encode(&Payload{Type: TypeReceive, From: "alice", Message: msg}); err != nil {
			t.Fatal(err)
		}
	}

	dec := NewDecoder(&b)
	for _, expected := range []string{"one", "two", "three"} {
		got, err := dec.Decode()
		if err != nil {
			t.Fatal(err)
		}
		if got.Message != expected {
			t.Errorf("Got: %q; Expected: %q", got.Message, expected)
		}
	}
	if _, err := dec.Decode(); err != io.EOF {
		t.Errorf("Got: %v; Expected: %v", err, io.EOF)
	}
}
