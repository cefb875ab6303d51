package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	want := LoginResponse{
		MessageType: TypeLoginResponse,
		Username:    "alice",
		ID:          "user-1",
		RoomID:      "room-1",
		RoomName:    "Lobby",
	}
	if err := enc.Encode(want); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	sc := NewScanner(&buf)
	env, err := sc.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if env.Type != TypeLoginResponse {
		t.Fatalf("got type %q, want %q", env.Type, TypeLoginResponse)
	}

	var got LoginResponse
	if err := json.Unmarshal(env.Payload, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got != want {
		t.Errorf("round-trip mismatch: got %+v, want %+v", got, want)
	}
}

func TestDecodeEnvelopeMissingDiscriminator(t *testing.T) {
	_, err := DecodeEnvelope([]byte(`{"username":"alice"}`))
	if !errors.Is(err, MalformedFrame) {
		t.Fatalf("expected MalformedFrame, got %v", err)
	}
}

func TestDecodeEnvelopeInvalidJSON(t *testing.T) {
	_, err := DecodeEnvelope([]byte(`not json`))
	if !errors.Is(err, MalformedFrame) {
		t.Fatalf("expected MalformedFrame, got %v", err)
	}
}

func TestScannerRejectsOversizedFrame(t *testing.T) {
	huge := `{"message_type":"message_chat","messages":[{"message":"` + strings.Repeat("x", MaxFrameBytes+1) + `"}]}` + "\n"
	sc := NewScanner(strings.NewReader(huge))

	_, err := sc.Next()
	if !errors.Is(err, MalformedFrame) {
		t.Fatalf("expected MalformedFrame for oversized line, got %v", err)
	}
}

func TestScannerMultipleFramesOnOneStream(t *testing.T) {
	stream := `{"message_type":"message_register","username":"a","password":"p"}` + "\n" +
		`{"message_type":"message_login","username":"a","password":"p"}` + "\n"

	sc := NewScanner(strings.NewReader(stream))

	env1, err := sc.Next()
	if err != nil {
		t.Fatalf("first Next: %v", err)
	}
	if env1.Type != TypeRegister {
		t.Errorf("first frame type = %q, want %q", env1.Type, TypeRegister)
	}

	env2, err := sc.Next()
	if err != nil {
		t.Fatalf("second Next: %v", err)
	}
	if env2.Type != TypeLogin {
		t.Errorf("second frame type = %q, want %q", env2.Type, TypeLogin)
	}

	if _, err := sc.Next(); err != io.EOF {
		t.Fatalf("expected io.EOF at stream end, got %v", err)
	}
}
