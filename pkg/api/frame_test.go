package api

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
)

func TestFrame_RoundTrip(t *testing.T) {
	testCases := []struct {
		Description string
		Payload     []byte
	}{
		{
			Description: "Empty payload is a legal frame",
			Payload:     []byte{},
		},
		{
			Description: "Small request payload",
			Payload:     (&Operation{OpType: OpList, Token: "s3cr3t"}).Marshal(),
		},
		{
			Description: "Payload with every byte value",
			Payload: func() []byte {
				b := make([]byte, 256)
				for i := range b {
					b[i] = byte(i)
				}
				return b
			}(),
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.Description, func(t *testing.T) {
			var buf bytes.Buffer
			if err := WriteFrame(&buf, testCase.Payload); err != nil {
				t.Fatalf("WriteFrame failed: %v", err)
			}
			got, err := ReadFrame(&buf)
			if err != nil {
				t.Fatalf("ReadFrame failed: %v", err)
			}
			if !bytes.Equal(got, testCase.Payload) {
				t.Fatalf("Payload changed across framing: got %v, want %v", got, testCase.Payload)
			}
			if buf.Len() != 0 {
				t.Fatalf("ReadFrame left %d unread bytes", buf.Len())
			}
		})
	}
}

func TestFrame_BackToBack(t *testing.T) {
	var buf bytes.Buffer
	first := []byte("first")
	second := []byte("second")
	if err := WriteFrame(&buf, first); err != nil {
		t.Fatal(err)
	}
	if err := WriteFrame(&buf, second); err != nil {
		t.Fatal(err)
	}

	got, err := ReadFrame(&buf)
	if err != nil || !bytes.Equal(got, first) {
		t.Fatalf("First frame mismatch: %v %q", err, got)
	}
	got, err = ReadFrame(&buf)
	if err != nil || !bytes.Equal(got, second) {
		t.Fatalf("Second frame mismatch: %v %q", err, got)
	}
	if _, err = ReadFrame(&buf); err != io.EOF {
		t.Fatalf("Exhausted stream should read io.EOF, got %v", err)
	}
}

func TestReadFrame_Errors(t *testing.T) {
	oversized := make([]byte, 4)
	binary.BigEndian.PutUint32(oversized, MaxFrameSize+1)

	testCases := []struct {
		Description string
		Stream      []byte
		WantErr     error
	}{
		{
			Description: "Clean close before any byte",
			Stream:      nil,
			WantErr:     io.EOF,
		},
		{
			Description: "Close inside the header",
			Stream:      []byte{0x00, 0x00},
			WantErr:     io.ErrUnexpectedEOF,
		},
		{
			Description: "Close inside the payload",
			Stream:      []byte{0x00, 0x00, 0x00, 0x05, 'a', 'b'},
			WantErr:     io.ErrUnexpectedEOF,
		},
		{
			Description: "Header announces an oversized payload",
			Stream:      oversized,
			WantErr:     ErrFrameTooLarge,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.Description, func(t *testing.T) {
			_, err := ReadFrame(bytes.NewReader(testCase.Stream))
			if !errors.Is(err, testCase.WantErr) {
				t.Fatalf("ReadFrame error = %v, want %v", err, testCase.WantErr)
			}
		})
	}
}

func TestWriteFrame_RejectsOversizedPayload(t *testing.T) {
	var buf bytes.Buffer
	err := WriteFrame(&buf, make([]byte, MaxFrameSize+1))
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("WriteFrame error = %v, want ErrFrameTooLarge", err)
	}
	if buf.Len() != 0 {
		t.Fatal("No bytes should reach the wire for a rejected frame")
	}
}
