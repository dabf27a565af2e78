package api

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxFrameSize bounds a single message on the wire. Requests and
// replies are far below this; anything larger is a broken or hostile
// peer.
const MaxFrameSize = 4 << 20

// ErrFrameTooLarge is returned when a frame header announces a payload
// above MaxFrameSize.
var ErrFrameTooLarge = fmt.Errorf("%w: frame exceeds %d bytes", ErrDecode, MaxFrameSize)

// WriteFrame writes one length-prefixed message. The prefix is a
// 4-byte big-endian payload length.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return ErrFrameTooLarge
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	return nil
}

// ReadFrame reads one length-prefixed message. A clean connection
// close before any header byte surfaces as io.EOF; a close mid-frame
// is io.ErrUnexpectedEOF.
func ReadFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(hdr[:])
	if size > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return payload, nil
}
