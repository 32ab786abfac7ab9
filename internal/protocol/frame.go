// Package protocol implements the framed JSON wire format spoken between
// extension peers and the bridge.
//
// Every message travels as one frame: a 4-byte little-endian unsigned
// integer holding the payload byte count, followed by exactly that many
// bytes of UTF-8 JSON text. The prefix does not count itself. Payloads are
// capped at consts.MaxFramePayload in both directions.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/codefionn/extbridge/internal/consts"
)

var (
	// ErrFrameTooLarge reports a declared payload length beyond the maximum.
	// On receive this is fatal for the connection.
	ErrFrameTooLarge = errors.New("protocol: frame exceeds maximum payload size")
	// ErrMalformedPayload reports a payload that is not a JSON object.
	ErrMalformedPayload = errors.New("protocol: payload is not a JSON object")
	// ErrEmptyMessage reports a payload that decodes to an empty message.
	ErrEmptyMessage = errors.New("protocol: empty message")
)

// Encode returns payload prefixed with its length as a 4-byte little-endian
// unsigned integer. No guarantee beyond byte-exact framing.
func Encode(payload []byte) []byte {
	buf := make([]byte, consts.FramePrefixLen+len(payload))
	binary.LittleEndian.PutUint32(buf[:consts.FramePrefixLen], uint32(len(payload)))
	copy(buf[consts.FramePrefixLen:], payload)
	return buf
}

// TryDecode extracts one frame from buf if a complete one is buffered,
// returning the payload and the remaining bytes. A nil payload with a nil
// error means more bytes are needed; buf is returned unchanged in that case.
// ErrFrameTooLarge is returned when the declared length exceeds the maximum,
// and the caller must treat the connection as broken.
func TryDecode(buf []byte) (payload []byte, rest []byte, err error) {
	if len(buf) < consts.FramePrefixLen {
		return nil, buf, nil
	}

	length := binary.LittleEndian.Uint32(buf[:consts.FramePrefixLen])
	if length > consts.MaxFramePayload {
		return nil, buf, fmt.Errorf("%w: declared %d bytes", ErrFrameTooLarge, length)
	}

	total := consts.FramePrefixLen + int(length)
	if len(buf) < total {
		return nil, buf, nil
	}

	return buf[consts.FramePrefixLen:total], buf[total:], nil
}

// ReadFrame reads one complete frame from r. The returned error wraps io.EOF
// when the stream ends cleanly between frames.
func ReadFrame(r io.Reader) ([]byte, error) {
	var prefix [consts.FramePrefixLen]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, fmt.Errorf("read frame length: %w", err)
	}

	length := binary.LittleEndian.Uint32(prefix[:])
	if length > consts.MaxFramePayload {
		return nil, fmt.Errorf("%w: declared %d bytes", ErrFrameTooLarge, length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read frame payload: %w", err)
	}

	return payload, nil
}

// WriteFrame frames payload and writes it to w in a single Write call.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > consts.MaxFramePayload {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}

	if _, err := w.Write(Encode(payload)); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}
