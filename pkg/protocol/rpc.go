package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// maxFrameLen bounds a single control-channel frame to guard against a
// misbehaving peer claiming an unbounded length prefix.
const maxFrameLen = 64 * 1024 * 1024

// Request is one control-channel RPC call: a method name plus its
// arguments, kept as raw JSON until the method's typed handler decodes
// them (mirrors the teacher's decode-then-dispatch pattern in
// internal/server/conn.go, adapted from XDR procedures to named JSON
// methods).
type Request struct {
	Method string          `json:"method"`
	Args   json.RawMessage `json:"args,omitempty"`
}

// Response is the reply to a Request. Exactly one of Success/Error is
// meaningful, per the wire contract.
type Response struct {
	Success bool            `json:"success,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// OK builds a successful Response carrying data marshalled to JSON.
func OK(data any) (*Response, error) {
	if data == nil {
		return &Response{Success: true}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal response data: %w", err)
	}
	return &Response{Success: true, Data: raw}, nil
}

// Fail builds a Response carrying a taxonomy error.
func Fail(code Code, format string, args ...any) *Response {
	return &Response{Error: NewError(code, format, args...)}
}

// WriteFrame writes a 4-byte big-endian length prefix followed by the
// JSON encoding of v.
func WriteFrame(w io.Writer, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	if len(payload) > maxFrameLen {
		return fmt.Errorf("frame too large: %d bytes", len(payload))
	}

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))

	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write frame body: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed JSON frame and decodes it into v.
func ReadFrame(r io.Reader, v any) error {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return err
	}

	length := binary.BigEndian.Uint32(header[:])
	if length > maxFrameLen {
		return fmt.Errorf("frame too large: %d bytes", length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return fmt.Errorf("read frame body: %w", err)
	}

	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("unmarshal frame: %w", err)
	}
	return nil
}

// ReadRawFrame reads one length-prefixed frame and returns its payload
// without decoding it.
func ReadRawFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(header[:])
	if length > maxFrameLen {
		return nil, fmt.Errorf("frame too large: %d bytes", length)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read frame body: %w", err)
	}
	return payload, nil
}
