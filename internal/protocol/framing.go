package protocol

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

// MaxFrameSize is the largest JSON payload accepted on the wire.
const MaxFrameSize = 1 << 20 // 1 MiB

// ErrFrameTooLarge is returned by ReadFrame when the declared length
// exceeds MaxFrameSize. The caller must treat this the way spec.md §4.1
// describes: the connection is not killed, the read buffer state (here,
// simply the unread body bytes) is what gets discarded.
var ErrFrameTooLarge = errors.New("protocol: frame exceeds maximum size")

func nowStamp() string {
	return time.Now().Format("15:04:05")
}

// Encode serializes msg into a length-prefixed frame ready to write to a
// stream.
func Encode(msg Message) ([]byte, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal: %w", err)
	}
	if len(body) > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}
	out := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(out[:4], uint32(len(body)))
	copy(out[4:], body)
	return out, nil
}

// WriteFrame writes msg to w as a single frame.
func WriteFrame(w io.Writer, msg Message) error {
	frame, err := Encode(msg)
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}

// ReadFrame reads exactly one frame from r. It blocks until the header and
// full body have arrived, an error occurs, or the declared length exceeds
// MaxFrameSize (in which case the oversized body is drained from r so the
// stream resynchronizes on the next frame boundary, and ErrFrameTooLarge is
// returned).
//
// Because net.Conn reads are blocking, io.ReadFull already gives the
// fragment-reassembly guarantee spec.md's MessageBuffer provides by hand:
// a frame is decoded atomically from however many TCP segments it arrived
// in, and frames split at arbitrary byte boundaries still reassemble in
// order.
func ReadFrame(r io.Reader) (Message, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Message{}, err
	}
	n := binary.BigEndian.Uint32(header[:])
	if n > MaxFrameSize {
		if _, err := io.CopyN(io.Discard, r, int64(n)); err != nil {
			return Message{}, err
		}
		return Message{}, ErrFrameTooLarge
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return Message{}, err
	}
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return Message{}, fmt.Errorf("protocol: unmarshal: %w", err)
	}
	return msg, nil
}
