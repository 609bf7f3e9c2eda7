package protocol

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	msg := GlobalMessage("alice", "hi there")
	frame, err := Encode(msg)
	require.NoError(t, err)

	got, err := ReadFrame(bytes.NewReader(frame))
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestFragmentedFramesReassembleInOrder(t *testing.T) {
	f1, err := Encode(GlobalMessage("alice", "one"))
	require.NoError(t, err)
	f2, err := Encode(PrivateMessage("alice", "bob", "two"))
	require.NoError(t, err)
	f3, err := Encode(OKMsg("three", ""))
	require.NoError(t, err)

	// delivered as three separate reads, as in spec.md seed scenario 6:
	// [F1[0..5], F1[6..]+F2+F3[0..1], F3[2..]]
	chunk2 := append(append(append([]byte{}, f1[6:]...), f2...), f3[:2]...)
	r := io.MultiReader(bytes.NewReader(f1[:6]), bytes.NewReader(chunk2), bytes.NewReader(f3[2:]))

	m1, err := ReadFrame(r)
	require.NoError(t, err)
	m2, err := ReadFrame(r)
	require.NoError(t, err)
	m3, err := ReadFrame(r)
	require.NoError(t, err)

	assert.Equal(t, "one", m1.Content)
	assert.Equal(t, "two", m2.Content)
	assert.Equal(t, "three", m3.Content)
}

func TestOversizedFrameRejectedWithoutCrashing(t *testing.T) {
	var header [4]byte
	n := uint32(MaxFrameSize + 1)
	header[0] = byte(n >> 24)
	header[1] = byte(n >> 16)
	header[2] = byte(n >> 8)
	header[3] = byte(n)

	var stream bytes.Buffer
	stream.Write(header[:])
	stream.WriteString(strings.Repeat("x", int(n)))

	_, err := ReadFrame(&stream)
	require.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestMaxSizeFrameAccepted(t *testing.T) {
	// Size the content so the JSON payload is exactly MaxFrameSize bytes.
	empty, err := Encode(GlobalMessage("alice", ""))
	require.NoError(t, err)
	overhead := len(empty) - 4
	msg := GlobalMessage("alice", strings.Repeat("a", MaxFrameSize-overhead))
	frame, err := Encode(msg)
	require.NoError(t, err)
	require.Len(t, frame, 4+MaxFrameSize)
	_, err = ReadFrame(bytes.NewReader(frame))
	require.NoError(t, err)
}
