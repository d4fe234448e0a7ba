package codec_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetbridge/devicegw/internal/codec"
)

func TestTCPAccumulatorSplitsGluedObjects(t *testing.T) {
	var a codec.TCPAccumulator
	frames, invalid := a.Feed([]byte(`{"a":"}"}{"b":1}`))
	require.Zero(t, invalid)
	require.Len(t, frames, 2)
	assert.Equal(t, `{"a":"}"}`, frames[0])
	assert.Equal(t, `{"b":1}`, frames[1])
}

func TestTCPAccumulatorRetainsIncompleteTail(t *testing.T) {
	var a codec.TCPAccumulator
	frames, _ := a.Feed([]byte(`{"a":1`))
	assert.Empty(t, frames)

	frames, invalid := a.Feed([]byte(`}{"b":2}`))
	require.Zero(t, invalid)
	require.Len(t, frames, 2)
	assert.Equal(t, `{"a":1}`, frames[0])
	assert.Equal(t, `{"b":2}`, frames[1])
}

func TestTCPAccumulatorEscapedBackslashBeforeQuote(t *testing.T) {
	var a codec.TCPAccumulator
	frames, invalid := a.Feed([]byte(`{"a":"\\"}`))
	require.Zero(t, invalid)
	require.Len(t, frames, 1)
	assert.Equal(t, `{"a":"\\"}`, frames[0])
}

func TestTCPAccumulatorDropsInvalidUTF8Frame(t *testing.T) {
	var a codec.TCPAccumulator
	bad := append([]byte(`{"a":"`), 0xff, 0xfe)
	bad = append(bad, []byte(`"}`)...)
	frames, invalid := a.Feed(bad)
	assert.Empty(t, frames)
	assert.Equal(t, 1, invalid)
}

func TestSerialAccumulatorDiscardsNoiseBeforeSTX(t *testing.T) {
	var a codec.SerialAccumulator
	frames := a.Feed([]byte{'x', 'y', 'z', 0x02, 'h', 'i', 0x03})
	require.Len(t, frames, 1)
	assert.Equal(t, "hi", string(frames[0]))
}

func TestSerialAccumulatorHoldsIncompleteFrame(t *testing.T) {
	var a codec.SerialAccumulator
	frames := a.Feed([]byte{0x02, 'h', 'i'})
	assert.Empty(t, frames)

	frames = a.Feed([]byte{0x03})
	require.Len(t, frames, 1)
	assert.Equal(t, "hi", string(frames[0]))
}

func TestSerialAccumulatorFlushesOnOverflowWithNoSTX(t *testing.T) {
	var a codec.SerialAccumulator
	noise := make([]byte, 3000)
	for i := range noise {
		noise[i] = 'n'
	}
	frames := a.Feed(noise)
	assert.Empty(t, frames)

	frames = a.Feed([]byte{0x02, 'o', 'k', 0x03})
	require.Len(t, frames, 1)
	assert.Equal(t, "ok", string(frames[0]))
}

func TestSerialAccumulatorMultipleFramesOneFeed(t *testing.T) {
	var a codec.SerialAccumulator
	frames := a.Feed([]byte{0x02, 'a', 0x03, 0x02, 'b', 0x03})
	require.Len(t, frames, 2)
	assert.Equal(t, "a", string(frames[0]))
	assert.Equal(t, "b", string(frames[1]))
}
