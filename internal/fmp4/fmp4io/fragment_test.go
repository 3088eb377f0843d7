package fmp4io_test

import (
	"bytes"
	"testing"

	"eaglesong.dev/fmp4cat/internal/fmp4/fmp4io"
	"eaglesong.dev/fmp4cat/internal/fmp4/fmp4test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readBox(t *testing.T, b []byte) fmp4io.Box {
	t.Helper()
	box, err := fmp4io.ReadBox(b, 0)
	require.NoError(t, err)
	return box
}

func TestTrackFragHeaderID(t *testing.T) {
	id, err := fmp4io.TrackFragHeaderID(readBox(t, fmp4test.Tfhd(7)))
	require.NoError(t, err)
	assert.Equal(t, uint32(7), id)

	id, err = fmp4io.TrackFragHeaderID(readBox(t, fmp4test.Tfhd(0xfffffffe)))
	require.NoError(t, err)
	assert.Equal(t, uint32(0xfffffffe), id)
}

func TestReadDecodeTime(t *testing.T) {
	t.Run("version 0", func(t *testing.T) {
		dt, err := fmp4io.ReadDecodeTime(readBox(t, fmp4test.Tfdt(0, 1234)))
		require.NoError(t, err)
		assert.Equal(t, uint8(0), dt.Version)
		assert.Equal(t, uint64(1234), dt.Time)
	})

	t.Run("version 1 above 32 bits", func(t *testing.T) {
		want := uint64(1)<<32 + 5
		dt, err := fmp4io.ReadDecodeTime(readBox(t, fmp4test.Tfdt(1, want)))
		require.NoError(t, err)
		assert.Equal(t, uint8(1), dt.Version)
		assert.Equal(t, want, dt.Time)
	})

	t.Run("truncated", func(t *testing.T) {
		tfdt := fmp4test.FullBox(fmp4io.TFDT, 1, 0, make([]byte, 4))
		_, err := fmp4io.ReadDecodeTime(readBox(t, tfdt))
		var perr *fmp4io.ParseError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, "Time", perr.Debug)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := fmp4io.ReadDecodeTime(readBox(t, fmp4test.Box(fmp4io.TFDT)))
		var perr *fmp4io.ParseError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, "Version", perr.Debug)
	})
}

func TestWriteDecodeTime(t *testing.T) {
	t.Run("version 1 split into halves", func(t *testing.T) {
		b := fmp4test.Tfdt(1, 10)
		orig := append([]byte(nil), b...)
		box := readBox(t, b)
		// 2^32 + 99
		require.NoError(t, fmp4io.WriteDecodeTime(box, uint64(1)<<32-1+100))
		assert.Equal(t, []byte{0, 0, 0, 1}, b[12:16])
		assert.Equal(t, []byte{0, 0, 0, 99}, b[16:20])
		assert.Equal(t, orig[:12], b[:12], "header, version and flags are untouched")
		assert.Len(t, b, len(orig))

		dt, err := fmp4io.ReadDecodeTime(box)
		require.NoError(t, err)
		assert.Equal(t, uint64(1)<<32+99, dt.Time)
	})

	t.Run("version 0 wraps", func(t *testing.T) {
		b := fmp4test.Tfdt(0, 10)
		box := readBox(t, b)
		require.NoError(t, fmp4io.WriteDecodeTime(box, uint64(1)<<32+7))
		dt, err := fmp4io.ReadDecodeTime(box)
		require.NoError(t, err)
		assert.Equal(t, uint8(0), dt.Version)
		assert.Equal(t, uint64(7), dt.Time)
		assert.Len(t, b, 16)
	})

	t.Run("matches a freshly built box", func(t *testing.T) {
		for _, version := range []uint8{0, 1} {
			b := fmp4test.Tfdt(version, 1)
			require.NoError(t, fmp4io.WriteDecodeTime(readBox(t, b), 90000))
			assert.True(t, bytes.Equal(fmp4test.Tfdt(version, 90000), b), "version %d", version)
		}
	})

	t.Run("truncated", func(t *testing.T) {
		tfdt := fmp4test.FullBox(fmp4io.TFDT, 0, 0, make([]byte, 2))
		err := fmp4io.WriteDecodeTime(readBox(t, tfdt), 1)
		var perr *fmp4io.ParseError
		assert.ErrorAs(t, err, &perr)
	})
}
