package fmp4io_test

import (
	"testing"

	"eaglesong.dev/fmp4cat/internal/fmp4/fmp4io"
	"eaglesong.dev/fmp4cat/internal/fmp4/fmp4test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTagString(t *testing.T) {
	assert.Equal(t, "moof", fmp4io.MOOF.String())
	assert.Equal(t, "tfdt", fmp4io.TFDT.String())
	assert.Equal(t, "mdat", fmp4io.MDAT.String())
}

func TestReadBox(t *testing.T) {
	t.Run("compact", func(t *testing.T) {
		b := fmp4test.Box(fmp4io.MDAT, []byte("abcd"))
		box, err := fmp4io.ReadBox(b, 0)
		require.NoError(t, err)
		assert.Equal(t, fmp4io.MDAT, box.Tag)
		assert.Equal(t, uint64(12), box.Size)
		assert.Equal(t, 8, box.HeaderLen)
		assert.True(t, box.Complete())
		assert.False(t, box.Open)
		assert.Equal(t, 12, box.End())
		assert.Equal(t, b, box.Bytes())
		assert.Equal(t, []byte("abcd"), box.Content())
	})

	t.Run("at offset", func(t *testing.T) {
		b := append([]byte{9, 9, 9}, fmp4test.Box(fmp4io.STYP, []byte("iso6"))...)
		box, err := fmp4io.ReadBox(b, 3)
		require.NoError(t, err)
		assert.Equal(t, fmp4io.STYP, box.Tag)
		assert.Equal(t, 3, box.Offset)
		assert.Equal(t, len(b), box.End())
		assert.Equal(t, []byte("iso6"), box.Content())
	})

	t.Run("extended size", func(t *testing.T) {
		payload := []byte("0123456789")
		b := fmp4test.LargeBox(fmp4io.MDAT, payload)
		box, err := fmp4io.ReadBox(b, 0)
		require.NoError(t, err)
		assert.Equal(t, uint64(26), box.Size)
		assert.Equal(t, 16, box.HeaderLen)
		assert.True(t, box.Complete())
		assert.Equal(t, payload, box.Content())
	})

	t.Run("short header", func(t *testing.T) {
		b := fmp4test.Box(fmp4io.MDAT, []byte("abcd"))
		_, err := fmp4io.ReadBox(b[:7], 0)
		assert.Equal(t, fmp4io.ErrShortHeader, err)
		_, err = fmp4io.ReadBox(b, 6)
		assert.Equal(t, fmp4io.ErrShortHeader, err)
	})

	t.Run("short extended header", func(t *testing.T) {
		b := fmp4test.LargeBox(fmp4io.MDAT, []byte("abcd"))
		_, err := fmp4io.ReadBox(b[:12], 0)
		assert.Equal(t, fmp4io.ErrShortHeader, err)
	})

	t.Run("incomplete body", func(t *testing.T) {
		b := fmp4test.Box(fmp4io.MDAT, []byte("abcd"))
		box, err := fmp4io.ReadBox(b[:10], 0)
		require.NoError(t, err)
		assert.False(t, box.Complete())
		assert.Equal(t, uint64(12), box.Size)
		assert.Equal(t, 10, box.End())
		assert.Equal(t, []byte("ab"), box.Content())
	})

	t.Run("size smaller than header", func(t *testing.T) {
		b := fmp4test.Box(fmp4io.MDAT, []byte("abcd"))
		b[3] = 4
		_, err := fmp4io.ReadBox(b, 0)
		var perr *fmp4io.ParseError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, "Size", perr.Debug)
	})

	t.Run("size zero runs to end", func(t *testing.T) {
		b := fmp4test.Box(fmp4io.MDAT, []byte("abcdef"))
		b[3] = 0
		box, err := fmp4io.ReadBox(b, 0)
		require.NoError(t, err)
		assert.True(t, box.Open)
		assert.False(t, box.Complete())
		assert.Equal(t, uint64(14), box.Size)
		assert.Equal(t, []byte("abcdef"), box.Content())
	})
}

func TestContentAliasesBuffer(t *testing.T) {
	b := fmp4test.Box(fmp4io.MDAT, []byte("abcd"))
	box, err := fmp4io.ReadBox(b, 0)
	require.NoError(t, err)
	box.Content()[0] = 'z'
	assert.Equal(t, byte('z'), b[8])
}

func TestFind(t *testing.T) {
	traf := fmp4test.Traf(5, 0, 100)
	box, err := fmp4io.ReadBox(traf, 0)
	require.NoError(t, err)

	found, err := fmp4io.Find(box.Content(), fmp4io.TFDT)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, fmp4io.TFDT, found[0].Tag)
	// tfhd is 16 bytes and comes first
	assert.Equal(t, 16, found[0].Offset)

	found, err = fmp4io.Find(box.Content(), fmp4io.MDAT)
	require.NoError(t, err)
	assert.Empty(t, found)

	t.Run("repeated", func(t *testing.T) {
		moof := fmp4test.Moof(1, fmp4test.Traf(1, 0, 0), fmp4test.Traf(2, 1, 0))
		box, err := fmp4io.ReadBox(moof, 0)
		require.NoError(t, err)
		found, err := fmp4io.Find(box.Content(), fmp4io.TRAF)
		require.NoError(t, err)
		assert.Len(t, found, 2)
	})

	t.Run("trailing bytes ignored", func(t *testing.T) {
		b := append(fmp4test.Tfhd(1), 0, 0, 0, 0, 0)
		found, err := fmp4io.Find(b, fmp4io.TFHD)
		require.NoError(t, err)
		assert.Len(t, found, 1)
	})

	t.Run("child overruns parent", func(t *testing.T) {
		b := fmp4test.Tfhd(1)
		_, err := fmp4io.Find(b[:len(b)-1], fmp4io.TFHD)
		var perr *fmp4io.ParseError
		require.ErrorAs(t, err, &perr)
		assert.Equal(t, "TagSizeInvalid", perr.Debug)
	})
}

func TestParseErrorChain(t *testing.T) {
	tfhd := fmp4test.FullBox(fmp4io.TFHD, 0, 0, []byte{0, 1})
	box, err := fmp4io.ReadBox(tfhd, 0)
	require.NoError(t, err)
	_, err = fmp4io.TrackFragHeaderID(box)
	require.Error(t, err)
	err = fmp4io.Wrap("traf", 100, err)
	assert.EqualError(t, err, "fmp4io: parse error: traf:100,TrackID:12")
}
