// Package fmp4test builds fragmented MP4 boxes byte by byte for tests.
package fmp4test

import (
	"eaglesong.dev/fmp4cat/internal/fmp4/fmp4io"
	"github.com/nareix/joy4/utils/bits/pio"
)

// Box wraps the concatenated payloads in a compact box header
func Box(tag fmp4io.Tag, payload ...[]byte) []byte {
	n := fmp4io.HeaderLen
	for _, p := range payload {
		n += len(p)
	}
	b := make([]byte, fmp4io.HeaderLen, n)
	pio.PutU32BE(b[0:], uint32(n))
	pio.PutU32BE(b[4:], uint32(tag))
	for _, p := range payload {
		b = append(b, p...)
	}
	return b
}

// LargeBox wraps the payload in a header using the 64-bit size form
func LargeBox(tag fmp4io.Tag, payload ...[]byte) []byte {
	n := fmp4io.LargeHeaderLen
	for _, p := range payload {
		n += len(p)
	}
	b := make([]byte, fmp4io.LargeHeaderLen, n)
	pio.PutU32BE(b[0:], 1)
	pio.PutU32BE(b[4:], uint32(tag))
	pio.PutU64BE(b[8:], uint64(n))
	for _, p := range payload {
		b = append(b, p...)
	}
	return b
}

// FullBox wraps the payload after a version and flags word
func FullBox(tag fmp4io.Tag, version uint8, flags uint32, payload []byte) []byte {
	b := make([]byte, 4, 4+len(payload))
	pio.PutU8(b, version)
	pio.PutU24BE(b[1:], flags)
	return Box(tag, append(b, payload...))
}

// Tfhd returns a track fragment header for trackID
func Tfhd(trackID uint32) []byte {
	b := make([]byte, 4)
	pio.PutU32BE(b, trackID)
	return FullBox(fmp4io.TFHD, 0, fmp4io.TFHD_DEFAULT_BASE_IS_MOOF, b)
}

// Tfdt returns a decode time box. Version 0 stores the low 32 bits of t.
func Tfdt(version uint8, t uint64) []byte {
	if version != 0 {
		b := make([]byte, 8)
		pio.PutU64BE(b, t)
		return FullBox(fmp4io.TFDT, version, 0, b)
	}
	b := make([]byte, 4)
	pio.PutU32BE(b, uint32(t))
	return FullBox(fmp4io.TFDT, 0, 0, b)
}

// Trun returns an empty track run
func Trun() []byte {
	return FullBox(fmp4io.TRUN, 0, 0, make([]byte, 4))
}

// Traf returns a track fragment with header, decode time and an empty run
func Traf(trackID uint32, version uint8, t uint64) []byte {
	return Box(fmp4io.TRAF, Tfhd(trackID), Tfdt(version, t), Trun())
}

// Moof returns a movie fragment holding the given track fragments
func Moof(seq uint32, trafs ...[]byte) []byte {
	b := make([]byte, 4)
	pio.PutU32BE(b, seq)
	return Box(fmp4io.MOOF, append([][]byte{FullBox(fmp4io.MFHD, 0, 0, b)}, trafs...)...)
}

// Mdat returns a media data box
func Mdat(payload []byte) []byte {
	return Box(fmp4io.MDAT, payload)
}

// Fragment returns a moof+mdat pair carrying a single track
func Fragment(seq, trackID uint32, version uint8, t uint64, payload []byte) []byte {
	return append(Moof(seq, Traf(trackID, version, t)), Mdat(payload)...)
}

// Concat joins byte slices
func Concat(parts ...[]byte) []byte {
	var b []byte
	for _, p := range parts {
		b = append(b, p...)
	}
	return b
}
