package fmp4io

import (
	"github.com/nareix/joy4/utils/bits/pio"
)

// TFHD_DEFAULT_BASE_IS_MOOF is the tfhd flag written by CMAF packagers
const TFHD_DEFAULT_BASE_IS_MOOF = 0x020000

// TrackFragHeaderID reads the track_ID field of a tfhd box
func TrackFragHeaderID(tfhd Box) (uint32, error) {
	b := tfhd.Content()
	// version(1) flags(3) track_ID(4)
	if len(b) < 8 {
		return 0, parseErr("TrackID", tfhd.Offset+tfhd.HeaderLen+4, nil)
	}
	return pio.U32BE(b[4:]), nil
}

// TrackFragDecodeTime holds the fields of a tfdt box
type TrackFragDecodeTime struct {
	Version uint8
	Flags   uint32
	Time    uint64
}

func decodeTimeLen(version uint8) int {
	if version != 0 {
		return 12
	}
	return 8
}

// ReadDecodeTime reads the base media decode time of a tfdt box.
// Version 0 holds a 32-bit time, any other version a 64-bit one.
func ReadDecodeTime(tfdt Box) (a TrackFragDecodeTime, err error) {
	b := tfdt.Content()
	if len(b) < 1 {
		err = parseErr("Version", tfdt.Offset+tfdt.HeaderLen, nil)
		return
	}
	a.Version = pio.U8(b)
	if len(b) < decodeTimeLen(a.Version) {
		err = parseErr("Time", tfdt.Offset+tfdt.HeaderLen+4, nil)
		return
	}
	a.Flags = pio.U24BE(b[1:])
	if a.Version != 0 {
		hi := pio.U32BE(b[4:])
		lo := pio.U32BE(b[8:])
		a.Time = uint64(hi)<<32 | uint64(lo)
	} else {
		a.Time = uint64(pio.U32BE(b[4:]))
	}
	return
}

// WriteDecodeTime overwrites the base media decode time of a tfdt box in
// place, keeping its version and size. A version 0 box only holds the low 32
// bits of t.
func WriteDecodeTime(tfdt Box, t uint64) error {
	b := tfdt.Content()
	if len(b) < 1 {
		return parseErr("Version", tfdt.Offset+tfdt.HeaderLen, nil)
	}
	version := pio.U8(b)
	if len(b) < decodeTimeLen(version) {
		return parseErr("Time", tfdt.Offset+tfdt.HeaderLen+4, nil)
	}
	if version != 0 {
		pio.PutU32BE(b[4:], uint32(t>>32))
		pio.PutU32BE(b[8:], uint32(t))
	} else {
		pio.PutU32BE(b[4:], uint32(t))
	}
	return nil
}
