package fmp4io

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nareix/joy4/utils/bits/pio"
)

// Tag is a four-character box type packed big-endian into a uint32
type Tag uint32

func (t Tag) String() string {
	var b [4]byte
	pio.PutU32BE(b[:], uint32(t))
	return string(b[:])
}

const (
	MOOF = Tag(0x6d6f6f66)
	MFHD = Tag(0x6d666864)
	TRAF = Tag(0x74726166)
	TFHD = Tag(0x74666864)
	TFDT = Tag(0x74666474)
	TRUN = Tag(0x7472756e)
	MDAT = Tag(0x6d646174)
	STYP = Tag(0x73747970)
)

const (
	// HeaderLen is the size of a compact box header: 32-bit size and tag
	HeaderLen = 8
	// LargeHeaderLen is the size of a header carrying a 64-bit size
	LargeHeaderLen = 16
)

// ErrShortHeader is returned when the buffer ends before the box header does.
// It is not a parse failure: more data may still complete the header.
var ErrShortHeader = errors.New("fmp4io: box header not fully received")

// ParseError describes a malformed box. Nested errors form a chain of field:offset frames.
type ParseError struct {
	Debug  string
	Offset int
	prev   *ParseError
}

func (e *ParseError) Error() string {
	var s []string
	for p := e; p != nil; p = p.prev {
		s = append(s, fmt.Sprintf("%s:%d", p.Debug, p.Offset))
	}
	return "fmp4io: parse error: " + strings.Join(s, ",")
}

func parseErr(debug string, offset int, prev error) error {
	var p *ParseError
	errors.As(prev, &p)
	return &ParseError{Debug: debug, Offset: offset, prev: p}
}

// Wrap adds a frame to a parse error found inside a child box
func Wrap(debug string, offset int, err error) error {
	return parseErr(debug, offset, err)
}

// Box is a view of one box inside a byte buffer. It does not copy the buffer.
type Box struct {
	Tag       Tag
	Offset    int
	Size      uint64
	HeaderLen int
	// Open is set when the size field is 0, meaning the box runs to the end of the data.
	// Size is then whatever was available when the header was read.
	Open bool

	data []byte
}

// ReadBox parses the box header at offset
func ReadBox(b []byte, offset int) (a Box, err error) {
	if offset < 0 || len(b)-offset < HeaderLen {
		return a, ErrShortHeader
	}
	a = Box{
		Tag:       Tag(pio.U32BE(b[offset+4:])),
		Offset:    offset,
		Size:      uint64(pio.U32BE(b[offset:])),
		HeaderLen: HeaderLen,
		data:      b,
	}
	switch a.Size {
	case 0:
		a.Open = true
		a.Size = uint64(len(b) - offset)
	case 1:
		if len(b)-offset < LargeHeaderLen {
			return Box{}, ErrShortHeader
		}
		a.Size = pio.U64BE(b[offset+8:])
		a.HeaderLen = LargeHeaderLen
	}
	if a.Size < uint64(a.HeaderLen) {
		return Box{}, parseErr("Size", offset, nil)
	}
	return a, nil
}

// Complete returns true if every byte of the box is present in the buffer
func (a Box) Complete() bool {
	return !a.Open && a.Size <= uint64(len(a.data)-a.Offset)
}

// End returns the offset just past the box, clamped to the buffer length
func (a Box) End() int {
	if avail := uint64(len(a.data) - a.Offset); a.Size > avail {
		return len(a.data)
	}
	return a.Offset + int(a.Size)
}

// Bytes returns the whole box including its header
func (a Box) Bytes() []byte {
	return a.data[a.Offset:a.End()]
}

// Content returns the box with its header stripped. Writes to the returned
// slice modify the underlying buffer.
func (a Box) Content() []byte {
	start := a.Offset + a.HeaderLen
	end := a.End()
	if start > end {
		start = end
	}
	return a.data[start:end]
}

// Find returns the sibling boxes in b with the given tag, in order. Every
// child must fit inside b; trailing bytes too short for a header are ignored.
func Find(b []byte, tag Tag) (found []Box, err error) {
	for n := 0; len(b)-n >= HeaderLen; {
		a, err := ReadBox(b, n)
		if err == ErrShortHeader {
			return nil, parseErr("LargeSize", n, nil)
		} else if err != nil {
			return nil, err
		}
		if a.Open || !a.Complete() {
			return nil, parseErr("TagSizeInvalid", n, nil)
		}
		if a.Tag == tag {
			found = append(found, a)
		}
		n = a.End()
	}
	return found, nil
}
