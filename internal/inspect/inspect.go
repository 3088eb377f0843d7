// Package inspect lists the decode times carried by a fragmented MP4 stream.
package inspect

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/Eyevinn/mp4ff/mp4"
)

// TrackTime is the decode time of one track fragment
type TrackTime struct {
	TrackID  uint32
	Version  byte
	BaseTime uint64
}

// Fragment is one moof box
type Fragment struct {
	Offset   uint64
	Sequence uint32
	Tracks   []TrackTime
}

// Fragments decodes the top-level boxes of r and returns every movie fragment
func Fragments(r io.Reader) ([]Fragment, error) {
	var frags []Fragment
	var pos uint64
	for {
		box, err := mp4.DecodeBox(pos, r)
		if errors.Is(err, io.EOF) {
			return frags, nil
		} else if err != nil {
			return frags, fmt.Errorf("box at %d: %w", pos, err)
		}
		if moof, ok := box.(*mp4.MoofBox); ok {
			frags = append(frags, fragment(pos, moof))
		}
		pos += box.Size()
	}
}

func fragment(pos uint64, moof *mp4.MoofBox) Fragment {
	f := Fragment{Offset: pos}
	if moof.Mfhd != nil {
		f.Sequence = moof.Mfhd.SequenceNumber
	}
	for _, traf := range moof.Trafs {
		if traf.Tfhd == nil || traf.Tfdt == nil {
			continue
		}
		f.Tracks = append(f.Tracks, TrackTime{
			TrackID:  traf.Tfhd.TrackID,
			Version:  traf.Tfdt.Version,
			BaseTime: traf.Tfdt.BaseMediaDecodeTime(),
		})
	}
	return f
}

// RegressionError reports a track whose decode time went backwards
type RegressionError struct {
	TrackID  uint32
	Fragment int
	Prev     uint64
	Time     uint64
}

func (e *RegressionError) Error() string {
	return fmt.Sprintf("track %d: fragment %d decode time %d is before %d", e.TrackID, e.Fragment, e.Time, e.Prev)
}

// Check returns a *RegressionError for the first track fragment whose decode
// time is lower than the previous one on the same track
func Check(frags []Fragment) error {
	last := make(map[uint32]uint64)
	for i, f := range frags {
		for _, t := range f.Tracks {
			if prev, ok := last[t.TrackID]; ok && t.BaseTime < prev {
				return &RegressionError{TrackID: t.TrackID, Fragment: i, Prev: prev, Time: t.BaseTime}
			}
			last[t.TrackID] = t.BaseTime
		}
	}
	return nil
}

// Write prints one line per track fragment
func Write(w io.Writer, frags []Fragment) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "OFFSET\tSEQ\tTRACK\tVER\tBASETIME")
	for _, f := range frags {
		for _, t := range f.Tracks {
			fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%d\n", f.Offset, f.Sequence, t.TrackID, t.Version, t.BaseTime)
		}
	}
	return tw.Flush()
}
