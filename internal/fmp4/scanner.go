package fmp4

import (
	"eaglesong.dev/fmp4cat/internal/fmp4/fmp4io"
	"github.com/rs/zerolog"
)

// Scanner walks the top-level boxes of a growing buffer and splits it into
// bytes that are ready to be written and bytes that belong to a box still
// being received. Every complete moof box is rewritten before it is released.
type Scanner struct {
	adj Adjuster
	log zerolog.Logger

	Boxes          int // top-level boxes released
	Fragments      int // moof boxes rewritten
	TrackFragments int // track fragments rewritten
	Truncated      int // boxes flushed incomplete at the end of an input
}

// NewScanner creates a scanner that corrects decode times with adj
func NewScanner(adj Adjuster, log zerolog.Logger) *Scanner {
	return &Scanner{adj: adj, log: log}
}

// Scan processes b in place. ready holds every box that was fully received,
// rest the remainder which must be prefixed to the next chunk of input. Both
// alias b.
//
// When final is set there is no more input: a box cut short by the end of b
// is passed through uncorrected and all of b is returned as ready.
func (s *Scanner) Scan(b []byte, final bool) (ready, rest []byte, err error) {
	var pos int
	for len(b)-pos >= fmp4io.HeaderLen {
		box, err := fmp4io.ReadBox(b, pos)
		if err == fmp4io.ErrShortHeader {
			// extended size not received yet
			break
		} else if err != nil {
			return nil, nil, err
		}
		if !box.Complete() {
			if !final {
				break
			}
			if !box.Open {
				s.Truncated++
				s.log.Warn().
					Stringer("type", box.Tag).
					Uint64("size", box.Size).
					Int("have", len(b)-pos).
					Msg("input ended inside a box, passing it through uncorrected")
			} else if box.Tag == fmp4io.MOOF {
				// runs to the end of the input, which has now arrived
				if err := s.rewrite(box); err != nil {
					return nil, nil, err
				}
			}
		} else if box.Tag == fmp4io.MOOF {
			if err := s.rewrite(box); err != nil {
				return nil, nil, err
			}
		}
		s.Boxes++
		pos = box.End()
	}
	if final {
		pos = len(b)
	}
	return b[:pos], b[pos:], nil
}

func (s *Scanner) rewrite(moof fmp4io.Box) error {
	if s.adj == nil {
		return nil
	}
	n, err := RewriteMovieFrag(moof, s.adj)
	if err != nil {
		return err
	}
	s.Fragments++
	s.TrackFragments += n
	return nil
}
