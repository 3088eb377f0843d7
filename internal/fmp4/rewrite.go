package fmp4

import (
	"eaglesong.dev/fmp4cat/internal/fmp4/fmp4io"
)

// Adjuster maps a track's raw base decode time to its corrected value
type Adjuster interface {
	Adjust(trackID uint32, raw uint64) uint64
}

// RewriteMovieFrag corrects the base decode time of every track fragment in a
// complete moof box, in place. Track fragments lacking a tfhd or tfdt are left
// alone. The box never changes size. It returns the number of track fragments
// that were rewritten.
func RewriteMovieFrag(moof fmp4io.Box, adj Adjuster) (n int, err error) {
	base := moof.Offset + moof.HeaderLen
	trafs, err := fmp4io.Find(moof.Content(), fmp4io.TRAF)
	if err != nil {
		return 0, fmp4io.Wrap("moof", moof.Offset, err)
	}
	for _, traf := range trafs {
		trafOffset := base + traf.Offset
		ok, err := rewriteTrackFrag(traf, adj)
		if err != nil {
			return n, fmp4io.Wrap("traf", trafOffset, err)
		}
		if ok {
			n++
		}
	}
	return n, nil
}

func rewriteTrackFrag(traf fmp4io.Box, adj Adjuster) (bool, error) {
	b := traf.Content()
	headers, err := fmp4io.Find(b, fmp4io.TFHD)
	if err != nil {
		return false, err
	} else if len(headers) == 0 {
		return false, nil
	}
	trackID, err := fmp4io.TrackFragHeaderID(headers[0])
	if err != nil {
		return false, err
	}
	times, err := fmp4io.Find(b, fmp4io.TFDT)
	if err != nil {
		return false, err
	} else if len(times) == 0 {
		return false, nil
	}
	dt, err := fmp4io.ReadDecodeTime(times[0])
	if err != nil {
		return false, err
	}
	if err := fmp4io.WriteDecodeTime(times[0], adj.Adjust(trackID, dt.Time)); err != nil {
		return false, err
	}
	return true, nil
}
