// Package timeline keeps per-track base media decode times continuous across
// concatenated fragmented MP4 streams.
//
// Each input stream restarts its fragment clock. Nothing in the stream marks
// where one input ends, so a base time lower than the previous one seen on the
// same track is taken as the start of a new session. A stream whose fragments
// arrive out of order will be misread as several sessions.
package timeline

import (
	"sort"

	"github.com/rs/zerolog"
)

type trackState struct {
	first       uint64
	prev        uint64
	hasPrev     bool
	offset      uint64
	session     int
	maxAdjusted uint64
	// stats
	lastAdjusted uint64
	fragments    int
}

// Timeline corrects base decode times per track. It is not safe for concurrent use.
type Timeline struct {
	log    zerolog.Logger
	tracks map[uint32]*trackState
}

// New creates an empty timeline
func New(log zerolog.Logger) *Timeline {
	return &Timeline{
		log:    log,
		tracks: make(map[uint32]*trackState),
	}
}

// Adjust returns the corrected base time for the next fragment of a track.
// It must be called once per track fragment, in stream order.
func (t *Timeline) Adjust(trackID uint32, raw uint64) uint64 {
	st := t.tracks[trackID]
	if st == nil {
		st = &trackState{first: raw, session: 1}
		t.tracks[trackID] = st
	}
	if st.hasPrev && raw < st.prev {
		// clock went backwards: a new input began
		st.offset = st.maxAdjusted
		st.session++
		t.log.Debug().
			Uint32("track", trackID).
			Int("session", st.session).
			Uint64("prev", st.prev).
			Uint64("raw", raw).
			Uint64("offset", st.offset).
			Msg("session boundary")
	}
	var adjusted uint64
	if st.session == 1 {
		adjusted = raw - st.first
	} else {
		adjusted = raw + st.offset
	}
	if adjusted > st.maxAdjusted {
		st.maxAdjusted = adjusted
	}
	st.prev = raw
	st.hasPrev = true
	st.lastAdjusted = adjusted
	st.fragments++
	return adjusted
}

// TrackInfo is a snapshot of one track's state
type TrackInfo struct {
	TrackID       uint32
	FirstBaseTime uint64
	LastBaseTime  uint64
	LastAdjusted  uint64
	MaxAdjusted   uint64
	Offset        uint64
	Sessions      int
	Fragments     int
}

// Track returns the state of a single track
func (t *Timeline) Track(trackID uint32) (TrackInfo, bool) {
	st := t.tracks[trackID]
	if st == nil {
		return TrackInfo{}, false
	}
	return st.info(trackID), true
}

// Tracks returns the state of every track seen so far, ordered by track ID
func (t *Timeline) Tracks() []TrackInfo {
	infos := make([]TrackInfo, 0, len(t.tracks))
	for id, st := range t.tracks {
		infos = append(infos, st.info(id))
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].TrackID < infos[j].TrackID })
	return infos
}

func (st *trackState) info(trackID uint32) TrackInfo {
	return TrackInfo{
		TrackID:       trackID,
		FirstBaseTime: st.first,
		LastBaseTime:  st.prev,
		LastAdjusted:  st.lastAdjusted,
		MaxAdjusted:   st.maxAdjusted,
		Offset:        st.offset,
		Sessions:      st.session,
		Fragments:     st.fragments,
	}
}
