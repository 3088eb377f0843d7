package fmp4cat

import (
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/rs/zerolog"
)

// Server streams the concatenation of a named job to HTTP clients. Each
// request runs its own concatenation, starting from the first input.
type Server struct {
	// ChunkSize is passed to each request's Concatenator
	ChunkSize int
	// Log receives request diagnostics
	Log zerolog.Logger
	// Jobs maps a name to the inputs to join. It must not be modified while serving.
	Jobs map[string][]Source
}

// ServeHTTP serves GET /<name> or /<name>.mp4
func (s *Server) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	rw.Header().Set("Access-Control-Allow-Origin", "*")
	rw.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		rw.Header().Set("Allow", "GET, HEAD")
		http.Error(rw, "", http.StatusMethodNotAllowed)
		return
	}
	name := strings.TrimSuffix(path.Base(req.URL.Path), ".mp4")
	sources, ok := s.Jobs[name]
	if !ok {
		http.NotFound(rw, req)
		return
	}
	rw.Header().Set("Cache-Control", "max-age=0, no-cache, no-store")
	rw.Header().Set("Content-Type", "video/mp4")
	if req.Method == http.MethodHead {
		return
	}
	log := s.Log.With().Str("job", name).Str("remote", req.RemoteAddr).Logger()
	fw := &flushWriter{w: rw}
	fw.f, _ = rw.(http.Flusher)
	c := &Concatenator{ChunkSize: s.ChunkSize, Log: log}
	res, err := c.Concat(req.Context(), fw, sources...)
	if err != nil {
		if req.Context().Err() != nil {
			// client hung up
			log.Debug().Err(err).Int64("bytes", res.Written).Msg("stream cancelled")
			return
		}
		log.Error().Err(err).Int64("bytes", res.Written).Msg("stream failed")
		if !fw.wrote {
			http.Error(rw, "", http.StatusBadGateway)
		}
		return
	}
	log.Info().Int64("bytes", res.Written).Int("fragments", res.Fragments).Msg("stream complete")
}

// flushWriter pushes every write out to the client immediately
type flushWriter struct {
	w     io.Writer
	f     http.Flusher
	wrote bool
}

func (fw *flushWriter) Write(p []byte) (int, error) {
	fw.wrote = true
	n, err := fw.w.Write(p)
	if fw.f != nil {
		fw.f.Flush()
	}
	return n, err
}
