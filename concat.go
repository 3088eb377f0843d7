// Package fmp4cat joins fragmented MP4 streams into one continuous stream,
// rewriting each track fragment's base media decode time so that playback
// time keeps advancing across the joins.
package fmp4cat

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"slices"

	"eaglesong.dev/fmp4cat/internal/fmp4"
	"eaglesong.dev/fmp4cat/internal/timeline"
	"github.com/rs/zerolog"
)

const defaultChunkSize = 64 * 1024

// Source opens one input stream. Sources are opened one at a time, in order,
// and each is closed before the next is opened.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// SourceFunc adapts a function to a Source
type SourceFunc func(ctx context.Context) (io.ReadCloser, error)

// Open calls f
func (f SourceFunc) Open(ctx context.Context) (io.ReadCloser, error) {
	return f(ctx)
}

// FromReader returns a Source that yields r. If r is an io.ReadCloser it is
// closed when the input has been consumed.
func FromReader(r io.Reader) Source {
	return SourceFunc(func(context.Context) (io.ReadCloser, error) {
		if rc, ok := r.(io.ReadCloser); ok {
			return rc, nil
		}
		return io.NopCloser(r), nil
	})
}

// FromBytes returns a Source that yields a copy of b each time it is opened
func FromBytes(b []byte) Source {
	return SourceFunc(func(context.Context) (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(b)), nil
	})
}

// Concatenator joins fragmented MP4 inputs. The zero value is ready to use.
type Concatenator struct {
	// ChunkSize is how many bytes are requested from an input per read. Defaults to 64KiB.
	ChunkSize int
	// Log receives diagnostics. The zero value discards them.
	Log zerolog.Logger
}

// Result summarizes a completed or aborted concatenation
type Result struct {
	// Written is the number of bytes delivered to the output
	Written int64
	// Inputs is the number of inputs fully consumed
	Inputs int
	// Fragments is the number of moof boxes rewritten
	Fragments int
	// TrackFragments is the number of track fragments whose decode time was corrected
	TrackFragments int
	// Truncated is the number of boxes cut short by the end of an input and passed through as-is
	Truncated int
	// Tracks is the final timing state of every track seen
	Tracks []TrackInfo
}

// TrackInfo describes the timing of one track across the whole output
type TrackInfo struct {
	TrackID uint32
	// FirstBaseTime is the raw decode time of the track's first fragment
	FirstBaseTime uint64
	// LastBaseTime is the raw decode time of the track's last fragment
	LastBaseTime uint64
	// LastAdjusted is the decode time written for the track's last fragment
	LastAdjusted uint64
	// Offset is the shift applied to the current session
	Offset uint64
	// Sessions counts the inputs detected on this track
	Sessions int
	// Fragments counts the track fragments seen
	Fragments int
}

func (c *Concatenator) chunkSize() int {
	if c.ChunkSize > 0 {
		return c.ChunkSize
	}
	return defaultChunkSize
}

// Concat writes the concatenation of all sources to w. Bytes are written as
// soon as each top-level box is complete. Any error aborts the whole output;
// bytes already written are not retracted.
func (c *Concatenator) Concat(ctx context.Context, w io.Writer, sources ...Source) (res Result, err error) {
	tl := timeline.New(c.Log)
	sc := fmp4.NewScanner(tl, c.Log)
	defer func() {
		res.Fragments = sc.Fragments
		res.TrackFragments = sc.TrackFragments
		res.Truncated = sc.Truncated
		for _, t := range tl.Tracks() {
			res.Tracks = append(res.Tracks, TrackInfo{
				TrackID:       t.TrackID,
				FirstBaseTime: t.FirstBaseTime,
				LastBaseTime:  t.LastBaseTime,
				LastAdjusted:  t.LastAdjusted,
				Offset:        t.Offset,
				Sessions:      t.Sessions,
				Fragments:     t.Fragments,
			})
		}
	}()
	var buf []byte
	for i, src := range sources {
		c.Log.Debug().Int("input", i).Msg("opening input")
		var n int64
		n, buf, err = c.copyInput(ctx, w, sc, src, buf)
		res.Written += n
		if err != nil {
			return res, fmt.Errorf("input %d: %w", i, err)
		}
		res.Inputs++
	}
	c.Log.Debug().
		Int("inputs", res.Inputs).
		Int64("bytes", res.Written).
		Int("fragments", sc.Fragments).
		Msg("concatenation complete")
	return res, nil
}

// copyInput streams one source through the scanner. buf is the accumulation
// buffer, empty on entry and on return; it is passed along to reuse its storage.
func (c *Concatenator) copyInput(ctx context.Context, w io.Writer, sc *fmp4.Scanner, src Source, buf []byte) (written int64, _ []byte, err error) {
	if err := ctx.Err(); err != nil {
		return 0, buf, err
	}
	rc, err := src.Open(ctx)
	if err != nil {
		return 0, buf, fmt.Errorf("open: %w", err)
	}
	defer rc.Close()
	// unblock a pending read if the context is cancelled
	stop := context.AfterFunc(ctx, func() { rc.Close() })
	defer stop()

	emit := func(b []byte) error {
		if len(b) == 0 {
			return nil
		}
		n, err := w.Write(b)
		written += int64(n)
		if err == nil && n != len(b) {
			err = io.ErrShortWrite
		}
		return err
	}
	chunk := c.chunkSize()
	buf = buf[:0]
	for {
		if err := ctx.Err(); err != nil {
			return written, buf[:0], err
		}
		buf = slices.Grow(buf, chunk)
		n, rerr := rc.Read(buf[len(buf) : len(buf)+chunk])
		if n > 0 {
			buf = buf[:len(buf)+n]
			ready, rest, err := sc.Scan(buf, false)
			if err != nil {
				return written, buf[:0], err
			}
			if err := emit(ready); err != nil {
				return written, buf[:0], fmt.Errorf("write: %w", err)
			}
			// move the incomplete tail to the front
			buf = buf[:copy(buf, rest)]
		}
		if rerr == io.EOF {
			break
		} else if rerr != nil {
			if err := ctx.Err(); err != nil {
				return written, buf[:0], err
			}
			return written, buf[:0], fmt.Errorf("read: %w", rerr)
		}
	}
	if len(buf) > 0 {
		ready, _, err := sc.Scan(buf, true)
		if err != nil {
			return written, buf[:0], err
		}
		if err := emit(ready); err != nil {
			return written, buf[:0], fmt.Errorf("write: %w", err)
		}
	}
	c.Log.Debug().Int64("bytes", written).Msg("input complete")
	return written, buf[:0], nil
}

// Reader runs Concat in the background and returns its output as a stream.
// The concatenation only advances as fast as the stream is read. Closing the
// reader early aborts the run and releases the input being read. A failed run
// surfaces as an error from Read.
func (c *Concatenator) Reader(ctx context.Context, sources ...Source) io.ReadCloser {
	pr, pw := io.Pipe()
	go func() {
		_, err := c.Concat(ctx, pw, sources...)
		pw.CloseWithError(err)
	}()
	return pr
}
