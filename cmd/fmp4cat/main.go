// Command fmp4cat joins fragmented MP4 streams into one continuous stream.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"eaglesong.dev/fmp4cat"
	"eaglesong.dev/fmp4cat/internal/config"
	"eaglesong.dev/fmp4cat/internal/inspect"
	"eaglesong.dev/fmp4cat/internal/logger"
	"eaglesong.dev/fmp4cat/internal/source"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

func main() {
	configFile := flag.String("c", "", "Path to a YAML job file")
	output := flag.String("o", "", "Output path for inputs given as arguments (- for stdout)")
	logLevel := flag.String("L", "", "Log level (error, warn, info, debug)")
	chunkSize := flag.Int("chunk", 0, "Read size per input request in bytes")
	serve := flag.String("serve", "", "Serve the jobs in the job file over HTTP on this address (\"-\" uses the file's listen address)")
	inspectFile := flag.String("inspect", "", "List the fragment decode times of a file and exit")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage:\n")
		fmt.Fprintf(os.Stderr, "  %s -o out.mp4 in1.m4s in2.m4s ...\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -c jobs.yaml [-serve addr]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -inspect file.mp4\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *inspectFile != "" {
		if err := runInspect(*inspectFile); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cfg := &config.Config{}
	if *configFile != "" {
		var err error
		cfg, err = config.Load(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	} else {
		if *output == "" || flag.NArg() == 0 {
			flag.Usage()
			os.Exit(2)
		}
		cfg.Jobs = []config.Job{{Name: "default", Output: *output, Inputs: flag.Args()}}
		cfg.SetDefaults()
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *chunkSize > 0 {
		cfg.ChunkSize = *chunkSize
	}
	log := logger.New(cfg.LogLevel, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	if *serve != "" {
		addr := *serve
		if addr == "-" {
			addr = cfg.Listen
		}
		err = runServer(ctx, log, cfg, addr)
	} else {
		err = runJobs(ctx, log, cfg)
	}
	if err != nil {
		log.Error().Err(err).Msg("failed")
		os.Exit(1)
	}
}

func sourceOptions(log zerolog.Logger, cfg *config.Config) source.Options {
	return source.Options{
		Client:     source.NewClient(cfg.HTTP.Timeout),
		UserAgent:  cfg.HTTP.UserAgent,
		Retries:    cfg.HTTP.Retries,
		RetryDelay: cfg.HTTP.RetryDelay,
		Log:        log,
	}
}

func jobSources(opts source.Options, job config.Job) []fmp4cat.Source {
	sources := make([]fmp4cat.Source, len(job.Inputs))
	for i, ref := range job.Inputs {
		sources[i] = source.Parse(ref, opts)
	}
	return sources
}

// run every job, up to cfg.Parallel at a time
func runJobs(ctx context.Context, log zerolog.Logger, cfg *config.Config) error {
	opts := sourceOptions(log, cfg)
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(cfg.Parallel)
	for _, job := range cfg.Jobs {
		job := job // per-iteration copy (go1.21 loop semantics)
		eg.Go(func() error {
			jlog := log.With().Str("job", job.Name).Logger()
			if err := runJob(ctx, jlog, cfg.ChunkSize, job, jobSources(opts, job)); err != nil {
				return fmt.Errorf("job %s: %w", job.Name, err)
			}
			return nil
		})
	}
	return eg.Wait()
}

func runJob(ctx context.Context, log zerolog.Logger, chunkSize int, job config.Job, sources []fmp4cat.Source) error {
	c := &fmp4cat.Concatenator{ChunkSize: chunkSize, Log: log}
	start := time.Now()
	var res fmp4cat.Result
	var err error
	if job.Output == "-" || job.Output == "" {
		res, err = c.Concat(ctx, os.Stdout, sources...)
	} else {
		res, err = writeFile(job.Output, func(w io.Writer) (fmp4cat.Result, error) {
			return c.Concat(ctx, w, sources...)
		})
	}
	if err != nil {
		return err
	}
	log.Info().
		Int("inputs", res.Inputs).
		Int64("bytes", res.Written).
		Int("fragments", res.Fragments).
		Int("truncated", res.Truncated).
		Dur("elapsed", time.Since(start)).
		Msg("job complete")
	for _, t := range res.Tracks {
		log.Debug().
			Uint32("track", t.TrackID).
			Int("sessions", t.Sessions).
			Int("fragments", t.Fragments).
			Uint64("last", t.LastAdjusted).
			Msg("track timing")
	}
	return nil
}

// write to a temporary file beside dest and rename it into place on success
func writeFile(dest string, fn func(io.Writer) (fmp4cat.Result, error)) (fmp4cat.Result, error) {
	f, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*")
	if err != nil {
		return fmp4cat.Result{}, err
	}
	defer os.Remove(f.Name())
	res, err := fn(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return res, err
	}
	return res, os.Rename(f.Name(), dest)
}

func runServer(ctx context.Context, log zerolog.Logger, cfg *config.Config, addr string) error {
	opts := sourceOptions(log, cfg)
	srv := &fmp4cat.Server{
		ChunkSize: cfg.ChunkSize,
		Log:       log,
		Jobs:      make(map[string][]fmp4cat.Source, len(cfg.Jobs)),
	}
	for _, job := range cfg.Jobs {
		srv.Jobs[job.Name] = jobSources(opts, job)
	}
	hs := &http.Server{Addr: addr, Handler: srv}
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		log.Info().Str("addr", addr).Int("jobs", len(cfg.Jobs)).Msg("listening")
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return hs.Shutdown(sctx)
	})
	return eg.Wait()
}

func runInspect(name string) error {
	f, err := os.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()
	frags, err := inspect.Fragments(f)
	if err != nil {
		return err
	}
	if err := inspect.Write(os.Stdout, frags); err != nil {
		return err
	}
	return inspect.Check(frags)
}
