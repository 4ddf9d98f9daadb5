// Package batch runs the derivation pipeline over many source files.
//
// Every file is read once and fanned out to one task per configured
// variant. A task whose output already exists is skipped without running
// its transform, so reruns are idempotent. Failures stay local to the task
// that hit them: siblings of the same file and other files carry on. There
// are no retries and no cleanup of outputs already written.
//
// Files and tasks all run concurrently, bounded by an injected Limiter.
// Tasks share nothing but the read-only source bytes and decoded image;
// results flow back over a channel to the single goroutine that reports
// them and builds the Summary.
package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/photo-derive/internal/derive"
	"github.com/fpang/photo-derive/internal/filehandler"
	"github.com/fpang/photo-derive/internal/store"
)

// Orchestrator applies a fixed set of variants to batches of files.
type Orchestrator struct {
	store    store.Store
	variants []derive.Variant
	limiter  Limiter
	reporter Reporter
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLimiter bounds concurrency. The default is Unlimited.
func WithLimiter(l Limiter) Option {
	return func(o *Orchestrator) { o.limiter = l }
}

// WithReporter receives one Event per task. The default discards them.
func WithReporter(r Reporter) Option {
	return func(o *Orchestrator) { o.reporter = r }
}

// New creates an Orchestrator reading sources from and writing outputs to st.
func New(st store.Store, variants []derive.Variant, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:    st,
		variants: variants,
		limiter:  Unlimited{},
		reporter: ReporterFunc(func(Event) {}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run processes every path and returns once all tasks have finished.
func (o *Orchestrator) Run(ctx context.Context, paths []string) Summary {
	results := make(chan Event)

	var wg sync.WaitGroup
	for _, path := range paths {
		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			o.processFile(ctx, path, results)
		}(path)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var summary Summary
	for ev := range results {
		summary.add(ev)
		o.reporter.Report(ev)
	}

	log.Info().
		Int("files", len(paths)).
		Int("written", summary.Written).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Msg("Batch complete")

	return summary
}

// processFile reads path once, then runs one task per variant.
func (o *Orchestrator) processFile(ctx context.Context, path string, results chan<- Event) {
	data, err := o.read(ctx, path)
	if err != nil {
		for _, v := range o.variants {
			results <- o.fail(path, v, filehandler.WithSuffix(path, v.Suffix), err, time.Now())
		}
		return
	}

	// Decoding is deferred until a task actually needs pixels, and then
	// happens exactly once for all of this file's tasks.
	source := sync.OnceValues(func() (*derive.Source, error) {
		return derive.NewSource(path, data)
	})

	var wg sync.WaitGroup
	for _, v := range o.variants {
		wg.Add(1)
		go func(v derive.Variant) {
			defer wg.Done()
			results <- o.runTask(ctx, path, v, source)
		}(v)
	}
	wg.Wait()
}

func (o *Orchestrator) read(ctx context.Context, path string) ([]byte, error) {
	if err := o.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer o.limiter.Release()

	data, err := o.store.Read(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read source: %w", err)
	}
	log.Debug().Str("path", path).Int("size", len(data)).Msg("Source loaded")
	return data, nil
}

func (o *Orchestrator) runTask(ctx context.Context, path string, v derive.Variant, source func() (*derive.Source, error)) Event {
	output := filehandler.WithSuffix(path, v.Suffix)
	start := time.Now()

	if err := o.limiter.Acquire(ctx); err != nil {
		return o.fail(path, v, output, err, start)
	}
	defer o.limiter.Release()

	exists, err := o.store.Exists(ctx, output)
	if err != nil {
		return o.fail(path, v, output, err, start)
	}
	if exists {
		log.Debug().Str("output", output).Msg("Output exists, skipping")
		return Event{Kind: Skipped, Source: path, Output: output, Variant: v.Suffix, Duration: time.Since(start)}
	}

	src, err := source()
	if err != nil {
		return o.fail(path, v, output, err, start)
	}

	data, err := v.Transform(ctx, src)
	if err != nil {
		return o.fail(path, v, output, err, start)
	}

	if err := o.store.Write(ctx, output, data); err != nil {
		return o.fail(path, v, output, fmt.Errorf("failed to write output: %w", err), start)
	}

	log.Debug().
		Str("output", output).
		Str("variant", v.Suffix).
		Int("size", len(data)).
		Dur("duration", time.Since(start)).
		Msg("Output written")

	return Event{Kind: Written, Source: path, Output: output, Variant: v.Suffix, Bytes: len(data), Duration: time.Since(start)}
}

func (o *Orchestrator) fail(path string, v derive.Variant, output string, err error, start time.Time) Event {
	log.Error().
		Err(err).
		Str("path", path).
		Str("variant", v.Suffix).
		Str("output", output).
		Msg("Task failed")
	return Event{Kind: Failed, Source: path, Output: output, Variant: v.Suffix, Err: err, Duration: time.Since(start)}
}
