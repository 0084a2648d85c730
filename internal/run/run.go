// Package run drives whole-file patches: read, patch, record an undo delta,
// write atomically, and probe the result.
package run

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	mp4 "github.com/tetsuo/mp4retime"
	"github.com/tetsuo/mp4retime/internal/fsx"
	"github.com/tetsuo/mp4retime/internal/probe"
	"github.com/tetsuo/mp4retime/internal/undo"
)

// ErrBatchFailed is returned by Batch when at least one file failed.
var ErrBatchFailed = errors.New("batch had failures")

// Job names one file to patch.
type Job struct {
	Src      string
	Dst      string // may equal Src
	UndoPath string // empty: no undo delta
}

// Options apply to every job.
type Options struct {
	Scale  mp4.Scale
	Strict bool
	Probe  bool
	Jobs   int // Batch concurrency, at least 1
	Logger *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// FileResult is the outcome of one job.
type FileResult struct {
	Job
	Size     int64
	Result   mp4.Result
	Before   *probe.Info // nil unless probing succeeded
	After    *probe.Info
	UndoSize int
	Elapsed  time.Duration
	Err      error
}

// Patched returns the number of rewritten boxes.
func (r FileResult) Patched() int { return r.Result.Count() }

// File patches one file. The source is read fully into memory and the
// destination is replaced atomically, so Dst may equal Src. The undo delta
// is written before the destination.
func File(ctx context.Context, job Job, opts Options) (FileResult, error) {
	started := time.Now()
	res := FileResult{Job: job}
	log := opts.logger().With("file", job.Src)

	fail := func(err error) (FileResult, error) {
		res.Err = err
		res.Elapsed = time.Since(started)
		return res, err
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	buf, err := fsx.ReadFile(job.Src)
	if err != nil {
		return fail(err)
	}
	res.Size = int64(len(buf))

	if opts.Probe {
		res.Before = probeLogged(log, "source", buf)
	}

	var original []byte
	if job.UndoPath != "" {
		original = bytes.Clone(buf)
	}

	p := mp4.Patcher{Scale: opts.Scale, Strict: opts.Strict, Logger: log}
	res.Result = p.Patch(buf)

	if job.UndoPath != "" {
		delta, err := undo.Compute(original, buf)
		if err != nil {
			return fail(err)
		}
		if err := fsx.WriteFileAtomic(job.UndoPath, delta, 0o644); err != nil {
			return fail(fmt.Errorf("write undo: %w", err))
		}
		res.UndoSize = len(delta)
	}

	if err := fsx.WriteFileAtomic(job.Dst, buf, 0o644); err != nil {
		return fail(fmt.Errorf("write output: %w", err))
	}

	if opts.Probe {
		res.After = probeLogged(log, "output", buf)
	}

	res.Elapsed = time.Since(started)
	log.Info("file written", "dst", job.Dst, "size", humanize.Bytes(uint64(res.Size)),
		"patched", res.Patched(), "skipped", len(res.Result.Skipped), "elapsed", res.Elapsed)
	return res, nil
}

// probeLogged returns nil and logs a warning when buf cannot be probed.
func probeLogged(log *slog.Logger, which string, buf []byte) *probe.Info {
	info, err := probe.Bytes(buf)
	if err != nil {
		log.Warn("probe failed", "which", which, "err", err)
		return nil
	}
	if fps, ok := info.VideoFrameRate(); ok {
		log.Debug("probed", "which", which, "fps", fps, "seconds", info.Seconds())
	}
	return &info
}

// Report summarises a batch.
type Report struct {
	Results []FileResult // sorted by source path
	Patched int
	Failed  int
}

// Batch runs File over jobs with at most opts.Jobs files in flight. Each
// file owns its buffer. A failed job is recorded in its result and does not
// stop the others; Batch then returns ErrBatchFailed.
func Batch(ctx context.Context, jobs []Job, opts Options) (Report, error) {
	seen := make(map[string]string, len(jobs))
	for _, j := range jobs {
		if prev, ok := seen[j.Dst]; ok {
			return Report{}, fmt.Errorf("%s and %s both write %s", prev, j.Src, j.Dst)
		}
		seen[j.Dst] = j.Src
	}

	results := make([]FileResult, len(jobs))

	var g errgroup.Group
	g.SetLimit(max(opts.Jobs, 1))
	for i, j := range jobs {
		g.Go(func() error {
			results[i], _ = File(ctx, j, opts)
			return nil
		})
	}
	_ = g.Wait()

	slices.SortStableFunc(results, func(a, b FileResult) int {
		return strings.Compare(a.Src, b.Src)
	})

	rep := Report{Results: results}
	for _, r := range results {
		if r.Err != nil {
			rep.Failed++
			opts.logger().Error("file failed", "file", r.Src, "err", r.Err)
			continue
		}
		rep.Patched += r.Patched()
	}
	if rep.Failed > 0 {
		return rep, fmt.Errorf("%w: %d of %d files", ErrBatchFailed, rep.Failed, len(jobs))
	}
	return rep, nil
}
