// Command mp4retime rewrites the timescale and duration of the movie and
// media headers of MP4 files.
//
//	mp4retime [patch] [flags] <in.mp4> <out.mp4> [scale]
//	mp4retime batch -out <dir> [flags] <files...>
//	mp4retime inspect [flags] <file.mp4>
//	mp4retime restore <patched.mp4> <undo> <out.mp4>
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	mp4 "github.com/tetsuo/mp4retime"
	"github.com/tetsuo/mp4retime/internal/config"
	"github.com/tetsuo/mp4retime/internal/fsx"
	"github.com/tetsuo/mp4retime/internal/logx"
	"github.com/tetsuo/mp4retime/internal/probe"
	"github.com/tetsuo/mp4retime/internal/run"
	"github.com/tetsuo/mp4retime/internal/undo"
)

// Exit codes.
const (
	exitOK    = 0
	exitFail  = 1
	exitUsage = 2
)

// Format specifies the output format.
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

func parseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	}
	return FormatText, fmt.Errorf("unknown format: %s", s)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := Main(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// Main runs the command and returns its exit code.
func Main(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := "patch"
	if len(args) > 0 {
		switch args[0] {
		case "patch", "batch", "inspect", "restore":
			cmd, args = args[0], args[1:]
		case "help", "-h", "-help", "--help":
			usage(stderr)
			return exitOK
		}
	}

	switch cmd {
	case "batch":
		return cmdBatch(ctx, args, stdout, stderr)
	case "inspect":
		return cmdInspect(args, stdout, stderr)
	case "restore":
		return cmdRestore(args, stdout, stderr)
	default:
		return cmdPatch(ctx, args, stdout, stderr)
	}
}

func usage(w io.Writer) {
	fmt.Fprint(w, `usage:
  mp4retime [patch] [flags] <in.mp4> <out.mp4> [scale]
  mp4retime batch -out <dir> [flags] <files...>
  mp4retime inspect [flags] <file.mp4>
  mp4retime restore <patched.mp4> <undo> <out.mp4>

Without a scale every header is normalised to a timescale of 30000.
`)
}

// common holds the flags shared by patch and batch.
type common struct {
	scale      string
	strict     bool
	configPath string
	format     string
	logLevel   string
	noProbe    bool
}

func (c *common) register(fs *flag.FlagSet) {
	fs.StringVar(&c.scale, "scale", "", "scale factor (default: 30000 / original timescale per box)")
	fs.BoolVar(&c.strict, "strict", false, "walk the box tree instead of scanning for signatures")
	fs.StringVar(&c.configPath, "config", "", "config file (default: mp4retime.yaml|yml|toml in the working directory)")
	fs.StringVar(&c.format, "format", "text", "output format: text, json")
	fs.StringVar(&c.logLevel, "log-level", "", "log level: debug, info, warn, error")
	fs.BoolVar(&c.noProbe, "no-probe", false, "skip the frame rate probe")
}

// setup merges flags with the config file and builds the logger. A scale
// that does not parse falls back to automatic scaling with a warning.
func (c *common) setup(fs *flag.FlagSet, positionalScale string, stderr io.Writer, cli config.CLIArgs) (config.Effective, *slog.Logger, Format, error) {
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	format, err := parseFormat(c.format)
	if err != nil {
		return config.Effective{}, nil, 0, err
	}

	raw := positionalScale
	if set["scale"] {
		raw = c.scale
	}
	var scaleErr error
	if raw != "" {
		cli.Scale, scaleErr = mp4.ParseScale(raw)
		cli.ScaleAuto = scaleErr != nil
	}

	cli.ConfigPath = c.configPath
	cli.Strict, cli.StrictSet = c.strict, set["strict"]
	cli.LogLevel, cli.LogLevelSet = c.logLevel, set["log-level"]

	eff, err := config.Load(".", cli)
	if err != nil {
		return eff, nil, 0, err
	}
	log, err := logx.New(stderr, eff.Log)
	if err != nil {
		return eff, nil, 0, err
	}
	if scaleErr != nil {
		log.Warn("invalid scale, using automatic scaling", "scale", raw, "err", scaleErr)
	}
	if eff.Source != "" {
		log.Debug("loaded config", "path", eff.Source)
	}
	return eff, log, format, nil
}

func cmdPatch(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("patch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var c common
	c.register(fs)
	undoPath := fs.String("undo", "", "write an undo delta to this file")
	fs.Usage = func() { usage(stderr); fs.PrintDefaults() }
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() < 2 || fs.NArg() > 3 {
		fs.Usage()
		return exitUsage
	}
	in, out := fs.Arg(0), fs.Arg(1)

	var cli config.CLIArgs
	if *undoPath != "" {
		cli.Undo, cli.UndoSet = true, true
	}
	eff, log, format, err := c.setup(fs, fs.Arg(2), stderr, cli)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	job := run.Job{Src: in, Dst: out, UndoPath: *undoPath}
	if job.UndoPath == "" && eff.Undo {
		job.UndoPath = out + undo.Ext
	}

	res, err := run.File(ctx, job, run.Options{
		Scale:  eff.Scale,
		Strict: eff.Strict,
		Probe:  !c.noProbe,
		Logger: log,
	})
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitFail
	}

	if format == FormatJSON {
		return encodeJSON(stdout, stderr, newFileView(res))
	}
	printFileText(stdout, res)
	fmt.Fprintf(stdout, "Total patched boxes: %d\n", res.Patched())
	return exitOK
}

func cmdBatch(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("batch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var c common
	c.register(fs)
	outDir := fs.String("out", "", "output directory (required)")
	jobs := fs.Int("jobs", config.DefaultJobs, "files patched concurrently")
	withUndo := fs.Bool("undo", false, "write <out>"+undo.Ext+" next to each output")
	fs.Usage = func() { usage(stderr); fs.PrintDefaults() }
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *outDir == "" || fs.NArg() == 0 {
		fs.Usage()
		return exitUsage
	}

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	cli := config.CLIArgs{
		Jobs: *jobs, JobsSet: set["jobs"],
		Undo: *withUndo, UndoSet: set["undo"],
	}
	eff, log, format, err := c.setup(fs, "", stderr, cli)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	var list []run.Job
	for _, src := range fs.Args() {
		j := run.Job{Src: src, Dst: filepath.Join(*outDir, filepath.Base(src))}
		if eff.Undo {
			j.UndoPath = j.Dst + undo.Ext
		}
		list = append(list, j)
	}

	rep, err := run.Batch(ctx, list, run.Options{
		Scale:  eff.Scale,
		Strict: eff.Strict,
		Probe:  !c.noProbe,
		Jobs:   eff.Jobs,
		Logger: log,
	})
	if err != nil && !errors.Is(err, run.ErrBatchFailed) {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitUsage
	}

	if format == FormatJSON {
		views := make([]fileView, len(rep.Results))
		for i, r := range rep.Results {
			views[i] = newFileView(r)
		}
		if code := encodeJSON(stdout, stderr, views); code != exitOK {
			return code
		}
	} else {
		for _, r := range rep.Results {
			if r.Err != nil {
				fmt.Fprintf(stdout, "%s: error: %v\n", r.Src, r.Err)
				continue
			}
			printFileText(stdout, r)
		}
		fmt.Fprintf(stdout, "Total patched boxes: %d\n", rep.Patched)
	}
	if rep.Failed > 0 {
		fmt.Fprintf(stderr, "%d of %d files failed\n", rep.Failed, len(list))
		return exitFail
	}
	return exitOK
}

func cmdInspect(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	fs.SetOutput(stderr)
	strict := fs.Bool("strict", false, "walk the box tree instead of scanning for signatures")
	formatFlag := fs.String("format", "text", "output format: text, json")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() != 1 {
		usage(stderr)
		return exitUsage
	}
	format, err := parseFormat(*formatFlag)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	buf, err := fsx.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitFail
	}

	var headers []headerView
	for _, t := range mp4.HeaderTypes {
		for _, h := range mp4.Inspect(buf, t, *strict) {
			headers = append(headers, headerView{
				Type:      h.Type,
				Offset:    h.Offset,
				Version:   h.Version,
				Timescale: h.Timescale,
				Duration:  h.Duration,
				Seconds:   h.Seconds(),
			})
		}
	}
	info, perr := probe.Bytes(buf)

	if format == FormatJSON {
		v := inspectView{File: fs.Arg(0), Size: len(buf), Headers: headers}
		if perr == nil {
			v.Probe = &info
		}
		return encodeJSON(stdout, stderr, v)
	}

	fmt.Fprintf(stdout, "%s (%s)\n", fs.Arg(0), humanize.Bytes(uint64(len(buf))))
	for _, h := range headers {
		fmt.Fprintf(stdout, "[%s] offset=%d v=%d timescale=%d duration=%d (%.3fs)\n",
			h.Type, h.Offset, h.Version, h.Timescale, h.Duration, h.Seconds)
	}
	switch {
	case perr != nil:
		fmt.Fprintf(stdout, "probe: %v\n", perr)
	default:
		if fps, ok := info.VideoFrameRate(); ok {
			fmt.Fprintf(stdout, "frame rate: %.3f fps\n", fps)
		}
	}
	return exitOK
}

func cmdRestore(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("restore", flag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() != 3 {
		usage(stderr)
		return exitUsage
	}

	patched, err := fsx.ReadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitFail
	}
	delta, err := fsx.ReadFile(fs.Arg(1))
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitFail
	}
	original, err := undo.Apply(patched, delta)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitFail
	}
	if err := fsx.WriteFileAtomic(fs.Arg(2), original, 0o644); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitFail
	}
	fmt.Fprintf(stdout, "Restored %s (%s)\n", fs.Arg(2), humanize.Bytes(uint64(len(original))))
	return exitOK
}

func printFileText(w io.Writer, r run.FileResult) {
	for _, p := range r.Result.Patched {
		fmt.Fprintf(w, "[%s] offset=%d v=%d timescale %d -> %d, duration %d -> %d\n",
			p.Type, p.Offset, p.Version, p.OldTimescale, p.NewTimescale, p.OldDuration, p.NewDuration)
	}
	if r.Before != nil && r.After != nil {
		before, ok1 := r.Before.VideoFrameRate()
		after, ok2 := r.After.VideoFrameRate()
		if ok1 && ok2 {
			fmt.Fprintf(w, "frame rate: %.3f -> %.3f fps\n", before, after)
		}
	}
	fmt.Fprintf(w, "Wrote %s (%s)\n", r.Dst, humanize.Bytes(uint64(r.Size)))
	if r.UndoPath != "" {
		fmt.Fprintf(w, "Undo delta %s (%s)\n", r.UndoPath, humanize.Bytes(uint64(r.UndoSize)))
	}
}

func encodeJSON(stdout, stderr io.Writer, v any) int {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(stderr, "error encoding JSON: %v\n", err)
		return exitFail
	}
	return exitOK
}
