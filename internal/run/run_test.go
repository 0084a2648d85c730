package run

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	mp4ff "github.com/Eyevinn/mp4ff/mp4"

	mp4 "github.com/tetsuo/mp4retime"
	"github.com/tetsuo/mp4retime/internal/undo"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// movieFile encodes a one-track movie: movie timescale 1000, video track
// at trackTimescale with 300 samples spanning 10 seconds.
func movieFile(t *testing.T, trackTimescale uint32) []byte {
	t.Helper()
	seg := mp4ff.CreateEmptyInit()
	seg.Moov.Mvhd.Timescale = 1000
	seg.AddEmptyTrack(trackTimescale, "video", "und")
	seg.Moov.Mvhd.Duration = 10000
	trak := seg.Moov.Traks[0]
	trak.Mdia.Mdhd.Duration = uint64(trackTimescale) * 10
	trak.Mdia.Minf.Stbl.Stts.SampleCount = []uint32{300}
	trak.Mdia.Minf.Stbl.Stts.SampleTimeDelta = []uint32{trackTimescale / 30}

	var buf bytes.Buffer
	if err := seg.Encode(&buf); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func writeInput(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestFile_PatchProbeUndo(t *testing.T) {
	dir := t.TempDir()
	orig := movieFile(t, 15000)
	src := writeInput(t, dir, "in.mp4", orig)
	job := Job{
		Src:      src,
		Dst:      filepath.Join(dir, "out", "in.mp4"),
		UndoPath: filepath.Join(dir, "out", "in.mp4"+undo.Ext),
	}

	res, err := File(context.Background(), job, Options{Scale: mp4.ExplicitScale(2), Probe: true, Logger: quiet})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Patched() != 2 || res.Size != int64(len(orig)) {
		t.Fatalf("result = %+v", res)
	}
	if res.Before == nil || res.After == nil {
		t.Fatal("probe results missing")
	}
	// sample deltas are untouched, so doubling the timescale doubles the rate
	before, _ := res.Before.VideoFrameRate()
	after, _ := res.After.VideoFrameRate()
	if before != 30 || after != 60 {
		t.Errorf("frame rate %v -> %v, want 30 -> 60", before, after)
	}
	if res.After.Tracks[0].Timescale != 30000 || res.After.Timescale != 2000 {
		t.Errorf("after = %+v", res.After)
	}

	out, err := os.ReadFile(job.Dst)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != len(orig) || bytes.Equal(out, orig) {
		t.Fatal("output should be patched and keep its length")
	}
	src2, _ := os.ReadFile(src)
	if !bytes.Equal(src2, orig) {
		t.Fatal("source modified")
	}

	delta, err := os.ReadFile(job.UndoPath)
	if err != nil {
		t.Fatal(err)
	}
	if res.UndoSize != len(delta) {
		t.Errorf("UndoSize = %d, file has %d", res.UndoSize, len(delta))
	}
	restored, err := undo.Apply(out, delta)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(restored, orig) {
		t.Fatal("undo did not restore the original")
	}
}

func TestFile_InPlace(t *testing.T) {
	dir := t.TempDir()
	src := writeInput(t, dir, "in.mp4", movieFile(t, 600))

	res, err := File(context.Background(), Job{Src: src, Dst: src}, Options{Logger: quiet})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Patched() != 2 {
		t.Fatalf("patched %d", res.Patched())
	}
	out, _ := os.ReadFile(src)
	hs := mp4.Inspect(out, mp4.TypeMdhd, true)
	if len(hs) != 1 || hs[0].Timescale != mp4.DefaultTimescaleBase || hs[0].Duration != 300000 {
		t.Errorf("mdhd = %+v", hs)
	}
}

func TestFile_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := File(context.Background(), Job{Src: filepath.Join(dir, "missing.mp4"), Dst: filepath.Join(dir, "x.mp4")}, Options{Logger: quiet})
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want ErrNotExist", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := writeInput(t, dir, "a.mp4", movieFile(t, 600))
	res, err := File(ctx, Job{Src: src, Dst: filepath.Join(dir, "b.mp4")}, Options{Logger: quiet})
	if !errors.Is(err, context.Canceled) || !errors.Is(res.Err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestFile_NotAMovieStillWritten(t *testing.T) {
	dir := t.TempDir()
	data := []byte("plain bytes with no boxes")
	src := writeInput(t, dir, "x.bin", data)
	dst := filepath.Join(dir, "y.bin")

	res, err := File(context.Background(), Job{Src: src, Dst: dst}, Options{Probe: true, Logger: quiet})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Patched() != 0 || res.Before != nil || res.After != nil {
		t.Errorf("result = %+v", res)
	}
	out, _ := os.ReadFile(dst)
	if !bytes.Equal(out, data) {
		t.Error("output differs from input")
	}
}

func TestBatch(t *testing.T) {
	dir := t.TempDir()
	outDir := filepath.Join(dir, "out")

	var jobs []Job
	for i := 5; i >= 1; i-- {
		name := fmt.Sprintf("m%d.mp4", i)
		src := writeInput(t, dir, name, movieFile(t, uint32(i)*600))
		jobs = append(jobs, Job{Src: src, Dst: filepath.Join(outDir, name)})
	}
	jobs = append(jobs, Job{Src: filepath.Join(dir, "gone.mp4"), Dst: filepath.Join(outDir, "gone.mp4")})

	rep, err := Batch(context.Background(), jobs, Options{Jobs: 3, Logger: quiet})
	if !errors.Is(err, ErrBatchFailed) {
		t.Fatalf("err = %v, want ErrBatchFailed", err)
	}
	if rep.Failed != 1 || rep.Patched != 10 || len(rep.Results) != 6 {
		t.Fatalf("report = %+v", rep)
	}
	if filepath.Base(rep.Results[0].Src) != "gone.mp4" || filepath.Base(rep.Results[1].Src) != "m1.mp4" {
		t.Errorf("results not sorted: %s, %s", rep.Results[0].Src, rep.Results[1].Src)
	}

	for _, r := range rep.Results[1:] {
		out, err := os.ReadFile(r.Dst)
		if err != nil {
			t.Fatal(err)
		}
		mv := mp4.Inspect(out, mp4.TypeMvhd, false)
		if len(mv) != 1 || mv[0].Timescale != mp4.DefaultTimescaleBase {
			t.Errorf("%s: mvhd = %+v", r.Dst, mv)
		}
		// each track resolves its own factor, so all land on the same base
		md := mp4.Inspect(out, mp4.TypeMdhd, false)
		if len(md) != 1 || md[0].Timescale != mp4.DefaultTimescaleBase || binary.BigEndian.Uint32(out[md[0].Offset+24:]) != 300000 {
			t.Errorf("%s: mdhd = %+v", r.Dst, md)
		}
	}
}

func TestBatch_DuplicateDestination(t *testing.T) {
	jobs := []Job{{Src: "a.mp4", Dst: "out.mp4"}, {Src: "b.mp4", Dst: "out.mp4"}}
	if _, err := Batch(context.Background(), jobs, Options{Logger: quiet}); err == nil {
		t.Fatal("expected duplicate destination error")
	}
}
