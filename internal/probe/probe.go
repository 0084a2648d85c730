// Package probe reads movie and track timing through a full box decoder.
// It is an independent view of a file, used to report the frame rate a
// player would derive before and after a timescale patch.
package probe

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	mp4ff "github.com/Eyevinn/mp4ff/mp4"
)

// ErrNoMovie is returned when the input holds no moov box.
var ErrNoMovie = errors.New("no moov box")

// Track is the timing view of one trak.
type Track struct {
	ID        uint32  `json:"id"`
	Handler   string  `json:"handler"` // vide, soun, ...
	Timescale uint32  `json:"timescale"`
	Duration  uint64  `json:"duration"`
	Samples   uint64  `json:"samples"`
	FrameRate float64 `json:"frame_rate,omitempty"`
}

// Info is the timing view of a movie.
type Info struct {
	Timescale uint32  `json:"timescale"`
	Duration  uint64  `json:"duration"`
	Tracks    []Track `json:"tracks"`
}

// Seconds returns the movie duration in seconds.
func (i Info) Seconds() float64 {
	if i.Timescale == 0 {
		return 0
	}
	return float64(i.Duration) / float64(i.Timescale)
}

// VideoFrameRate returns the frame rate of the first video track with
// sample timing.
func (i Info) VideoFrameRate() (float64, bool) {
	for _, t := range i.Tracks {
		if t.Handler == "vide" && t.FrameRate > 0 {
			return t.FrameRate, true
		}
	}
	return 0, false
}

// Bytes probes an in-memory file.
func Bytes(b []byte) (Info, error) {
	return Probe(bytes.NewReader(b))
}

// Probe decodes r and extracts movie and track timing.
func Probe(r io.Reader) (Info, error) {
	f, err := mp4ff.DecodeFile(r)
	if err != nil {
		return Info{}, fmt.Errorf("probe: %w", err)
	}
	moov := f.Moov
	if moov == nil && f.Init != nil {
		moov = f.Init.Moov
	}
	if moov == nil || moov.Mvhd == nil {
		return Info{}, ErrNoMovie
	}

	info := Info{
		Timescale: moov.Mvhd.Timescale,
		Duration:  moov.Mvhd.Duration,
	}
	for _, trak := range moov.Traks {
		info.Tracks = append(info.Tracks, track(trak))
	}
	return info, nil
}

func track(trak *mp4ff.TrakBox) Track {
	var t Track
	if trak.Tkhd != nil {
		t.ID = trak.Tkhd.TrackID
	}
	mdia := trak.Mdia
	if mdia == nil {
		return t
	}
	if mdia.Hdlr != nil {
		t.Handler = mdia.Hdlr.HandlerType
	}
	if mdia.Mdhd != nil {
		t.Timescale = mdia.Mdhd.Timescale
		t.Duration = mdia.Mdhd.Duration
	}
	if mdia.Minf == nil || mdia.Minf.Stbl == nil || mdia.Minf.Stbl.Stts == nil {
		return t
	}

	stts := mdia.Minf.Stbl.Stts
	var ticks uint64
	for i, n := range stts.SampleCount {
		t.Samples += uint64(n)
		if i < len(stts.SampleTimeDelta) {
			ticks += uint64(n) * uint64(stts.SampleTimeDelta[i])
		}
	}
	if ticks > 0 && t.Timescale > 0 {
		t.FrameRate = float64(t.Samples) * float64(t.Timescale) / float64(ticks)
	}
	return t
}
