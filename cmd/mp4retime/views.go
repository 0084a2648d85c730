package main

import (
	mp4 "github.com/tetsuo/mp4retime"
	"github.com/tetsuo/mp4retime/internal/probe"
	"github.com/tetsuo/mp4retime/internal/run"
)

type skipView struct {
	Type   mp4.BoxType `json:"type"`
	Offset int         `json:"offset"`
	Reason string      `json:"reason"`
}

type fileView struct {
	Src      string            `json:"src"`
	Dst      string            `json:"dst"`
	Size     int64             `json:"size"`
	Patched  []mp4.PatchRecord `json:"patched"`
	Skipped  []skipView        `json:"skipped,omitempty"`
	Before   *probe.Info       `json:"before,omitempty"`
	After    *probe.Info       `json:"after,omitempty"`
	UndoPath string            `json:"undo,omitempty"`
	UndoSize int               `json:"undo_size,omitempty"`
	Error    string            `json:"error,omitempty"`
}

func newFileView(r run.FileResult) fileView {
	v := fileView{
		Src:      r.Src,
		Dst:      r.Dst,
		Size:     r.Size,
		Patched:  r.Result.Patched,
		Before:   r.Before,
		After:    r.After,
		UndoPath: r.UndoPath,
		UndoSize: r.UndoSize,
	}
	if v.Patched == nil {
		v.Patched = []mp4.PatchRecord{}
	}
	for _, s := range r.Result.Skipped {
		v.Skipped = append(v.Skipped, skipView{Type: s.Type, Offset: s.Offset, Reason: s.Reason.Error()})
	}
	if r.Err != nil {
		v.Error = r.Err.Error()
	}
	return v
}

type headerView struct {
	Type      mp4.BoxType `json:"type"`
	Offset    int         `json:"offset"`
	Version   uint8       `json:"version"`
	Timescale uint32      `json:"timescale"`
	Duration  uint64      `json:"duration"`
	Seconds   float64     `json:"seconds"`
}

type inspectView struct {
	File    string       `json:"file"`
	Size    int          `json:"size"`
	Headers []headerView `json:"headers"`
	Probe   *probe.Info  `json:"probe,omitempty"`
}
