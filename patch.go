package mp4

import (
	"errors"
	"log/slog"
	"math"
	"strconv"
)

// PatchRecord describes one rewritten header box.
type PatchRecord struct {
	Type         BoxType `json:"type"`
	Offset       int     `json:"offset"` // offset of the box size field
	Version      uint8   `json:"version"`
	Factor       float64 `json:"factor"`
	OldTimescale uint32  `json:"timescale_old"`
	NewTimescale uint32  `json:"timescale_new"`
	OldDuration  uint64  `json:"duration_old"`
	NewDuration  uint64  `json:"duration_new"`
}

// Skip describes a candidate that was left untouched.
// Reason wraps one of ErrMalformed, ErrInsufficientSize,
// ErrUnsupportedVersion, ErrFieldOverflow or ErrInvalidScale.
type Skip struct {
	Type   BoxType
	Offset int // offset of the would-be size field; negative near the buffer start
	Reason error
}

// Result collects the outcome of a patch pass.
type Result struct {
	Patched []PatchRecord
	Skipped []Skip
}

// Count returns the number of rewritten boxes.
func (r Result) Count() int { return len(r.Patched) }

func (r *Result) append(o Result) {
	r.Patched = append(r.Patched, o.Patched...)
	r.Skipped = append(r.Skipped, o.Skipped...)
}

// Patcher rewrites the timescale and duration of header boxes in place.
// A Patcher holds no per-buffer state; the buffer passed to PatchType or
// Patch is owned by the call until it returns.
type Patcher struct {
	Scale  Scale
	Strict bool // walk the box tree instead of scanning for signatures
	Logger *slog.Logger
}

func (p *Patcher) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// PatchType rewrites every box of type t found in buf.
//
// In signature mode the scan resumes 4 bytes after each match whatever the
// outcome, so the bytes just written are scanned like any other payload.
func (p *Patcher) PatchType(buf []byte, t BoxType) Result {
	var res Result
	if p.Strict {
		for _, tag := range Locate(buf, t, true) {
			p.patchAt(buf, t, tag, &res)
		}
		return res
	}
	for start := 0; ; {
		tag := FindNext(buf, t, start)
		if tag < 0 {
			return res
		}
		start = tag + 4
		p.patchAt(buf, t, tag, &res)
	}
}

// Patch rewrites the movie header boxes and then the media header boxes of
// buf. Each box resolves the scale against its own original timescale.
func (p *Patcher) Patch(buf []byte) Result {
	var res Result
	for _, t := range HeaderTypes {
		res.append(p.PatchType(buf, t))
	}
	return res
}

// PatchType is a shorthand for a signature-mode Patcher using scale.
func PatchType(buf []byte, t BoxType, scale Scale) Result {
	p := Patcher{Scale: scale}
	return p.PatchType(buf, t)
}

// Patch is a shorthand for a signature-mode Patcher using scale.
func Patch(buf []byte, scale Scale) Result {
	p := Patcher{Scale: scale}
	return p.Patch(buf)
}

func (p *Patcher) patchAt(buf []byte, t BoxType, tag int, res *Result) {
	log := p.logger()

	off, size, err := Validate(buf, tag)
	if err != nil {
		log.Debug("rejected candidate", "type", t.String(), "offset", off, "err", err)
		res.Skipped = append(res.Skipped, Skip{Type: t, Offset: off, Reason: err})
		return
	}

	h, rec, err := p.apply(buf, off, size)
	if err == nil {
		log.Info("patched box", "type", t.String(), "offset", off,
			"version", h.Version, "factor", rec.Factor,
			"timescale_old", rec.OldTimescale, "timescale_new", rec.NewTimescale,
			"duration_old", rec.OldDuration, "duration_new", rec.NewDuration)
		res.Patched = append(res.Patched, rec)
		return
	}

	switch {
	case errors.Is(err, ErrUnsupportedVersion):
		log.Warn("unknown box version, skipping", "type", t.String(), "offset", off, "version", h.Version)
	case errors.Is(err, ErrFieldOverflow), errors.Is(err, ErrInvalidScale):
		log.Warn("box not patched", "type", t.String(), "offset", off, "err", err)
	default:
		log.Debug("rejected candidate", "type", t.String(), "offset", off, "err", err)
	}
	res.Skipped = append(res.Skipped, Skip{Type: t, Offset: off, Reason: err})
}

// apply decodes the box at off, resolves its factor and rewrites it.
func (p *Patcher) apply(buf []byte, off int, size uint32) (TimeHeader, PatchRecord, error) {
	h, err := ReadTimeHeader(buf, off, size)
	if err != nil {
		return h, PatchRecord{}, err
	}
	factor, err := p.Scale.Resolve(h.Timescale)
	if err != nil {
		return h, PatchRecord{}, err
	}
	rec, err := rewrite(buf, h, factor)
	return h, rec, err
}

// rewrite scales both timing fields of h and writes them back. Nothing is
// written unless both values fit their fields.
func rewrite(buf []byte, h TimeHeader, factor float64) (PatchRecord, error) {
	ts, err := scaleField(uint64(h.Timescale), factor, 4, "timescale")
	if err != nil {
		return PatchRecord{}, err
	}
	dur, err := scaleField(h.Duration, factor, h.Layout.DurationWidth, "duration")
	if err != nil {
		return PatchRecord{}, err
	}

	be.PutUint32(buf[h.Offset+h.Layout.TimescaleOffset:], uint32(ts))
	if h.Layout.DurationWidth == 8 {
		be.PutUint64(buf[h.Offset+h.Layout.DurationOffset:], dur)
	} else {
		be.PutUint32(buf[h.Offset+h.Layout.DurationOffset:], uint32(dur))
	}

	return PatchRecord{
		Type:         h.Type,
		Offset:       h.Offset,
		Version:      h.Version,
		Factor:       factor,
		OldTimescale: h.Timescale,
		NewTimescale: uint32(ts),
		OldDuration:  h.Duration,
		NewDuration:  dur,
	}, nil
}

// scaleField multiplies old by factor in float64 and truncates toward zero.
// Results that are negative or need more than width bytes are rejected.
func scaleField(old uint64, factor float64, width int, field string) (uint64, error) {
	v := math.Trunc(float64(old) * factor)
	if v < 0 || v >= math.Ldexp(1, 8*width) {
		return 0, &overflowError{Field: field, Width: width, Value: strconv.FormatFloat(v, 'f', -1, 64)}
	}
	return uint64(v), nil
}
