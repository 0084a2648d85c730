package mp4

import (
	"fmt"
	"time"
)

// Layout locates the timescale and duration fields of a movie or media
// header box, relative to the start of the box (its size field).
//
//	version 0: size(4) type(4) version(1) flags(3) ctime(4) mtime(4) timescale(4) duration(4)
//	version 1: size(4) type(4) version(1) flags(3) ctime(8) mtime(8) timescale(4) duration(8)
//
// mvhd and mdhd share this prefix; everything after duration is left alone.
type Layout struct {
	TimescaleOffset int
	DurationOffset  int
	DurationWidth   int // 4 or 8 bytes
}

// FieldsEnd returns the offset just past the duration field.
func (l Layout) FieldsEnd() int {
	return l.DurationOffset + l.DurationWidth
}

var layouts = [...]Layout{
	0: {TimescaleOffset: 20, DurationOffset: 24, DurationWidth: 4},
	1: {TimescaleOffset: 28, DurationOffset: 32, DurationWidth: 8},
}

// versionOffset is where the full-box version byte sits.
const versionOffset = 8

// LayoutFor returns the field layout for a header box version.
func LayoutFor(version uint8) (Layout, error) {
	if int(version) >= len(layouts) {
		return Layout{}, &versionError{Version: version}
	}
	return layouts[version], nil
}

// TimeHeader is the decoded timing prefix of one header box.
type TimeHeader struct {
	Type      BoxType
	Offset    int // offset of the box size field
	Size      uint32
	Version   uint8
	Layout    Layout
	Timescale uint32
	Duration  uint64
}

// Seconds returns the duration in seconds, or 0 when the timescale is 0.
func (h TimeHeader) Seconds() float64 {
	if h.Timescale == 0 {
		return 0
	}
	return float64(h.Duration) / float64(h.Timescale)
}

// Length returns the duration as a time.Duration, saturating instead of
// wrapping for very long presentations.
func (h TimeHeader) Length() time.Duration {
	s := h.Seconds()
	if s >= float64(1<<63-1)/float64(time.Second) {
		return time.Duration(1<<63 - 1)
	}
	return time.Duration(s * float64(time.Second))
}

// ReadTimeHeader decodes the version, timescale and duration of the box
// whose size field is at headerOffset and whose declared size is size.
//
// It returns ErrUnsupportedVersion for versions other than 0 and 1, and
// ErrInsufficientSize when the fields would extend past either the declared
// box or the buffer.
func ReadTimeHeader(buf []byte, headerOffset int, size uint32) (TimeHeader, error) {
	h := TimeHeader{Offset: headerOffset, Size: size}
	if headerOffset < 0 || headerOffset+versionOffset >= len(buf) {
		return h, fmt.Errorf("%w: no version byte at offset %d", ErrInsufficientSize, headerOffset)
	}
	copy(h.Type[:], buf[headerOffset+4:])
	h.Version = buf[headerOffset+versionOffset]

	l, err := LayoutFor(h.Version)
	if err != nil {
		return h, err
	}
	h.Layout = l

	end := l.FieldsEnd()
	if int64(end) > int64(size) {
		return h, fmt.Errorf("%w: version %d needs %d bytes, box declares %d", ErrInsufficientSize, h.Version, end, size)
	}
	if headerOffset+end > len(buf) {
		return h, fmt.Errorf("%w: box at offset %d is truncated", ErrInsufficientSize, headerOffset)
	}

	h.Timescale = be.Uint32(buf[headerOffset+l.TimescaleOffset:])
	if l.DurationWidth == 8 {
		h.Duration = be.Uint64(buf[headerOffset+l.DurationOffset:])
	} else {
		h.Duration = uint64(be.Uint32(buf[headerOffset+l.DurationOffset:]))
	}
	return h, nil
}

// Inspect returns the decodable header boxes of type t without modifying
// buf. Candidates that fail validation or decoding are omitted.
func Inspect(buf []byte, t BoxType, strict bool) []TimeHeader {
	var out []TimeHeader
	for _, tag := range Locate(buf, t, strict) {
		off, size, err := Validate(buf, tag)
		if err != nil {
			continue
		}
		h, err := ReadTimeHeader(buf, off, size)
		if err != nil {
			continue
		}
		out = append(out, h)
	}
	return out
}
