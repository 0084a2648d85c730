package mp4

import (
	"bytes"
	"fmt"
)

// FindNext returns the offset of the first occurrence of t's signature in
// buf at or after from, or -1 if there is none.
//
// The search is a literal byte match. Signature bytes that happen to appear
// inside sample data or metadata strings are reported just like real box
// tags; Validate and the field-layout checks are what filter them out.
func FindNext(buf []byte, t BoxType, from int) int {
	if from < 0 {
		from = 0
	}
	if from >= len(buf) {
		return -1
	}
	i := bytes.Index(buf[from:], t[:])
	if i < 0 {
		return -1
	}
	return from + i
}

// Validate derives the box header offset and declared size for a signature
// found at tagOffset. It fails with ErrMalformed when the size field would
// start before the buffer or declares fewer than 8 bytes.
func Validate(buf []byte, tagOffset int) (headerOffset int, size uint32, err error) {
	headerOffset = tagOffset - 4
	if headerOffset < 0 || tagOffset+4 > len(buf) {
		return headerOffset, 0, fmt.Errorf("%w: signature at offset %d", ErrMalformed, tagOffset)
	}
	size = be.Uint32(buf[headerOffset:])
	if size < boxHeaderSize {
		return headerOffset, size, fmt.Errorf("%w: size %d at offset %d", ErrMalformed, size, headerOffset)
	}
	return headerOffset, size, nil
}

// Locate returns the tag offsets of every candidate box of type t.
//
// With strict unset the buffer is scanned for the raw signature and each
// match resumes the scan 4 bytes later. With strict set the box tree is
// walked and only boxes nested in known containers are reported, which
// removes payload false positives at the cost of requiring a well-formed
// tree above the header boxes.
func Locate(buf []byte, t BoxType, strict bool) []int {
	var tags []int
	if strict {
		r := NewReader(buf)
		r.Walk(func(r *Reader) {
			if r.Type() == t {
				tags = append(tags, r.Offset()+4)
			}
		})
		return tags
	}
	for start := 0; ; {
		found := FindNext(buf, t, start)
		if found < 0 {
			return tags
		}
		tags = append(tags, found)
		start = found + 4
	}
}
