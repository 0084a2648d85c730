package mp4

// maxDepth limits the reader nesting stack.
const maxDepth = 16

// readerFrame stores parent state when entering a container box.
type readerFrame struct {
	end    int // parent's iteration end boundary
	boxEnd int // position to resume after exiting this container
}

// Reader walks the box tree of an in-memory buffer without copying it.
// It is the structural counterpart of FindNext: only genuine box headers are
// visited, so signature bytes inside payloads never show up.
type Reader struct {
	buf []byte
	pos int // next position to parse from
	end int // iteration end boundary

	boxType   BoxType
	boxSize   uint64
	boxStart  int
	boxEnd    int
	dataStart int
	version   uint8

	stack [maxDepth]readerFrame
	depth int
}

// NewReader creates a Reader for the given buffer.
func NewReader(buf []byte) Reader {
	return Reader{
		buf: buf,
		end: len(buf),
	}
}

// Next advances to the next sibling box. Returns false if no more boxes
// fit inside the current container.
func (r *Reader) Next() bool {
	if r.boxEnd > r.pos {
		r.pos = r.boxEnd
	}
	if r.end-r.pos < boxHeaderSize {
		return false
	}

	r.boxStart = r.pos
	size := uint64(be.Uint32(r.buf[r.pos:]))
	copy(r.boxType[:], r.buf[r.pos+4:r.pos+8])
	ptr := r.pos + boxHeaderSize

	switch size {
	case 0:
		size = uint64(r.end - r.pos)
	case 1:
		if r.end-r.pos < 16 {
			return false
		}
		size = be.Uint64(r.buf[ptr:])
		ptr += 8
	}
	if size < uint64(ptr-r.boxStart) || size > uint64(r.end-r.boxStart) {
		return false
	}

	r.boxSize = size
	r.boxEnd = r.boxStart + int(size)

	r.version = 0
	if IsFullBox(r.boxType) {
		if r.boxEnd-ptr < 4 {
			return false
		}
		r.version = r.buf[ptr]
		ptr += 4
	}

	r.dataStart = ptr
	return true
}

// Type returns the current box's type.
func (r *Reader) Type() BoxType { return r.boxType }

// Size returns the current box's total size including header.
func (r *Reader) Size() uint64 { return r.boxSize }

// Version returns the version field for full boxes.
func (r *Reader) Version() uint8 { return r.version }

// Offset returns the byte offset of the current box's start in the buffer.
func (r *Reader) Offset() int { return r.boxStart }

// Depth returns the current nesting depth (0 at top level).
func (r *Reader) Depth() int { return r.depth }

// Enter descends into the current container box to iterate its children.
// After Enter, call Next to advance to the first child box.
// Enter reports false when the nesting limit is reached; the caller must not
// call Exit in that case.
func (r *Reader) Enter() bool {
	if r.depth == maxDepth {
		return false
	}
	r.stack[r.depth] = readerFrame{
		end:    r.end,
		boxEnd: r.boxEnd,
	}
	r.depth++
	r.end = r.boxEnd
	r.pos = r.dataStart
	r.boxEnd = r.dataStart
	return true
}

// Exit returns to the parent container level.
// After Exit, the next call to Next will advance to the next sibling.
func (r *Reader) Exit() {
	r.depth--
	f := r.stack[r.depth]
	r.end = f.end
	r.pos = f.boxEnd
	r.boxEnd = f.boxEnd
}

// Walk visits every box reachable through container boxes in depth-first
// order. fn is called with the reader positioned on the box.
func (r *Reader) Walk(fn func(r *Reader)) {
	for r.Next() {
		fn(r)
		if IsContainerBox(r.Type()) && r.Enter() {
			r.Walk(fn)
			r.Exit()
		}
	}
}
