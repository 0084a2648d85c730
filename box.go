// Package mp4 rewrites the timing fields of ISO Base Media File Format (MP4)
// movie and media header boxes in place.
//
// The buffer is treated as flat bytes: header boxes are located by their
// 4-byte type signature, validated, and their timescale and duration fields
// are re-encoded under a scale factor. No other byte of the file changes.
package mp4

import (
	"encoding/binary"
)

var be = binary.BigEndian

// BoxType is a 4-byte box type identifier.
type BoxType [4]byte

func (t BoxType) String() string {
	return string(t[:])
}

// MarshalText encodes the type as its four characters.
func (t BoxType) MarshalText() ([]byte, error) {
	return t[:], nil
}

// newBoxType creates a BoxType from a 4-character string.
func newBoxType(s string) BoxType {
	var t BoxType
	copy(t[:], s)
	return t
}

// Known box types.
var (
	TypeFtyp = newBoxType("ftyp")
	TypeMoov = newBoxType("moov")
	TypeMvhd = newBoxType("mvhd")
	TypeTrak = newBoxType("trak")
	TypeTkhd = newBoxType("tkhd")
	TypeEdts = newBoxType("edts")
	TypeMdia = newBoxType("mdia")
	TypeMdhd = newBoxType("mdhd")
	TypeHdlr = newBoxType("hdlr")
	TypeMinf = newBoxType("minf")
	TypeDinf = newBoxType("dinf")
	TypeStbl = newBoxType("stbl")
	TypeMvex = newBoxType("mvex")
	TypeMoof = newBoxType("moof")
	TypeTraf = newBoxType("traf")
	TypeTref = newBoxType("tref")
	TypeTrgr = newBoxType("trgr")
	TypeMeta = newBoxType("meta")
	TypeUdta = newBoxType("udta")
	TypeMdat = newBoxType("mdat")
	TypeFree = newBoxType("free")
)

// HeaderTypes are the box types rewritten by Patch, in the order they are
// processed.
var HeaderTypes = []BoxType{TypeMvhd, TypeMdhd}

// boxHeaderSize is the size of a compact box header: 4-byte size + 4-byte type.
const boxHeaderSize = 8

// IsFullBox returns true if the box type has version and flags fields.
func IsFullBox(t BoxType) bool {
	switch t {
	case TypeMvhd, TypeTkhd, TypeMdhd, TypeHdlr, TypeMeta:
		return true
	}
	return false
}

// IsContainerBox returns true if the box type is a container that holds
// child boxes. Only containers on the path to a movie or media header are
// listed; everything else is skipped as an opaque leaf.
func IsContainerBox(t BoxType) bool {
	switch t {
	case TypeMoov, TypeTrak, TypeEdts, TypeMdia,
		TypeMinf, TypeDinf, TypeStbl, TypeUdta,
		TypeMeta, TypeMvex, TypeMoof, TypeTraf,
		TypeTref, TypeTrgr:
		return true
	}
	return false
}
