package mp4_test

import (
	"encoding/binary"
	"slices"
)

// atom builds a box with a compact header around the concatenated payloads.
func atom(typ string, payload ...[]byte) []byte {
	body := slices.Concat(payload...)
	b := make([]byte, 8, 8+len(body))
	binary.BigEndian.PutUint32(b, uint32(8+len(body)))
	copy(b[4:], typ)
	return append(b, body...)
}

// headerBox builds an mvhd or mdhd box with the given timing fields.
// Creation and modification times are filled with a recognisable pattern so
// tests can check that they survive a patch.
func headerBox(typ string, version uint8, timescale uint32, duration uint64) []byte {
	var body []byte
	body = append(body, version, 0, 0, 0)
	if version == 1 {
		body = binary.BigEndian.AppendUint64(body, 0x0102030405060708)
		body = binary.BigEndian.AppendUint64(body, 0x1112131415161718)
		body = binary.BigEndian.AppendUint32(body, timescale)
		body = binary.BigEndian.AppendUint64(body, duration)
	} else {
		body = binary.BigEndian.AppendUint32(body, 0x01020304)
		body = binary.BigEndian.AppendUint32(body, 0x11121314)
		body = binary.BigEndian.AppendUint32(body, timescale)
		body = binary.BigEndian.AppendUint32(body, uint32(duration))
	}
	if typ == "mvhd" {
		// rate, volume, reserved, matrix, pre_defined, next_track_ID
		tail := make([]byte, 80)
		binary.BigEndian.PutUint32(tail[0:], 0x00010000)
		binary.BigEndian.PutUint16(tail[4:], 0x0100)
		binary.BigEndian.PutUint32(tail[76:], 2)
		body = append(body, tail...)
	} else {
		// language "und", pre_defined
		body = append(body, 0x55, 0xc4, 0, 0)
	}
	return atom(typ, body)
}

// movie builds ftyp + moov{mvhd, trak{mdia{mdhd}}} + mdat.
func movie(version uint8, movieTimescale, trackTimescale uint32, duration uint64, mdat []byte) []byte {
	ftyp := atom("ftyp", []byte("isom"), []byte{0, 0, 2, 0}, []byte("isomiso2mp41"))
	moov := atom("moov",
		headerBox("mvhd", version, movieTimescale, duration),
		atom("trak",
			atom("mdia",
				headerBox("mdhd", version, trackTimescale, duration*uint64(trackTimescale)/uint64(movieTimescale)),
			),
		),
	)
	return slices.Concat(ftyp, moov, atom("mdat", mdat))
}

func readU32(b []byte, off int) uint32 { return binary.BigEndian.Uint32(b[off:]) }

func readU64(b []byte, off int) uint64 { return binary.BigEndian.Uint64(b[off:]) }
