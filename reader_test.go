package mp4_test

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	mp4 "github.com/tetsuo/mp4retime"
)

func TestReaderWalk(t *testing.T) {
	buf := movie(1, 1000, 44100, 3000, []byte("data"))

	var got []string
	r := mp4.NewReader(buf)
	r.Walk(func(r *mp4.Reader) {
		got = append(got, fmt.Sprintf("%d:%s@%d v%d", r.Depth(), r.Type(), r.Offset(), r.Version()))
	})

	want := []string{
		"0:ftyp@0 v0",
		"0:moov@28 v0",
		"1:mvhd@36 v1",
		"1:trak@156 v0",
		"2:mdia@164 v0",
		"3:mdhd@172 v1",
		"0:mdat@216 v0",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("walk (-want +got):\n%s", diff)
	}
}

func TestReaderSizes(t *testing.T) {
	buf := append(atom("free", []byte("abc")), 0, 0, 0, 0, 'm', 'd', 'a', 't', 'x', 'y')

	r := mp4.NewReader(buf)
	if !r.Next() || r.Type() != mp4.TypeFree || r.Size() != 11 {
		t.Fatalf("first box = %s/%d", r.Type(), r.Size())
	}
	// size 0 extends to the end of the buffer
	if !r.Next() || r.Type() != mp4.TypeMdat || r.Size() != 10 {
		t.Fatalf("second box = %s/%d", r.Type(), r.Size())
	}
	if r.Next() {
		t.Fatal("expected end of buffer")
	}
}

func TestReaderRejectsUndersizedBox(t *testing.T) {
	buf := []byte{0, 0, 0, 4, 'f', 'r', 'e', 'e', 0, 0, 0, 0}
	r := mp4.NewReader(buf)
	if r.Next() {
		t.Fatalf("undersized box accepted: %s/%d", r.Type(), r.Size())
	}
}

func TestReaderNestingLimit(t *testing.T) {
	b := headerBox("mvhd", 0, 600, 1200)
	for range 20 {
		b = atom("moov", b)
	}

	var depth int
	r := mp4.NewReader(b)
	r.Walk(func(r *mp4.Reader) {
		depth = max(depth, r.Depth())
	})
	if depth != 16 {
		t.Errorf("max depth = %d, want 16", depth)
	}
}
