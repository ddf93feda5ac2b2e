package bytebuffers_test

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/mrzaxaryan/tlsclient/pkg/bytebuffers"
)

func TestBufferAppendReturnsOffset(t *testing.T) {
	buf := bytebuffers.NewBuffer()
	if off := buf.Append([]byte("hello")); off != 0 {
		t.Fatal("first append offset", off)
	}
	if off := buf.Append([]byte("world")); off != 5 {
		t.Fatal("second append offset", off)
	}
	if got := string(buf.Bytes()); got != "helloworld" {
		t.Fatal("content", got)
	}
}

func TestBufferGrowthInvariant(t *testing.T) {
	buf := bytebuffers.NewBuffer()
	var want []byte
	for i := 0; i < 200; i++ {
		chunk := make([]byte, 1+i%97)
		if _, err := rand.Read(chunk); err != nil {
			t.Fatal(err)
		}
		buf.Append(chunk)
		want = append(want, chunk...)
		if buf.Len() > buf.Cap() {
			t.Fatal("size exceeds capacity", buf.Len(), buf.Cap())
		}
	}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Fatal("content diverged after reallocation")
	}
}

func TestBufferGrowthPolicy(t *testing.T) {
	buf := bytebuffers.NewBuffer()
	buf.Append([]byte{1})
	if buf.Cap() != 256 {
		t.Fatal("minimum capacity", buf.Cap())
	}
	buf.Reserve(256)
	// size was 1, requested 256 -> (1+256)*4
	if buf.Cap() != (1+256)*4 {
		t.Fatal("growth factor", buf.Cap())
	}
}

func TestBufferReserveAndPatch(t *testing.T) {
	buf := bytebuffers.NewBuffer()
	buf.AppendByte(22)
	buf.AppendUint16(0x0303)
	lenOff := buf.Reserve(2)
	body := buf.Append([]byte{1, 2, 3, 4, 5})
	buf.PatchUint16(lenOff, uint16(buf.Len()-body))
	want := []byte{22, 3, 3, 0, 5, 1, 2, 3, 4, 5}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Fatalf("got % x want % x", buf.Bytes(), want)
	}
}

func TestBufferUint24RoundTrip(t *testing.T) {
	buf := bytebuffers.NewBuffer()
	off := buf.Reserve(3)
	buf.PatchUint24(off, 0x0a0b0c)
	buf.AppendUint24(0x123456)
	v1, err := buf.ReadUint24()
	if err != nil {
		t.Fatal(err)
	}
	v2, err := buf.ReadUint24()
	if err != nil {
		t.Fatal(err)
	}
	if v1 != 0x0a0b0c || v2 != 0x123456 {
		t.Fatalf("got %x %x", v1, v2)
	}
}

func TestBufferTypedRoundTrip(t *testing.T) {
	buf := bytebuffers.NewBuffer()
	buf.AppendByte(0x17)
	buf.AppendUint16(0xfeff)
	buf.AppendUint64(0x0102030405060708)
	buf.AppendUint64(0x1122334455667788)
	buf.Append([]byte{9, 9, 9})

	if c, _ := buf.ReadByte(); c != 0x17 {
		t.Fatal("byte", c)
	}
	if v, _ := buf.ReadUint16(); v != 0xfeff {
		t.Fatal("uint16", v)
	}
	if v, _ := buf.ReadUint64(); v != 0x0102030405060708 {
		t.Fatalf("uint64 %x", v)
	}
	var p [8]byte
	if err := buf.Read(p[:]); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(p[:], []byte{0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88}) {
		t.Fatalf("block read % x", p)
	}
	if buf.Remaining() != 3 {
		t.Fatal("remaining", buf.Remaining())
	}
}

func TestBufferReadPastEnd(t *testing.T) {
	buf := bytebuffers.NewBuffer()
	buf.AppendByte(1)
	if _, err := buf.ReadUint16(); err != bytebuffers.ErrShortBuffer {
		t.Fatal("expected short buffer error, got", err)
	}
	// the failed read must not consume the remaining byte
	if c, err := buf.ReadByte(); err != nil || c != 1 {
		t.Fatal("byte after failed read", c, err)
	}
}

func TestBufferDiscard(t *testing.T) {
	buf := bytebuffers.NewBuffer()
	buf.Append([]byte("0123456789"))
	if err := buf.Skip(4); err != nil {
		t.Fatal(err)
	}
	buf.Discard(6)
	if got := string(buf.Bytes()); got != "6789" {
		t.Fatal("after discard", got)
	}
	if buf.ReadPos() != 0 {
		t.Fatal("read pos after discard", buf.ReadPos())
	}
	buf.Discard(100)
	if buf.Len() != 0 {
		t.Fatal("discard past end", buf.Len())
	}
}

func TestBufferSetSizeShrinksReadPos(t *testing.T) {
	buf := bytebuffers.NewBuffer()
	buf.Append([]byte("abcdef"))
	_ = buf.Skip(5)
	buf.SetSize(3)
	if buf.Len() != 3 || buf.ReadPos() != 3 {
		t.Fatal("after shrink", buf.Len(), buf.ReadPos())
	}
}

func TestBufferClear(t *testing.T) {
	buf := bytebuffers.NewBuffer()
	buf.Append([]byte("abc"))
	buf.Clear()
	if buf.Len() != 0 || buf.Cap() != 0 || buf.ReadPos() != 0 {
		t.Fatal("clear did not reset", buf.Len(), buf.Cap(), buf.ReadPos())
	}
	// buffer stays usable after Clear
	buf.Append([]byte("xyz"))
	if string(buf.Bytes()) != "xyz" {
		t.Fatal("append after clear")
	}
}

func TestBufferAllocate(t *testing.T) {
	buf := bytebuffers.NewBuffer()
	buf.Append([]byte("head"))
	p := buf.Allocate(8)
	n := copy(p, "tail")
	buf.AllocatedWrote(n)
	if got := string(buf.Bytes()); got != "headtail" {
		t.Fatal("allocate/wrote", got)
	}
}

func BenchmarkBufferAppend(b *testing.B) {
	chunk := bytes.Repeat([]byte{0xab}, 512)
	buf := bytebuffers.NewBuffer()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buf.Append(chunk)
		if buf.Len() > 1<<20 {
			buf.SetSize(0)
		}
	}
}
