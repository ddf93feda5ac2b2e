package bytebuffers_test

import (
	"bytes"
	"testing"

	"github.com/mrzaxaryan/tlsclient/pkg/bytebuffers"
)

func TestReaderTypedReads(t *testing.T) {
	data := []byte{
		0x16,             // byte
		0x03, 0x03,       // uint16
		0x01, 0x02, 0x03, // uint24
		0, 0, 0, 0, 0, 0, 0, 42, // uint64
		'r', 'e', 's', 't',
	}
	r := bytebuffers.NewReader(data)

	if c, err := r.ReadByte(); err != nil || c != 0x16 {
		t.Fatal("byte", c, err)
	}
	if v, err := r.ReadUint16(); err != nil || v != 0x0303 {
		t.Fatal("uint16", v, err)
	}
	if v, err := r.ReadUint24(); err != nil || v != 0x010203 {
		t.Fatal("uint24", v, err)
	}
	if v, err := r.ReadUint64(); err != nil || v != 42 {
		t.Fatal("uint64", v, err)
	}
	if string(r.Bytes()) != "rest" {
		t.Fatal("remainder", r.Bytes())
	}
	if r.Len() != 4 || r.Offset() != len(data)-4 {
		t.Fatal("cursor", r.Len(), r.Offset())
	}
}

func TestReaderExactFill(t *testing.T) {
	r := bytebuffers.NewReader([]byte{1, 2, 3})
	var p [2]byte
	if err := r.Read(p[:]); err != nil {
		t.Fatal(err)
	}
	if p != [2]byte{1, 2} {
		t.Fatal("filled", p)
	}
	// too large, must fail without consuming
	var q [5]byte
	if err := r.Read(q[:]); err != bytebuffers.ErrShortBuffer {
		t.Fatal("expected short buffer, got", err)
	}
	if c, err := r.ReadByte(); err != nil || c != 3 {
		t.Fatal("byte after failed fill", c, err)
	}
}

func TestReaderReadBytesAliases(t *testing.T) {
	backing := []byte{9, 8, 7, 6}
	r := bytebuffers.NewReader(backing)
	p, err := r.ReadBytes(2)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(p, []byte{9, 8}) {
		t.Fatal("content", p)
	}
	backing[0] = 0xff
	if p[0] != 0xff {
		t.Fatal("ReadBytes must alias, not copy")
	}
	if _, err := r.ReadBytes(3); err != bytebuffers.ErrShortBuffer {
		t.Fatal("overread accepted")
	}
	if _, err := r.ReadBytes(-1); err != bytebuffers.ErrShortBuffer {
		t.Fatal("negative count accepted")
	}
}

func TestReaderSkip(t *testing.T) {
	r := bytebuffers.NewReader([]byte{1, 2, 3, 4})
	if err := r.Skip(3); err != nil {
		t.Fatal(err)
	}
	if c, _ := r.ReadByte(); c != 4 {
		t.Fatal("after skip", c)
	}
	if err := r.Skip(1); err != bytebuffers.ErrShortBuffer {
		t.Fatal("skip past end accepted")
	}
	if _, err := r.ReadByte(); err != bytebuffers.ErrShortBuffer {
		t.Fatal("read past end accepted")
	}
}
