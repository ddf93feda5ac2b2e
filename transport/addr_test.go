package transport_test

import (
	"context"
	"testing"

	"github.com/mrzaxaryan/tlsclient/transport"
)

func TestNormalizeHost(t *testing.T) {
	for _, tc := range []struct {
		host string
		want string
	}{
		{"example.com", "example.com"},
		{"EXAMPLE.com", "example.com"},
		{"bücher.example", "xn--bcher-kva.example"},
		{"192.0.2.1", "192.0.2.1"},
		{"2001:db8::1", "2001:db8::1"},
	} {
		got, err := transport.NormalizeHost(tc.host)
		if err != nil {
			t.Fatal(tc.host, err)
		}
		if got != tc.want {
			t.Fatalf("NormalizeHost(%q) = %q, want %q", tc.host, got, tc.want)
		}
	}

	if _, err := transport.NormalizeHost("exa mple.com"); err == nil {
		t.Fatal("invalid host accepted")
	}
}

func TestResolveLiterals(t *testing.T) {
	addrs, err := transport.Resolve(context.Background(), "192.0.2.7")
	if err != nil {
		t.Fatal(err)
	}
	if len(addrs) != 1 || addrs[0].Family != transport.IPv4 || addrs[0].String() != "192.0.2.7" {
		t.Fatal("v4 literal", addrs)
	}

	addrs, err = transport.Resolve(context.Background(), "2001:db8::7")
	if err != nil {
		t.Fatal(err)
	}
	if len(addrs) != 1 || addrs[0].Family != transport.IPv6 {
		t.Fatal("v6 literal", addrs)
	}
	if !addrs[0].IsValid() {
		t.Fatal("literal address reported invalid")
	}
}

func TestNewTCPValidation(t *testing.T) {
	if _, err := transport.NewTCP("", 443); err == nil {
		t.Fatal("empty host accepted")
	}
	if _, err := transport.NewTCP("example.com", 0); err == nil {
		t.Fatal("port 0 accepted")
	}
	if _, err := transport.NewTCP("example.com", 70000); err == nil {
		t.Fatal("out-of-range port accepted")
	}
	tcp, err := transport.NewTCP("example.com", 443, transport.WithNoDelay())
	if err != nil {
		t.Fatal(err)
	}
	if tcp.LocalAddr() != nil || tcp.RemoteAddr() != nil {
		t.Fatal("addresses before open")
	}
	if _, err := tcp.Read(make([]byte, 1)); err == nil {
		t.Fatal("read before open succeeded")
	}
	if err := tcp.Close(); err != nil {
		t.Fatal("close before open:", err)
	}
}
