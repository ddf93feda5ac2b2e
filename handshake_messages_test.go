package tlsclient

import (
	"bytes"
	"testing"

	"golang.org/x/crypto/cryptobyte"
)

func testClientHello() *clientHelloMsg {
	return &clientHelloMsg{
		random:                       bytes.Repeat([]byte{0xaa}, 32),
		sessionID:                    bytes.Repeat([]byte{0xbb}, 32),
		cipherSuites:                 defaultCipherSuites(),
		serverName:                   "example.com",
		supportedCurves:              defaultCurvePreferences(),
		supportedSignatureAlgorithms: supportedSignatureAlgorithms,
		supportedVersions:            []uint16{VersionTLS13},
		alpnProtocols:                []string{"h2", "http/1.1"},
		keyShares: []keyShare{
			{group: X25519, data: bytes.Repeat([]byte{0xcc}, 32)},
		},
	}
}

// parseExtensions scans a marshalled ClientHello body and returns the raw
// data per extension id.
func parseClientHelloExtensions(t *testing.T, body []byte) map[uint16][]byte {
	t.Helper()
	s := cryptobyte.String(body)
	var legacyVersion uint16
	if !s.ReadUint16(&legacyVersion) || legacyVersion != VersionTLS12 {
		t.Fatal("legacy version")
	}
	if !s.Skip(32) {
		t.Fatal("random")
	}
	var sessionID, suites, compression cryptobyte.String
	if !s.ReadUint8LengthPrefixed(&sessionID) || len(sessionID) != 32 {
		t.Fatal("session id")
	}
	if !s.ReadUint16LengthPrefixed(&suites) {
		t.Fatal("cipher suites")
	}
	if !s.ReadUint8LengthPrefixed(&compression) || !bytes.Equal(compression, []byte{0}) {
		t.Fatal("compression methods")
	}
	var extensions cryptobyte.String
	if !s.ReadUint16LengthPrefixed(&extensions) || !s.Empty() {
		t.Fatal("extensions block")
	}
	parsed := map[uint16][]byte{}
	for !extensions.Empty() {
		var id uint16
		var data cryptobyte.String
		if !extensions.ReadUint16(&id) || !extensions.ReadUint16LengthPrefixed(&data) {
			t.Fatal("extension framing")
		}
		parsed[id] = data
	}
	return parsed
}

func TestClientHelloMarshalStructure(t *testing.T) {
	body, err := testClientHello().marshal()
	if err != nil {
		t.Fatal(err)
	}
	exts := parseClientHelloExtensions(t, body)

	for _, id := range []uint16{
		extensionServerName,
		extensionSupportedCurves,
		extensionSupportedPoints,
		extensionSignatureAlgorithms,
		extensionALPN,
		extensionSupportedVersions,
		extensionKeyShare,
	} {
		if _, ok := exts[id]; !ok {
			t.Fatal("missing extension", id)
		}
	}

	// supported_versions must offer exactly TLS 1.3
	sv := cryptobyte.String(exts[extensionSupportedVersions])
	var versions cryptobyte.String
	if !sv.ReadUint8LengthPrefixed(&versions) || len(versions) != 2 {
		t.Fatal("supported_versions framing")
	}
	if got := uint16(versions[0])<<8 | uint16(versions[1]); got != VersionTLS13 {
		t.Fatalf("supported version %04x", got)
	}

	// SNI carries the host name
	sni := cryptobyte.String(exts[extensionServerName])
	var nameList cryptobyte.String
	if !sni.ReadUint16LengthPrefixed(&nameList) {
		t.Fatal("sni framing")
	}
	var nameType uint8
	var name cryptobyte.String
	if !nameList.ReadUint8(&nameType) || nameType != 0 ||
		!nameList.ReadUint16LengthPrefixed(&name) {
		t.Fatal("sni name framing")
	}
	if string(name) != "example.com" {
		t.Fatal("sni name", string(name))
	}
}

func TestClientHelloOmitsEmptyOptionalExtensions(t *testing.T) {
	hello := testClientHello()
	hello.serverName = ""
	hello.alpnProtocols = nil
	body, err := hello.marshal()
	if err != nil {
		t.Fatal(err)
	}
	exts := parseClientHelloExtensions(t, body)
	if _, ok := exts[extensionServerName]; ok {
		t.Fatal("SNI present without a server name")
	}
	if _, ok := exts[extensionALPN]; ok {
		t.Fatal("ALPN present without protocols")
	}
}

func buildServerHello(random []byte, sessionID []byte, suite uint16, version uint16, share keyShare) []byte {
	var b cryptobyte.Builder
	b.AddUint16(VersionTLS12)
	b.AddBytes(random)
	b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) { b.AddBytes(sessionID) })
	b.AddUint16(suite)
	b.AddUint8(0)
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddUint16(extensionSupportedVersions)
		b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) { b.AddUint16(version) })
		if share.group != 0 {
			b.AddUint16(extensionKeyShare)
			b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
				b.AddUint16(uint16(share.group))
				b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) { b.AddBytes(share.data) })
			})
		}
	})
	out, err := b.Bytes()
	if err != nil {
		panic(err)
	}
	return out
}

func TestServerHelloUnmarshal(t *testing.T) {
	random := bytes.Repeat([]byte{0x11}, 32)
	sessionID := bytes.Repeat([]byte{0x22}, 32)
	share := keyShare{group: X25519, data: bytes.Repeat([]byte{0x33}, 32)}
	data := buildServerHello(random, sessionID, TLS_CHACHA20_POLY1305_SHA256, VersionTLS13, share)

	var m serverHelloMsg
	if !m.unmarshal(data) {
		t.Fatal("unmarshal failed")
	}
	if m.helloRetryRequest {
		t.Fatal("false hello retry request")
	}
	if m.cipherSuite != TLS_CHACHA20_POLY1305_SHA256 {
		t.Fatalf("cipher suite %04x", m.cipherSuite)
	}
	if m.supportedVersion != VersionTLS13 {
		t.Fatalf("supported version %04x", m.supportedVersion)
	}
	if m.serverShare.group != X25519 || !bytes.Equal(m.serverShare.data, share.data) {
		t.Fatal("key share")
	}
	if !bytes.Equal(m.sessionID, sessionID) {
		t.Fatal("session id echo")
	}
}

func TestServerHelloDetectsHelloRetryRequest(t *testing.T) {
	data := buildServerHello(helloRetryRequestRandom, nil, TLS_AES_128_GCM_SHA256, VersionTLS13, keyShare{})
	var m serverHelloMsg
	if !m.unmarshal(data) {
		t.Fatal("unmarshal failed")
	}
	if !m.helloRetryRequest {
		t.Fatal("hello retry request not detected")
	}
}

func TestServerHelloRejectsTruncated(t *testing.T) {
	data := buildServerHello(bytes.Repeat([]byte{0x11}, 32), nil, TLS_AES_128_GCM_SHA256, VersionTLS13, keyShare{})
	for i := 1; i < len(data); i++ {
		var m serverHelloMsg
		if m.unmarshal(data[:i]) && i < 38 {
			t.Fatal("truncated server hello accepted at", i)
		}
	}
}

func TestEncryptedExtensionsALPN(t *testing.T) {
	var b cryptobyte.Builder
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddUint16(extensionALPN)
		b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
			b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
				b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
					b.AddBytes([]byte("h2"))
				})
			})
		})
		// an unknown extension must be skipped
		b.AddUint16(0x7a7a)
		b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
			b.AddBytes([]byte{1, 2, 3})
		})
	})
	data, err := b.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	var m encryptedExtensionsMsg
	if !m.unmarshal(data) {
		t.Fatal("unmarshal failed")
	}
	if m.alpnProtocol != "h2" {
		t.Fatal("alpn", m.alpnProtocol)
	}
}

func TestCertificateMsgUnmarshal(t *testing.T) {
	certOne := []byte{0x30, 0x01, 0x02}
	certTwo := []byte{0x30, 0x03, 0x04, 0x05}
	var b cryptobyte.Builder
	b.AddUint8(0) // empty certificate_request_context
	b.AddUint24LengthPrefixed(func(b *cryptobyte.Builder) {
		for _, cert := range [][]byte{certOne, certTwo} {
			b.AddUint24LengthPrefixed(func(b *cryptobyte.Builder) { b.AddBytes(cert) })
			b.AddUint16(0) // no extensions
		}
	})
	data, err := b.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	var m certificateMsg13
	if !m.unmarshal(data) {
		t.Fatal("unmarshal failed")
	}
	if len(m.certificates) != 2 ||
		!bytes.Equal(m.certificates[0], certOne) ||
		!bytes.Equal(m.certificates[1], certTwo) {
		t.Fatal("certificate list")
	}

	var empty certificateMsg13
	if empty.unmarshal([]byte{0, 0, 0, 0}) {
		t.Fatal("empty certificate list accepted")
	}
}

func TestCertificateVerifyUnmarshal(t *testing.T) {
	sig := bytes.Repeat([]byte{0x44}, 64)
	var b cryptobyte.Builder
	b.AddUint16(uint16(ECDSAWithP256AndSHA256))
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) { b.AddBytes(sig) })
	data, err := b.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	var m certificateVerifyMsg
	if !m.unmarshal(data) {
		t.Fatal("unmarshal failed")
	}
	if m.signatureAlgorithm != ECDSAWithP256AndSHA256 || !bytes.Equal(m.signature, sig) {
		t.Fatal("fields")
	}
	if m.unmarshal(append(data, 0)) {
		t.Fatal("trailing data accepted")
	}
}

func TestKeyUpdateRoundTrip(t *testing.T) {
	for _, requested := range []bool{false, true} {
		out, err := (&keyUpdateMsg{updateRequested: requested}).marshal()
		if err != nil {
			t.Fatal(err)
		}
		var m keyUpdateMsg
		if !m.unmarshal(out) {
			t.Fatal("unmarshal failed")
		}
		if m.updateRequested != requested {
			t.Fatal("request flag lost")
		}
	}
	var m keyUpdateMsg
	if m.unmarshal([]byte{2}) {
		t.Fatal("invalid request type accepted")
	}
	if m.unmarshal(nil) {
		t.Fatal("empty body accepted")
	}
}
