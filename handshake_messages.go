package tlsclient

import (
	"golang.org/x/crypto/cryptobyte"
)

const (
	typeClientHello         uint8 = 1
	typeServerHello         uint8 = 2
	typeNewSessionTicket    uint8 = 4
	typeEncryptedExtensions uint8 = 8
	typeCertificate         uint8 = 11
	typeCertificateRequest  uint8 = 13
	typeCertificateVerify   uint8 = 15
	typeFinished            uint8 = 20
	typeKeyUpdate           uint8 = 24
)

const (
	extensionServerName          uint16 = 0
	extensionSupportedCurves     uint16 = 10
	extensionSupportedPoints     uint16 = 11
	extensionSignatureAlgorithms uint16 = 13
	extensionALPN                uint16 = 16
	extensionSupportedVersions   uint16 = 43
	extensionKeyShare            uint16 = 51
)

// SignatureScheme identifies a signature algorithm supported for
// CertificateVerify. See RFC 8446, Section 4.2.3.
type SignatureScheme uint16

const (
	PSSWithSHA256          SignatureScheme = 0x0804
	PSSWithSHA384          SignatureScheme = 0x0805
	PSSWithSHA512          SignatureScheme = 0x0806
	ECDSAWithP256AndSHA256 SignatureScheme = 0x0403
	ECDSAWithP384AndSHA384 SignatureScheme = 0x0503
	ECDSAWithP521AndSHA512 SignatureScheme = 0x0603
	Ed25519                SignatureScheme = 0x0807
)

// helloRetryRequestRandom is the sentinel ServerHello.random that marks a
// HelloRetryRequest. See RFC 8446, Section 4.1.3.
var helloRetryRequestRandom = []byte{
	0xCF, 0x21, 0xAD, 0x74, 0xE5, 0x9A, 0x61, 0x11,
	0xBE, 0x1D, 0x8C, 0x02, 0x1E, 0x65, 0xB8, 0x91,
	0xC2, 0xA2, 0x11, 0x16, 0x7A, 0xBB, 0x8C, 0x5E,
	0x07, 0x9E, 0x09, 0xE2, 0xC8, 0xA8, 0x33, 0x9C,
}

type keyShare struct {
	group CurveID
	data  []byte
}

type clientHelloMsg struct {
	random                       []byte
	sessionID                    []byte
	cipherSuites                 []uint16
	serverName                   string
	supportedCurves              []CurveID
	supportedSignatureAlgorithms []SignatureScheme
	supportedVersions            []uint16
	alpnProtocols                []string
	keyShares                    []keyShare
}

// marshal serializes the ClientHello body, without the 4-byte handshake
// message header.
func (m *clientHelloMsg) marshal() ([]byte, error) {
	var b cryptobyte.Builder
	b.AddUint16(VersionTLS12)
	b.AddBytes(m.random)
	b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes(m.sessionID)
	})
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		for _, suite := range m.cipherSuites {
			b.AddUint16(suite)
		}
	})
	// compression_methods: null only
	b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddUint8(0)
	})

	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		if m.serverName != "" {
			b.AddUint16(extensionServerName)
			b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
				b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
					b.AddUint8(0) // name_type host_name
					b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
						b.AddBytes([]byte(m.serverName))
					})
				})
			})
		}
		b.AddUint16(extensionSupportedCurves)
		b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
			b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
				for _, curve := range m.supportedCurves {
					b.AddUint16(uint16(curve))
				}
			})
		})
		b.AddUint16(extensionSupportedPoints)
		b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
			b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
				b.AddUint8(0) // uncompressed
			})
		})
		b.AddUint16(extensionSignatureAlgorithms)
		b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
			b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
				for _, sigAlgo := range m.supportedSignatureAlgorithms {
					b.AddUint16(uint16(sigAlgo))
				}
			})
		})
		if len(m.alpnProtocols) > 0 {
			b.AddUint16(extensionALPN)
			b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
				b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
					for _, proto := range m.alpnProtocols {
						b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
							b.AddBytes([]byte(proto))
						})
					}
				})
			})
		}
		b.AddUint16(extensionSupportedVersions)
		b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
			b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
				for _, vers := range m.supportedVersions {
					b.AddUint16(vers)
				}
			})
		})
		b.AddUint16(extensionKeyShare)
		b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
			b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
				for _, ks := range m.keyShares {
					b.AddUint16(uint16(ks.group))
					b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
						b.AddBytes(ks.data)
					})
				}
			})
		})
	})

	return b.Bytes()
}

type serverHelloMsg struct {
	random            []byte
	sessionID         []byte
	cipherSuite       uint16
	supportedVersion  uint16
	serverShare       keyShare
	helloRetryRequest bool
}

func (m *serverHelloMsg) unmarshal(data []byte) bool {
	s := cryptobyte.String(data)

	var legacyVersion uint16
	if !s.ReadUint16(&legacyVersion) || legacyVersion != VersionTLS12 {
		return false
	}
	m.random = make([]byte, 32)
	if !s.ReadBytes(&m.random, 32) {
		return false
	}
	var sessionID cryptobyte.String
	if !s.ReadUint8LengthPrefixed(&sessionID) {
		return false
	}
	m.sessionID = []byte(sessionID)
	var compression uint8
	if !s.ReadUint16(&m.cipherSuite) || !s.ReadUint8(&compression) || compression != 0 {
		return false
	}
	m.helloRetryRequest = string(m.random) == string(helloRetryRequestRandom)

	if s.Empty() {
		// Extension-free ServerHello means TLS 1.2 or below.
		return true
	}
	var extensions cryptobyte.String
	if !s.ReadUint16LengthPrefixed(&extensions) || !s.Empty() {
		return false
	}
	for !extensions.Empty() {
		var extension uint16
		var extData cryptobyte.String
		if !extensions.ReadUint16(&extension) ||
			!extensions.ReadUint16LengthPrefixed(&extData) {
			return false
		}
		switch extension {
		case extensionSupportedVersions:
			if !extData.ReadUint16(&m.supportedVersion) {
				return false
			}
		case extensionKeyShare:
			if m.helloRetryRequest {
				// In a HelloRetryRequest the extension carries only the
				// requested group.
				var group uint16
				if !extData.ReadUint16(&group) {
					return false
				}
				m.serverShare.group = CurveID(group)
				continue
			}
			var group uint16
			var share cryptobyte.String
			if !extData.ReadUint16(&group) ||
				!extData.ReadUint16LengthPrefixed(&share) {
				return false
			}
			m.serverShare = keyShare{group: CurveID(group), data: []byte(share)}
		default:
			// unknown extensions in ServerHello are skipped
		}
	}
	return true
}

type encryptedExtensionsMsg struct {
	alpnProtocol string
}

func (m *encryptedExtensionsMsg) unmarshal(data []byte) bool {
	s := cryptobyte.String(data)

	var extensions cryptobyte.String
	if !s.ReadUint16LengthPrefixed(&extensions) || !s.Empty() {
		return false
	}
	for !extensions.Empty() {
		var extension uint16
		var extData cryptobyte.String
		if !extensions.ReadUint16(&extension) ||
			!extensions.ReadUint16LengthPrefixed(&extData) {
			return false
		}
		switch extension {
		case extensionALPN:
			var protoList cryptobyte.String
			if !extData.ReadUint16LengthPrefixed(&protoList) || protoList.Empty() {
				return false
			}
			var proto cryptobyte.String
			if !protoList.ReadUint8LengthPrefixed(&proto) ||
				proto.Empty() || !protoList.Empty() {
				return false
			}
			m.alpnProtocol = string(proto)
		default:
			// unknown extensions are skipped
		}
	}
	return true
}

type certificateMsg13 struct {
	certificates [][]byte
}

func (m *certificateMsg13) unmarshal(data []byte) bool {
	s := cryptobyte.String(data)

	var context cryptobyte.String
	if !s.ReadUint8LengthPrefixed(&context) || !context.Empty() {
		// server certificates carry an empty certificate_request_context
		return false
	}
	var certList cryptobyte.String
	if !s.ReadUint24LengthPrefixed(&certList) || !s.Empty() {
		return false
	}
	for !certList.Empty() {
		var certData cryptobyte.String
		var extensions cryptobyte.String
		if !certList.ReadUint24LengthPrefixed(&certData) ||
			!certList.ReadUint16LengthPrefixed(&extensions) {
			return false
		}
		m.certificates = append(m.certificates, []byte(certData))
	}
	return len(m.certificates) > 0
}

type certificateVerifyMsg struct {
	signatureAlgorithm SignatureScheme
	signature          []byte
}

func (m *certificateVerifyMsg) unmarshal(data []byte) bool {
	s := cryptobyte.String(data)

	var sigAlgo uint16
	var signature cryptobyte.String
	if !s.ReadUint16(&sigAlgo) ||
		!s.ReadUint16LengthPrefixed(&signature) || !s.Empty() {
		return false
	}
	m.signatureAlgorithm = SignatureScheme(sigAlgo)
	m.signature = []byte(signature)
	return true
}

type finishedMsg struct {
	verifyData []byte
}

func (m *finishedMsg) marshal() ([]byte, error) {
	return m.verifyData, nil
}

func (m *finishedMsg) unmarshal(data []byte) bool {
	m.verifyData = data
	return len(data) > 0
}

const (
	keyUpdateNotRequested uint8 = 0
	keyUpdateRequested    uint8 = 1
)

type keyUpdateMsg struct {
	updateRequested bool
}

func (m *keyUpdateMsg) marshal() ([]byte, error) {
	request := keyUpdateNotRequested
	if m.updateRequested {
		request = keyUpdateRequested
	}
	return []byte{request}, nil
}

func (m *keyUpdateMsg) unmarshal(data []byte) bool {
	if len(data) != 1 {
		return false
	}
	switch data[0] {
	case keyUpdateNotRequested:
	case keyUpdateRequested:
		m.updateRequested = true
	default:
		return false
	}
	return true
}
