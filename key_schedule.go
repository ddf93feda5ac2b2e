package tlsclient

import (
	"crypto/ecdh"
	"crypto/hmac"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"fmt"
	"hash"
	"io"

	"github.com/brickingsoft/errors"
	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/hkdf"
)

// This file contains the functions necessary to compute the TLS 1.3 key
// schedule. See RFC 8446, Section 7.

// CurveID is the type of a TLS identifier for an elliptic curve. See
// https://www.iana.org/assignments/tls-parameters/tls-parameters.xml#tls-parameters-8.
type CurveID uint16

const (
	CurveP256 CurveID = 23
	CurveP384 CurveID = 24
	X25519    CurveID = 29
)

func (id CurveID) String() string {
	switch id {
	case CurveP256:
		return "P-256"
	case CurveP384:
		return "P-384"
	case X25519:
		return "X25519"
	default:
		return fmt.Sprintf("CurveID(%d)", uint16(id))
	}
}

func curveForCurveID(id CurveID) (ecdh.Curve, bool) {
	switch id {
	case X25519:
		return ecdh.X25519(), true
	case CurveP256:
		return ecdh.P256(), true
	case CurveP384:
		return ecdh.P384(), true
	default:
		return nil, false
	}
}

// generateECDHEKey returns a PrivateKey that implements Diffie-Hellman
// according to RFC 8446, Section 4.2.8.2.
func generateECDHEKey(rand io.Reader, curveID CurveID) (*ecdh.PrivateKey, error) {
	curve, ok := curveForCurveID(curveID)
	if !ok {
		return nil, errors.New("tls: internal error: unsupported curve")
	}
	return curve.GenerateKey(rand)
}

// keySharePrivateKeys holds one generated ECDHE key per offered group.
type keySharePrivateKeys struct {
	curveID CurveID
	ecdhe   *ecdh.PrivateKey
}

const (
	clientHandshakeTrafficLabel   = "c hs traffic"
	serverHandshakeTrafficLabel   = "s hs traffic"
	clientApplicationTrafficLabel = "c ap traffic"
	serverApplicationTrafficLabel = "s ap traffic"
	trafficUpdateLabel            = "traffic upd"
)

// expandLabel implements HKDF-Expand-Label from RFC 8446, Section 7.1.
func (suite *cipherSuite) expandLabel(secret []byte, label string, context []byte, length int) []byte {
	var hkdfLabel cryptobyte.Builder
	hkdfLabel.AddUint16(uint16(length))
	hkdfLabel.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes([]byte("tls13 "))
		b.AddBytes([]byte(label))
	})
	hkdfLabel.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes(context)
	})
	hkdfLabelBytes, err := hkdfLabel.Bytes()
	if err != nil {
		// The labels are fixed size and the context is a computed hash, so
		// this is unreachable outside of development.
		panic(fmt.Errorf("failed to construct HKDF label: %s", err))
	}
	out := make([]byte, length)
	n, err := hkdf.Expand(suite.hash.New, secret, hkdfLabelBytes).Read(out)
	if err != nil || n != length {
		panic("tls: HKDF-Expand-Label invocation failed unexpectedly")
	}
	return out
}

// deriveSecret implements Derive-Secret from RFC 8446, Section 7.1.
func (suite *cipherSuite) deriveSecret(secret []byte, label string, transcript hash.Hash) []byte {
	if transcript == nil {
		transcript = suite.hash.New()
	}
	return suite.expandLabel(secret, label, transcript.Sum(nil), suite.hash.Size())
}

// extract implements HKDF-Extract with the cipher suite hash.
func (suite *cipherSuite) extract(newSecret, currentSecret []byte) []byte {
	if newSecret == nil {
		newSecret = make([]byte, suite.hash.Size())
	}
	return hkdf.Extract(suite.hash.New, newSecret, currentSecret)
}

// nextTrafficSecret generates the next traffic secret, given the current one,
// according to RFC 8446, Section 7.2.
func (suite *cipherSuite) nextTrafficSecret(trafficSecret []byte) []byte {
	return suite.expandLabel(trafficSecret, trafficUpdateLabel, nil, suite.hash.Size())
}

// trafficKey generates traffic keys according to RFC 8446, Section 7.3.
func (suite *cipherSuite) trafficKey(trafficSecret []byte) (key, iv []byte) {
	key = suite.expandLabel(trafficSecret, "key", nil, suite.keyLen)
	iv = suite.expandLabel(trafficSecret, "iv", nil, aeadNonceLength)
	return
}

// finishedHash generates the Finished verify_data according to RFC 8446,
// Section 4.4.4.
func (suite *cipherSuite) finishedHash(baseKey []byte, transcript hash.Hash) []byte {
	finishedKey := suite.expandLabel(baseKey, "finished", nil, suite.hash.Size())
	verifyData := hmac.New(suite.hash.New, finishedKey)
	verifyData.Write(transcript.Sum(nil))
	return verifyData.Sum(nil)
}
