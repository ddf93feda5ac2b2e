package tlsclient

import (
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"fmt"

	"github.com/brickingsoft/errors"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	TLS_AES_128_GCM_SHA256       uint16 = 0x1301
	TLS_AES_256_GCM_SHA384       uint16 = 0x1302
	TLS_CHACHA20_POLY1305_SHA256 uint16 = 0x1303
)

// cipherSuite describes a TLS 1.3 cipher suite: an AEAD and a hash for the
// key schedule and transcript.
type cipherSuite struct {
	id     uint16
	name   string
	keyLen int
	aead   func(key, fixedNonce []byte) cipher.AEAD
	hash   crypto.Hash
}

// cipherSuites is also the client's offer order. ChaCha20-Poly1305 leads; it
// is constant time everywhere and needs no AES hardware.
var cipherSuites = []*cipherSuite{
	{TLS_CHACHA20_POLY1305_SHA256, "TLS_CHACHA20_POLY1305_SHA256", 32, aeadChaCha20Poly1305, crypto.SHA256},
	{TLS_AES_128_GCM_SHA256, "TLS_AES_128_GCM_SHA256", 16, aeadAESGCM, crypto.SHA256},
	{TLS_AES_256_GCM_SHA384, "TLS_AES_256_GCM_SHA384", 32, aeadAESGCM, crypto.SHA384},
}

func cipherSuiteByID(id uint16) *cipherSuite {
	for _, suite := range cipherSuites {
		if suite.id == id {
			return suite
		}
	}
	return nil
}

// mutualCipherSuite returns the suite for id only when id is present in have.
func mutualCipherSuite(have []uint16, id uint16) *cipherSuite {
	for _, offered := range have {
		if offered == id {
			return cipherSuiteByID(id)
		}
	}
	return nil
}

// CipherSuiteName returns the standard name for the passed cipher suite ID,
// or a fallback representation of the ID value if the suite is unknown.
func CipherSuiteName(id uint16) string {
	if suite := cipherSuiteByID(id); suite != nil {
		return suite.name
	}
	return fmt.Sprintf("0x%04X", id)
}

const aeadNonceLength = 12

// Sequence numbers must not wrap within a key generation.
var errSeqWraparound = errors.Define("tls: sequence number wraparound")

func aeadChaCha20Poly1305(key, nonceMask []byte) cipher.AEAD {
	if len(nonceMask) != aeadNonceLength {
		panic("tls: internal error: wrong nonce length")
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		panic(err)
	}

	ret := &xorNonceAEAD{aead: aead}
	copy(ret.nonceMask[:], nonceMask)
	return ret
}

func aeadAESGCM(key, nonceMask []byte) cipher.AEAD {
	if len(nonceMask) != aeadNonceLength {
		panic("tls: internal error: wrong nonce length")
	}
	aes, err := aes.NewCipher(key)
	if err != nil {
		panic(err)
	}
	aead, err := cipher.NewGCM(aes)
	if err != nil {
		panic(err)
	}

	ret := &xorNonceAEAD{aead: aead}
	copy(ret.nonceMask[:], nonceMask)
	return ret
}

// xorNonceAEAD wraps an AEAD by XORing the 8-byte record sequence number into
// the tail of a fixed 12-byte nonce mask, the TLS 1.3 per-record nonce
// construction from RFC 8446, Section 5.3.
type xorNonceAEAD struct {
	nonceMask [aeadNonceLength]byte
	aead      cipher.AEAD
}

func (f *xorNonceAEAD) NonceSize() int { return 8 }

func (f *xorNonceAEAD) Overhead() int { return f.aead.Overhead() }

func (f *xorNonceAEAD) Seal(out, nonce, plaintext, additionalData []byte) []byte {
	for i, b := range nonce {
		f.nonceMask[4+i] ^= b
	}
	result := f.aead.Seal(out, f.nonceMask[:], plaintext, additionalData)
	for i, b := range nonce {
		f.nonceMask[4+i] ^= b
	}
	return result
}

func (f *xorNonceAEAD) Open(out, nonce, ciphertext, additionalData []byte) ([]byte, error) {
	for i, b := range nonce {
		f.nonceMask[4+i] ^= b
	}
	result, err := f.aead.Open(out, f.nonceMask[:], ciphertext, additionalData)
	for i, b := range nonce {
		f.nonceMask[4+i] ^= b
	}
	return result, err
}

// halfConn holds one direction's record protection state: the AEAD keyed for
// the current generation, the traffic secret it was derived from, and the
// record sequence number. The zero value is the unprotected state.
type halfConn struct {
	suite         *cipherSuite
	aead          cipher.AEAD
	trafficSecret []byte
	seq           uint64
}

func (hc *halfConn) active() bool { return hc.aead != nil }

// setTrafficSecret installs a new key generation. The sequence number resets;
// it never resets within a generation.
func (hc *halfConn) setTrafficSecret(suite *cipherSuite, secret []byte) {
	key, iv := suite.trafficKey(secret)
	hc.suite = suite
	hc.aead = suite.aead(key, iv)
	hc.trafficSecret = secret
	hc.seq = 0
}

// rotate advances to the next key generation per RFC 8446, Section 7.2.
func (hc *halfConn) rotate() {
	hc.setTrafficSecret(hc.suite, hc.suite.nextTrafficSecret(hc.trafficSecret))
}

func (hc *halfConn) incSeq() error {
	hc.seq++
	if hc.seq == 0 {
		return errSeqWraparound
	}
	return nil
}

func (hc *halfConn) nonce() [8]byte {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], hc.seq)
	return n
}

// seal encrypts plaintext in place semantics aside, appending to out, with
// header as additional data, and advances the sequence number.
func (hc *halfConn) seal(out, plaintext, header []byte) ([]byte, error) {
	n := hc.nonce()
	sealed := hc.aead.Seal(out, n[:], plaintext, header)
	if err := hc.incSeq(); err != nil {
		return nil, err
	}
	return sealed, nil
}

// open decrypts ciphertext with header as additional data and advances the
// sequence number. A failed open leaves the sequence untouched; the session
// is torn down anyway.
func (hc *halfConn) open(out, ciphertext, header []byte) ([]byte, error) {
	n := hc.nonce()
	plaintext, err := hc.aead.Open(out, n[:], ciphertext, header)
	if err != nil {
		return nil, err
	}
	if err := hc.incSeq(); err != nil {
		return nil, err
	}
	return plaintext, nil
}

// zeroize clears key material when the session ends.
func (hc *halfConn) zeroize() {
	for i := range hc.trafficSecret {
		hc.trafficSecret[i] = 0
	}
	hc.trafficSecret = nil
	hc.aead = nil
	hc.suite = nil
	hc.seq = 0
}
