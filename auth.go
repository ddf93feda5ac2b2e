package tlsclient

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"hash"

	"github.com/brickingsoft/errors"
)

// serverSignatureContext is the context string for the server
// CertificateVerify signed content, including the separator NUL. See RFC
// 8446, Section 4.4.3.
const serverSignatureContext = "TLS 1.3, server CertificateVerify\x00"

var signaturePadding = []byte{
	0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20,
	0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20,
	0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20,
	0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20,
	0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20,
	0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20,
	0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20,
	0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20,
}

// signedMessage builds the content that is signed in CertificateVerify: 64
// spaces, the context string, and the transcript hash.
func signedMessage(sigHash crypto.Hash, context string, transcript hash.Hash) []byte {
	h := sigHash.New()
	h.Write(signaturePadding)
	h.Write([]byte(context))
	h.Write(transcript.Sum(nil))
	return h.Sum(nil)
}

type signatureType uint8

const (
	signatureECDSA signatureType = iota + 1
	signatureEd25519
	signatureRSAPSS
)

// typeAndHashFromSignatureScheme returns the signature type and the hash for
// the supported CertificateVerify schemes.
func typeAndHashFromSignatureScheme(scheme SignatureScheme) (signatureType, crypto.Hash, error) {
	switch scheme {
	case ECDSAWithP256AndSHA256:
		return signatureECDSA, crypto.SHA256, nil
	case ECDSAWithP384AndSHA384:
		return signatureECDSA, crypto.SHA384, nil
	case ECDSAWithP521AndSHA512:
		return signatureECDSA, crypto.SHA512, nil
	case Ed25519:
		return signatureEd25519, crypto.Hash(0), nil
	case PSSWithSHA256:
		return signatureRSAPSS, crypto.SHA256, nil
	case PSSWithSHA384:
		return signatureRSAPSS, crypto.SHA384, nil
	case PSSWithSHA512:
		return signatureRSAPSS, crypto.SHA512, nil
	default:
		return 0, 0, errors.New("tls: unsupported signature algorithm")
	}
}

// supportedSignatureAlgorithms is the client's signature_algorithms offer.
var supportedSignatureAlgorithms = []SignatureScheme{
	ECDSAWithP256AndSHA256,
	ECDSAWithP384AndSHA384,
	ECDSAWithP521AndSHA512,
	Ed25519,
	PSSWithSHA256,
	PSSWithSHA384,
	PSSWithSHA512,
}

// verifyHandshakeSignature checks the CertificateVerify signature over signed
// with the peer certificate's public key.
func verifyHandshakeSignature(sigType signatureType, pubkey crypto.PublicKey, sigHash crypto.Hash, signed, sig []byte) error {
	switch sigType {
	case signatureECDSA:
		pubKey, ok := pubkey.(*ecdsa.PublicKey)
		if !ok {
			return errors.New("tls: expected an ECDSA public key")
		}
		if !ecdsa.VerifyASN1(pubKey, signed, sig) {
			return errors.New("tls: ECDSA verification failure")
		}
	case signatureEd25519:
		pubKey, ok := pubkey.(ed25519.PublicKey)
		if !ok {
			return errors.New("tls: expected an Ed25519 public key")
		}
		if !ed25519.Verify(pubKey, signed, sig) {
			return errors.New("tls: Ed25519 verification failure")
		}
	case signatureRSAPSS:
		pubKey, ok := pubkey.(*rsa.PublicKey)
		if !ok {
			return errors.New("tls: expected an RSA public key")
		}
		signOpts := &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash, Hash: sigHash}
		if err := rsa.VerifyPSS(pubKey, sigHash, signed, sig, signOpts); err != nil {
			return errors.New("tls: RSA-PSS verification failure", errors.WithWrap(err))
		}
	default:
		return errors.New("tls: unsupported signature type")
	}
	return nil
}

// verifyServerCertificate parses the server certificate chain and, unless
// disabled, validates it against the configured roots and server name.
func (c *Client) verifyServerCertificate(certificates [][]byte) error {
	certs := make([]*x509.Certificate, len(certificates))
	for i, asn1Data := range certificates {
		cert, err := x509.ParseCertificate(asn1Data)
		if err != nil {
			_ = c.sendAlert(alertBadCertificate)
			return errors.New("tls: failed to parse certificate from server", errors.WithWrap(err))
		}
		certs[i] = cert
	}
	c.peerCertificates = certs

	if c.conf.InsecureSkipVerify {
		return nil
	}

	opts := x509.VerifyOptions{
		Roots:         c.conf.RootCAs,
		DNSName:       c.conf.ServerName,
		Intermediates: x509.NewCertPool(),
		CurrentTime:   c.conf.time(),
	}
	for _, cert := range certs[1:] {
		opts.Intermediates.AddCert(cert)
	}
	chains, err := certs[0].Verify(opts)
	if err != nil {
		_ = c.sendAlert(alertBadCertificate)
		return errors.New("tls: certificate verification failed", errors.WithWrap(err))
	}
	c.verifiedChains = chains
	return nil
}
