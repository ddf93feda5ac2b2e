package tlsclient

import (
	"context"
	"crypto/ecdh"
	"crypto/hmac"
	"io"
	"net"

	"github.com/brickingsoft/errors"
	"github.com/mrzaxaryan/tlsclient/pkg/bytebuffers"
	"github.com/mrzaxaryan/tlsclient/transport"
)

// maxHandshakeMessage bounds a reassembled handshake message; certificate
// chains routinely span multiple records.
const maxHandshakeMessage = 65536

// clientHandshake is the handshake-scoped state, discarded once the session
// is established.
type clientHandshake struct {
	hello        *clientHelloMsg
	helloBytes   []byte
	keyShareKeys []keySharePrivateKeys

	handshakeSecret []byte
	masterSecret    []byte
	clientHsSecret  []byte
	serverHsSecret  []byte
}

func (hs *clientHandshake) zeroize() {
	wipe := func(p []byte) {
		for i := range p {
			p[i] = 0
		}
	}
	wipe(hs.handshakeSecret)
	wipe(hs.masterSecret)
	wipe(hs.clientHsSecret)
	wipe(hs.serverHsSecret)
}

// handshake drives the client through the TLS 1.3 flight exchange. On return
// with nil error the application keys are installed in both directions.
func (c *Client) handshake(ctx context.Context) error {
	if err := c.sendClientHello(); err != nil {
		return err
	}
	c.transition(stateAwaitServerHello)

	for c.state != stateEstablished {
		if err := ctx.Err(); err != nil {
			return err
		}
		msgType, raw, body, err := c.readHandshakeMessage()
		if err != nil {
			return err
		}

		switch c.state {
		case stateAwaitServerHello:
			err = c.processServerHello(msgType, raw, body)
		case stateAwaitEncryptedExtensions:
			err = c.processEncryptedExtensions(msgType, raw, body)
		case stateAwaitCertificate:
			err = c.processCertificate(msgType, raw, body)
		case stateAwaitCertVerify:
			err = c.processCertificateVerify(msgType, raw, body)
		case stateAwaitFinished:
			err = c.processServerFinished(msgType, raw, body)
		default:
			err = errors.New("tls: handshake in unexpected state " + c.state.String())
		}
		if err != nil {
			return err
		}
	}

	c.hs.zeroize()
	c.hs = nil
	return nil
}

func (c *Client) transition(next handshakeState) {
	c.log.Debug().
		Str("from", c.state.String()).
		Str("to", next.String()).
		Msg("handshake transition")
	c.state = next
}

func (c *Client) sendClientHello() error {
	conf := c.conf

	random := make([]byte, 32)
	if _, err := io.ReadFull(conf.rand(), random); err != nil {
		return errors.New("tls: short read from random source", errors.WithWrap(err))
	}
	// non-empty legacy_session_id for middlebox compatibility, RFC 8446
	// Appendix D.4
	sessionID := make([]byte, 32)
	if _, err := io.ReadFull(conf.rand(), sessionID); err != nil {
		return errors.New("tls: short read from random source", errors.WithWrap(err))
	}

	hello := &clientHelloMsg{
		random:                       random,
		sessionID:                    sessionID,
		cipherSuites:                 conf.cipherSuites(),
		supportedCurves:              conf.curvePreferences(),
		supportedSignatureAlgorithms: supportedSignatureAlgorithms,
		supportedVersions:            []uint16{VersionTLS13},
		alpnProtocols:                conf.NextProtos,
	}
	if conf.ServerName != "" {
		sni, err := c.sniServerName()
		if err != nil {
			return err
		}
		hello.serverName = sni
	}

	keyShareKeys := make([]keySharePrivateKeys, 0, len(hello.supportedCurves))
	for _, curve := range hello.supportedCurves {
		key, err := generateECDHEKey(conf.rand(), curve)
		if err != nil {
			return err
		}
		keyShareKeys = append(keyShareKeys, keySharePrivateKeys{curveID: curve, ecdhe: key})
		hello.keyShares = append(hello.keyShares, keyShare{group: curve, data: key.PublicKey().Bytes()})
	}

	body, err := hello.marshal()
	if err != nil {
		return errors.New("tls: client hello marshal failed", errors.WithWrap(err))
	}
	full := make([]byte, 0, 4+len(body))
	full = append(full, typeClientHello, byte(len(body)>>16), byte(len(body)>>8), byte(len(body)))
	full = append(full, body...)

	c.hs = &clientHandshake{
		hello:        hello,
		helloBytes:   full,
		keyShareKeys: keyShareKeys,
	}
	return c.sendRecord(recordTypeHandshake, full)
}

// readHandshakeMessage reassembles the next handshake message from the
// record stream. Messages may be fragmented across records or coalesced
// within one; ChangeCipherSpec records interleave freely and are dropped.
func (c *Client) readHandshakeMessage() (msgType uint8, raw, body []byte, err error) {
	for {
		if c.handBuf.Len() >= 4 {
			hdr := bytebuffers.NewReader(c.handBuf.Bytes())
			typ, _ := hdr.ReadByte()
			size, _ := hdr.ReadUint24()
			length := int(size)
			if length > maxHandshakeMessage {
				_ = c.sendAlert(alertInternalError)
				return 0, nil, nil, errors.New("tls: handshake message too large")
			}
			if c.handBuf.Len() >= 4+length {
				raw = append([]byte(nil), c.handBuf.Bytes()[:4+length]...)
				c.handBuf.Discard(4 + length)
				return typ, raw, raw[4:], nil
			}
		}

		typ, payload, readErr := c.readRecord()
		if readErr != nil {
			return 0, nil, nil, readErr
		}
		switch typ {
		case recordTypeHandshake:
			c.handBuf.Append(payload)
		case recordTypeChangeCipherSpec:
			// ignored, middlebox compatibility
		default:
			_ = c.sendAlert(alertUnexpectedMessage)
			return 0, nil, nil, errors.New("tls: non-handshake record during handshake")
		}
	}
}

func (c *Client) processServerHello(msgType uint8, raw, body []byte) error {
	if msgType != typeServerHello {
		_ = c.sendAlert(alertUnexpectedMessage)
		return errors.New("tls: expected server hello")
	}
	var m serverHelloMsg
	if !m.unmarshal(body) {
		_ = c.sendAlert(alertDecodeError)
		return errors.New("tls: malformed server hello")
	}
	if m.helloRetryRequest {
		// one offer per group is already in flight; a retry means the
		// server wants a group we did not generate a key for
		_ = c.sendAlert(alertHandshakeFailure)
		return errors.New("tls: server sent a hello retry request")
	}
	if m.supportedVersion != VersionTLS13 {
		_ = c.sendAlert(alertProtocolVersion)
		return errors.New("tls: server did not negotiate TLS 1.3")
	}
	suite := mutualCipherSuite(c.hs.hello.cipherSuites, m.cipherSuite)
	if suite == nil {
		_ = c.sendAlert(alertIllegalParameter)
		return errors.New("tls: server chose an unsupported cipher suite " + CipherSuiteName(m.cipherSuite))
	}
	if string(m.sessionID) != string(c.hs.hello.sessionID) {
		_ = c.sendAlert(alertIllegalParameter)
		return errors.New("tls: server did not echo the legacy session id")
	}
	if m.serverShare.group == 0 || len(m.serverShare.data) == 0 {
		_ = c.sendAlert(alertIllegalParameter)
		return errors.New("tls: server did not send a key share")
	}

	var ecdheKey *ecdh.PrivateKey
	for _, ks := range c.hs.keyShareKeys {
		if ks.curveID == m.serverShare.group {
			ecdheKey = ks.ecdhe
			break
		}
	}
	if ecdheKey == nil {
		_ = c.sendAlert(alertIllegalParameter)
		return errors.New("tls: server chose a key share group we did not offer")
	}
	curve, _ := curveForCurveID(m.serverShare.group)
	peerKey, err := curve.NewPublicKey(m.serverShare.data)
	if err != nil {
		_ = c.sendAlert(alertIllegalParameter)
		return errors.New("tls: invalid server key share", errors.WithWrap(err))
	}
	sharedKey, err := ecdheKey.ECDH(peerKey)
	if err != nil {
		_ = c.sendAlert(alertIllegalParameter)
		return errors.New("tls: ECDH failed", errors.WithWrap(err))
	}

	c.suite = suite
	c.transcript = suite.hash.New()
	c.transcript.Write(c.hs.helloBytes)
	c.transcript.Write(raw)

	earlySecret := suite.extract(nil, nil)
	c.hs.handshakeSecret = suite.extract(sharedKey, suite.deriveSecret(earlySecret, "derived", nil))
	c.hs.clientHsSecret = suite.deriveSecret(c.hs.handshakeSecret, clientHandshakeTrafficLabel, c.transcript)
	c.hs.serverHsSecret = suite.deriveSecret(c.hs.handshakeSecret, serverHandshakeTrafficLabel, c.transcript)
	c.hs.masterSecret = suite.extract(nil, suite.deriveSecret(c.hs.handshakeSecret, "derived", nil))

	// the server's flight continues under its handshake keys; ours go out
	// encrypted only from the client Finished on
	c.in.setTrafficSecret(suite, c.hs.serverHsSecret)

	c.log.Debug().
		Str("suite", suite.name).
		Str("group", m.serverShare.group.String()).
		Msg("server hello accepted")
	c.transition(stateAwaitEncryptedExtensions)
	return nil
}

func (c *Client) processEncryptedExtensions(msgType uint8, raw, body []byte) error {
	if msgType != typeEncryptedExtensions {
		_ = c.sendAlert(alertUnexpectedMessage)
		return errors.New("tls: expected encrypted extensions")
	}
	var m encryptedExtensionsMsg
	if !m.unmarshal(body) {
		_ = c.sendAlert(alertDecodeError)
		return errors.New("tls: malformed encrypted extensions")
	}
	if m.alpnProtocol != "" {
		offered := false
		for _, proto := range c.conf.NextProtos {
			if proto == m.alpnProtocol {
				offered = true
				break
			}
		}
		if !offered {
			_ = c.sendAlert(alertUnsupportedExtension)
			return errors.New("tls: server selected an unoffered ALPN protocol")
		}
		c.alpn = m.alpnProtocol
	}
	c.transcript.Write(raw)
	c.transition(stateAwaitCertificate)
	return nil
}

func (c *Client) processCertificate(msgType uint8, raw, body []byte) error {
	if msgType == typeCertificateRequest {
		// client certificates are not supported
		_ = c.sendAlert(alertUnexpectedMessage)
		return errors.New("tls: server requested a client certificate")
	}
	if msgType != typeCertificate {
		_ = c.sendAlert(alertUnexpectedMessage)
		return errors.New("tls: expected certificate")
	}
	var m certificateMsg13
	if !m.unmarshal(body) {
		_ = c.sendAlert(alertDecodeError)
		return errors.New("tls: malformed certificate message")
	}
	c.transcript.Write(raw)
	if err := c.verifyServerCertificate(m.certificates); err != nil {
		return err
	}
	c.transition(stateAwaitCertVerify)
	return nil
}

func (c *Client) processCertificateVerify(msgType uint8, raw, body []byte) error {
	if msgType != typeCertificateVerify {
		_ = c.sendAlert(alertUnexpectedMessage)
		return errors.New("tls: expected certificate verify")
	}
	var m certificateVerifyMsg
	if !m.unmarshal(body) {
		_ = c.sendAlert(alertDecodeError)
		return errors.New("tls: malformed certificate verify")
	}
	supported := false
	for _, scheme := range supportedSignatureAlgorithms {
		if scheme == m.signatureAlgorithm {
			supported = true
			break
		}
	}
	if !supported {
		_ = c.sendAlert(alertIllegalParameter)
		return errors.New("tls: server chose an unoffered signature scheme")
	}
	sigType, sigHash, err := typeAndHashFromSignatureScheme(m.signatureAlgorithm)
	if err != nil {
		_ = c.sendAlert(alertInternalError)
		return err
	}
	// signed content covers the transcript through Certificate
	signed := signedMessage(sigHash, serverSignatureContext, c.transcript)
	if err := verifyHandshakeSignature(sigType, c.peerCertificates[0].PublicKey, sigHash, signed, m.signature); err != nil {
		_ = c.sendAlert(alertDecryptError)
		return err
	}
	c.transcript.Write(raw)
	c.transition(stateAwaitFinished)
	return nil
}

func (c *Client) processServerFinished(msgType uint8, raw, body []byte) error {
	if msgType != typeFinished {
		_ = c.sendAlert(alertUnexpectedMessage)
		return errors.New("tls: expected finished")
	}
	var m finishedMsg
	if !m.unmarshal(body) {
		_ = c.sendAlert(alertDecodeError)
		return errors.New("tls: malformed finished")
	}
	// the transcript still excludes this message, as the verify_data
	// definition requires
	expected := c.suite.finishedHash(c.hs.serverHsSecret, c.transcript)
	if !hmac.Equal(expected, m.verifyData) {
		_ = c.sendAlert(alertDecryptError)
		return errors.New("tls: invalid server finished")
	}
	c.transcript.Write(raw)

	clientAppSecret := c.suite.deriveSecret(c.hs.masterSecret, clientApplicationTrafficLabel, c.transcript)
	serverAppSecret := c.suite.deriveSecret(c.hs.masterSecret, serverApplicationTrafficLabel, c.transcript)

	// middlebox compatibility CCS, still unprotected
	if err := c.sendRecord(recordTypeChangeCipherSpec, []byte{1}); err != nil {
		return err
	}

	c.out.setTrafficSecret(c.suite, c.hs.clientHsSecret)
	fin := &finishedMsg{verifyData: c.suite.finishedHash(c.hs.clientHsSecret, c.transcript)}
	finBody, _ := fin.marshal()
	finished := make([]byte, 0, 4+len(finBody))
	finished = append(finished, typeFinished, byte(len(finBody)>>16), byte(len(finBody)>>8), byte(len(finBody)))
	finished = append(finished, finBody...)
	if err := c.sendRecord(recordTypeHandshake, finished); err != nil {
		return err
	}
	c.transcript.Write(finished)

	c.in.setTrafficSecret(c.suite, serverAppSecret)
	c.out.setTrafficSecret(c.suite, clientAppSecret)
	c.transition(stateEstablished)
	return nil
}

// handlePostHandshakeMessage consumes handshake records arriving after the
// session is established. NewSessionTicket is ignored; KeyUpdate rotates the
// inbound keys and answers when an update is requested.
func (c *Client) handlePostHandshakeMessage(payload []byte) error {
	c.handBuf.Append(payload)
	for c.handBuf.Len() >= 4 {
		hdr := bytebuffers.NewReader(c.handBuf.Bytes())
		msgType, _ := hdr.ReadByte()
		size, _ := hdr.ReadUint24()
		length := int(size)
		if length > maxHandshakeMessage {
			_ = c.sendAlert(alertInternalError)
			return errors.New("tls: handshake message too large")
		}
		if c.handBuf.Len() < 4+length {
			return nil
		}
		body := append([]byte(nil), c.handBuf.Bytes()[4:4+length]...)
		c.handBuf.Discard(4 + length)

		switch msgType {
		case typeNewSessionTicket:
			// resumption is not supported, tickets are dropped
			c.log.Debug().Msg("ignoring new session ticket")
		case typeKeyUpdate:
			var m keyUpdateMsg
			if !m.unmarshal(body) {
				_ = c.sendAlert(alertDecodeError)
				return errors.New("tls: malformed key update")
			}
			c.in.rotate()
			c.log.Debug().Bool("requested", m.updateRequested).Msg("inbound keys rotated")
			if m.updateRequested {
				reply, _ := (&keyUpdateMsg{}).marshal()
				msg := append([]byte{typeKeyUpdate, 0, 0, byte(len(reply))}, reply...)
				if err := c.sendRecord(recordTypeHandshake, msg); err != nil {
					return err
				}
				c.out.rotate()
			}
		default:
			_ = c.sendAlert(alertUnexpectedMessage)
			return errors.New("tls: unexpected post-handshake message")
		}
	}
	return nil
}

// sniServerName returns the ASCII SNI form of the configured server name.
// Literal IP addresses are never sent in SNI.
func (c *Client) sniServerName() (string, error) {
	if net.ParseIP(c.conf.ServerName) != nil {
		return "", nil
	}
	return transport.NormalizeHost(c.conf.ServerName)
}
