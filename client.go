// Package tlsclient implements a minimal blocking TLS 1.3 client: one
// handshake, then one bidirectional encrypted stream per session. Sessions
// are single-owner; no method is safe for concurrent use.
package tlsclient

import (
	"context"
	"crypto/x509"
	stderrors "errors"
	"hash"
	"io"
	"net"

	"github.com/brickingsoft/errors"
	"github.com/mrzaxaryan/tlsclient/pkg/bytebuffers"
	"github.com/mrzaxaryan/tlsclient/transport"
	"github.com/rs/zerolog"
)

type handshakeState uint8

const (
	stateIdle handshakeState = iota
	stateAwaitServerHello
	stateAwaitEncryptedExtensions
	stateAwaitCertificate
	stateAwaitCertVerify
	stateAwaitFinished
	stateEstablished
	stateFailed
	stateClosed
)

func (s handshakeState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateAwaitServerHello:
		return "await_server_hello"
	case stateAwaitEncryptedExtensions:
		return "await_encrypted_extensions"
	case stateAwaitCertificate:
		return "await_certificate"
	case stateAwaitCertVerify:
		return "await_certificate_verify"
	case stateAwaitFinished:
		return "await_finished"
	case stateEstablished:
		return "established"
	case stateFailed:
		return "failed"
	case stateClosed:
		return "closed"
	default:
		return "state?"
	}
}

// Client is a TLS 1.3 client session over a Transport. Create with
// NewClient, connect with Open, then Read and Write move application data.
// After a failed Open or a fatal record error the session is dead; open a
// new one.
type Client struct {
	conf *Config
	tr   transport.Transport
	log  zerolog.Logger

	state handshakeState
	suite *cipherSuite

	in  halfConn
	out halfConn

	transcript hash.Hash
	hs         *clientHandshake

	sendBuf *bytebuffers.Buffer
	recvBuf *bytebuffers.Buffer
	handBuf *bytebuffers.Buffer

	// appData is the unread remainder of the current decrypted record.
	appData []byte

	alpn             string
	peerCertificates []*x509.Certificate
	verifiedChains   [][]*x509.Certificate
}

// NewClient wires a session over tr. The transport is not opened here. The
// default configuration is a secure session with all implemented suites and
// groups, system roots and no logging.
func NewClient(tr transport.Transport, opts ...Option) (*Client, error) {
	if tr == nil {
		return nil, errors.New("tlsclient: transport is nil")
	}
	conf := &Config{
		Secure: true,
		Logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		if err := opt(conf); err != nil {
			return nil, err
		}
	}
	if conf.Secure && conf.ServerName == "" && !conf.InsecureSkipVerify {
		return nil, errors.New("tlsclient: server name required unless verification is disabled")
	}
	return &Client{
		conf:    conf,
		tr:      tr,
		log:     conf.Logger,
		state:   stateIdle,
		sendBuf: bytebuffers.NewBuffer(),
		recvBuf: bytebuffers.NewBuffer(),
		handBuf: bytebuffers.NewBuffer(),
	}, nil
}

// Open connects the transport and, for secure sessions, runs the handshake.
// A handshake failure closes the transport; the returned error carries the
// layered code trail (see Codes).
func (c *Client) Open(ctx context.Context) error {
	switch c.state {
	case stateIdle:
	case stateClosed:
		return ErrClosed
	default:
		return errors.New("tlsclient: already open")
	}

	if err := c.tr.Open(ctx); err != nil {
		c.state = stateFailed
		inner := CodeSocketConnect
		var dnsErr *net.DNSError
		if stderrors.As(err, &dnsErr) {
			inner = CodeSocketResolve
		}
		return withCode(CodeTlsOpenFailedSocket, withCode(inner, err))
	}
	if !c.conf.Secure {
		c.state = stateEstablished
		c.log.Debug().Msg("plaintext session open")
		return nil
	}

	if err := c.handshake(ctx); err != nil {
		c.state = stateFailed
		c.in.zeroize()
		c.out.zeroize()
		_ = c.tr.Close()
		return withCode(CodeTlsOpenFailedHandshake, err)
	}
	c.state = stateEstablished
	c.log.Debug().
		Str("suite", CipherSuiteName(c.suite.id)).
		Str("alpn", c.alpn).
		Msg("session established")
	return nil
}

// Read returns decrypted application data. It serves the remainder of the
// current record first, then blocks for the next one. io.EOF reports an
// orderly close_notify from the peer.
func (c *Client) Read(p []byte) (int, error) {
	if c.state != stateEstablished {
		return 0, withCode(CodeTlsReadFailedNotReady, ErrNotReady)
	}
	if len(p) == 0 {
		return 0, nil
	}
	if !c.conf.Secure {
		n, err := c.tr.Read(p)
		if err != nil && err != io.EOF {
			err = withCode(CodeTlsReadFailedRecv, withCode(CodeSocketRecv, err))
		}
		return n, err
	}

	for len(c.appData) == 0 {
		typ, payload, err := c.readRecord()
		if err != nil {
			if err == io.EOF {
				return 0, io.EOF
			}
			c.state = stateFailed
			code := CodeTlsReadFailedRecv
			if errors.Is(err, errDecryptFailed) || errors.Is(err, errBadInnerRecord) {
				code = CodeTlsReadFailedDecrypt
			}
			return 0, withCode(code, err)
		}
		switch typ {
		case recordTypeApplicationData:
			c.appData = payload
		case recordTypeHandshake:
			if err := c.handlePostHandshakeMessage(payload); err != nil {
				c.state = stateFailed
				return 0, withCode(CodeTlsReadFailedRecv, err)
			}
		case recordTypeChangeCipherSpec:
			// middlebox compatibility noise, ignored
		default:
			c.state = stateFailed
			_ = c.sendAlert(alertUnexpectedMessage)
			return 0, withCode(CodeTlsReadFailedRecv, errors.New("tls: unexpected record type"))
		}
	}

	n := copy(p, c.appData)
	c.appData = c.appData[n:]
	return n, nil
}

// Write encrypts and sends p, chunking at the record plaintext limit. The
// returned count is the number of bytes of p consumed.
func (c *Client) Write(p []byte) (int, error) {
	if c.state != stateEstablished {
		return 0, withCode(CodeTlsWriteFailedNotReady, ErrNotReady)
	}
	if !c.conf.Secure {
		n, err := c.tr.Write(p)
		if err != nil {
			err = withCode(CodeTlsWriteFailedSend, withCode(CodeSocketSend, err))
		}
		return n, err
	}

	var written int
	for len(p) > 0 {
		chunk := p
		if len(chunk) > maxPlaintext {
			chunk = chunk[:maxPlaintext]
		}
		if err := c.sendRecord(recordTypeApplicationData, chunk); err != nil {
			c.state = stateFailed
			return written, withCode(CodeTlsWriteFailedSend, err)
		}
		written += len(chunk)
		p = p[len(chunk):]
	}
	return written, nil
}

// Close sends close_notify on established secure sessions, closes the
// transport and zeroizes key material. Safe to call more than once.
func (c *Client) Close() error {
	if c.state == stateClosed {
		return nil
	}
	if c.state == stateEstablished && c.conf.Secure {
		// best effort; the peer may already be gone
		_ = c.sendAlert(alertCloseNotify)
	}
	err := c.tr.Close()
	c.in.zeroize()
	c.out.zeroize()
	c.appData = nil
	c.state = stateClosed
	c.log.Debug().Msg("session closed")
	return err
}

// IsValid reports whether the session is established and usable.
func (c *Client) IsValid() bool {
	return c.state == stateEstablished
}

// IsSecure reports whether the established session is record-protected.
func (c *Client) IsSecure() bool {
	return c.state == stateEstablished && c.conf.Secure
}

// ConnectionState is a snapshot of the negotiated session parameters.
type ConnectionState struct {
	Version            uint16
	HandshakeComplete  bool
	CipherSuite        uint16
	NegotiatedProtocol string
	ServerName         string
	PeerCertificates   []*x509.Certificate
	VerifiedChains     [][]*x509.Certificate
}

func (c *Client) ConnectionState() ConnectionState {
	state := ConnectionState{
		HandshakeComplete:  c.state == stateEstablished && c.conf.Secure,
		NegotiatedProtocol: c.alpn,
		ServerName:         c.conf.ServerName,
		PeerCertificates:   c.peerCertificates,
		VerifiedChains:     c.verifiedChains,
	}
	if state.HandshakeComplete {
		state.Version = VersionTLS13
		state.CipherSuite = c.suite.id
	}
	return state
}
