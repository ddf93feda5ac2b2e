package tlsclient

import (
	"crypto/rand"
	"crypto/x509"
	"io"
	"time"

	"github.com/brickingsoft/errors"
	"github.com/rs/zerolog"
)

// Config carries the session parameters. The zero value is completed by
// NewClient: secure sessions, all implemented suites and groups, system
// roots, no ALPN, no logging.
type Config struct {
	// ServerName is the host presented in SNI and checked against the
	// server certificate. Required for secure sessions.
	ServerName string
	// Secure selects TLS. When false the session is a plaintext
	// passthrough over the transport.
	Secure bool
	// CipherSuites is the offer list, in preference order.
	CipherSuites []uint16
	// CurvePreferences is the key share offer list, in preference order.
	CurvePreferences []CurveID
	// NextProtos is the ALPN offer list.
	NextProtos []string
	// RootCAs is the verification root set; nil means the system pool.
	RootCAs *x509.CertPool
	// InsecureSkipVerify disables certificate chain and host name
	// verification. The handshake signature is still checked.
	InsecureSkipVerify bool
	// Rand sources all handshake randomness; nil means crypto/rand.
	Rand io.Reader
	// Time is the verification clock; nil means time.Now.
	Time func() time.Time
	// Logger receives handshake and record traces.
	Logger zerolog.Logger
}

func (c *Config) rand() io.Reader {
	if c.Rand != nil {
		return c.Rand
	}
	return rand.Reader
}

func (c *Config) time() time.Time {
	if c.Time != nil {
		return c.Time()
	}
	return time.Now()
}

func (c *Config) cipherSuites() []uint16 {
	if len(c.CipherSuites) > 0 {
		return c.CipherSuites
	}
	return defaultCipherSuites()
}

func (c *Config) curvePreferences() []CurveID {
	if len(c.CurvePreferences) > 0 {
		return c.CurvePreferences
	}
	return defaultCurvePreferences()
}

func defaultCipherSuites() []uint16 {
	return []uint16{
		TLS_CHACHA20_POLY1305_SHA256,
		TLS_AES_128_GCM_SHA256,
		TLS_AES_256_GCM_SHA384,
	}
}

func defaultCurvePreferences() []CurveID {
	return []CurveID{X25519, CurveP256, CurveP384}
}

type Option func(config *Config) (err error)

// WithServerName sets the SNI and certificate verification host.
func WithServerName(name string) Option {
	return func(config *Config) (err error) {
		if name == "" {
			return errors.New("tlsclient: server name is empty")
		}
		config.ServerName = name
		return
	}
}

// WithPlaintext turns the session into a passthrough over the transport, no
// handshake and no record protection.
func WithPlaintext() Option {
	return func(config *Config) (err error) {
		config.Secure = false
		return
	}
}

// WithCipherSuites sets the offer list, in preference order. Unknown ids are
// rejected.
func WithCipherSuites(ids ...uint16) Option {
	return func(config *Config) (err error) {
		for _, id := range ids {
			if cipherSuiteByID(id) == nil {
				return errors.New("tlsclient: unsupported cipher suite " + CipherSuiteName(id))
			}
		}
		config.CipherSuites = ids
		return
	}
}

// WithCurvePreferences sets the key share groups, in preference order.
func WithCurvePreferences(curves ...CurveID) Option {
	return func(config *Config) (err error) {
		for _, curve := range curves {
			if _, ok := curveForCurveID(curve); !ok {
				return errors.New("tlsclient: unsupported curve " + curve.String())
			}
		}
		config.CurvePreferences = curves
		return
	}
}

// WithNextProtos sets the ALPN offer list.
func WithNextProtos(protos ...string) Option {
	return func(config *Config) (err error) {
		config.NextProtos = protos
		return
	}
}

// WithRootCAs sets the certificate verification roots.
func WithRootCAs(pool *x509.CertPool) Option {
	return func(config *Config) (err error) {
		config.RootCAs = pool
		return
	}
}

// WithInsecureSkipVerify disables chain and host name verification.
func WithInsecureSkipVerify() Option {
	return func(config *Config) (err error) {
		config.InsecureSkipVerify = true
		return
	}
}

// WithLogger sets the trace logger. The default is zerolog.Nop().
func WithLogger(logger zerolog.Logger) Option {
	return func(config *Config) (err error) {
		config.Logger = logger
		return
	}
}

// WithRand overrides the handshake randomness source.
func WithRand(r io.Reader) Option {
	return func(config *Config) (err error) {
		config.Rand = r
		return
	}
}

// WithTime overrides the certificate verification clock.
func WithTime(now func() time.Time) Option {
	return func(config *Config) (err error) {
		config.Time = now
		return
	}
}
