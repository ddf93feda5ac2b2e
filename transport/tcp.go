package transport

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/brickingsoft/errors"
)

type TCPOptions struct {
	DialTimeout     time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	KeepAlivePeriod time.Duration
	NoDelay         bool
	ReadBufferSize  int
	WriteBufferSize int
}

type TCPOption func(options *TCPOptions) (err error)

func WithDialTimeout(d time.Duration) TCPOption {
	return func(options *TCPOptions) (err error) {
		if d > 0 {
			options.DialTimeout = d
		}
		return
	}
}

func WithReadTimeout(d time.Duration) TCPOption {
	return func(options *TCPOptions) (err error) {
		if d > 0 {
			options.ReadTimeout = d
		}
		return
	}
}

func WithWriteTimeout(d time.Duration) TCPOption {
	return func(options *TCPOptions) (err error) {
		if d > 0 {
			options.WriteTimeout = d
		}
		return
	}
}

func WithKeepAlivePeriod(d time.Duration) TCPOption {
	return func(options *TCPOptions) (err error) {
		if d > 0 {
			options.KeepAlivePeriod = d
		}
		return
	}
}

// WithNoDelay disables Nagle coalescing on the socket.
func WithNoDelay() TCPOption {
	return func(options *TCPOptions) (err error) {
		options.NoDelay = true
		return
	}
}

// WithSocketBuffers sets SO_RCVBUF and SO_SNDBUF. Zero leaves the kernel
// default in place.
func WithSocketBuffers(read, write int) TCPOption {
	return func(options *TCPOptions) (err error) {
		if read < 0 || write < 0 {
			return errors.New("transport: negative socket buffer size")
		}
		options.ReadBufferSize = read
		options.WriteBufferSize = write
		return
	}
}

// TCP is a blocking Transport over a single TCP connection. Open dials; Read
// and Write arm the per-operation deadlines from the configured timeouts.
type TCP struct {
	host    string
	port    int
	options TCPOptions
	conn    net.Conn
}

func NewTCP(host string, port int, opts ...TCPOption) (*TCP, error) {
	if host == "" {
		return nil, errors.New("transport: host is empty")
	}
	if port < 1 || port > 65535 {
		return nil, errors.New("transport: invalid port " + strconv.Itoa(port))
	}
	options := TCPOptions{
		DialTimeout:  DefaultDialTimeout,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
	}
	for _, opt := range opts {
		if err := opt(&options); err != nil {
			return nil, err
		}
	}
	return &TCP{host: host, port: port, options: options}, nil
}

func (t *TCP) Open(ctx context.Context) (err error) {
	if t.conn != nil {
		return errors.New("transport: already open")
	}
	host, err := NormalizeHost(t.host)
	if err != nil {
		return err
	}
	dialer := net.Dialer{
		Timeout:   t.options.DialTimeout,
		KeepAlive: t.options.KeepAlivePeriod,
		Control:   t.control,
	}
	conn, dialErr := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(t.port)))
	if dialErr != nil {
		return errors.New(
			"transport: connect failed",
			errors.WithMeta("host", t.host),
			errors.WithMeta("port", strconv.Itoa(t.port)),
			errors.WithWrap(dialErr),
		)
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok && t.options.NoDelay {
		if err = tcpConn.SetNoDelay(true); err != nil {
			_ = conn.Close()
			return errors.New("transport: set nodelay failed", errors.WithWrap(err))
		}
	}
	t.conn = conn
	return nil
}

func (t *TCP) Read(p []byte) (n int, err error) {
	if t.conn == nil {
		return 0, errors.New("transport: not open")
	}
	if t.options.ReadTimeout > 0 {
		if err = t.conn.SetReadDeadline(time.Now().Add(t.options.ReadTimeout)); err != nil {
			return 0, err
		}
	}
	return t.conn.Read(p)
}

func (t *TCP) Write(p []byte) (n int, err error) {
	if t.conn == nil {
		return 0, errors.New("transport: not open")
	}
	if t.options.WriteTimeout > 0 {
		if err = t.conn.SetWriteDeadline(time.Now().Add(t.options.WriteTimeout)); err != nil {
			return 0, err
		}
	}
	return t.conn.Write(p)
}

func (t *TCP) Close() (err error) {
	if t.conn == nil {
		return nil
	}
	err = t.conn.Close()
	t.conn = nil
	return
}

func (t *TCP) LocalAddr() (addr net.Addr) {
	if t.conn == nil {
		return nil
	}
	return t.conn.LocalAddr()
}

func (t *TCP) RemoteAddr() (addr net.Addr) {
	if t.conn == nil {
		return nil
	}
	return t.conn.RemoteAddr()
}
