package net

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/jingkaihe/gameward/internal/errx"
)

const acceptRetryDelay = 50 * time.Millisecond

// PoolOptions configures a connection Pool.
type PoolOptions struct {
	Address string
	Workers int
	// QueueSize bounds completed connections awaiting Drain.
	QueueSize int
	// TLS, when set, is used for a server handshake on every accepted
	// connection before it is queued.
	TLS              *tls.Config
	HandshakeTimeout time.Duration
	Logger           *slog.Logger
}

// Pool accepts connections on one listener with a fixed set of workers and
// hands finished connections to a single consumer through Drain.
type Pool struct {
	listener         net.Listener
	tls              *tls.Config
	handshakeTimeout time.Duration
	logger           *slog.Logger

	conns  chan net.Conn
	closed chan struct{}
	once   sync.Once

	// handshaking holds raw connections whose TLS handshake is in flight.
	mu          sync.Mutex
	handshaking map[net.Conn]struct{}
}

// Listen binds opts.Address and starts opts.Workers acceptor goroutines.
func Listen(opts PoolOptions) (*Pool, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	ln, err := net.Listen("tcp", opts.Address)
	if err != nil {
		return nil, errx.With(ErrListen, " %s: %w", opts.Address, err)
	}

	p := &Pool{
		listener:         ln,
		tls:              opts.TLS,
		handshakeTimeout: opts.HandshakeTimeout,
		logger:           logger,
		conns:            make(chan net.Conn, opts.QueueSize),
		closed:           make(chan struct{}),
		handshaking:      make(map[net.Conn]struct{}),
	}
	for i := 0; i < workers; i++ {
		go p.acceptLoop(i)
	}
	logger.Info("listening", "address", ln.Addr().String(), "workers", workers, "tls", opts.TLS != nil)
	return p, nil
}

func (p *Pool) Addr() net.Addr {
	return p.listener.Addr()
}

// Drain returns every queued connection without blocking. The caller owns
// and must close each returned connection.
func (p *Pool) Drain() []net.Conn {
	var out []net.Conn
	for {
		select {
		case c := <-p.conns:
			out = append(out, c)
		default:
			return out
		}
	}
}

// Close stops the listener without joining the workers. Connections still in
// a TLS handshake and queued connections are closed, so no worker can hold
// shutdown open.
func (p *Pool) Close() error {
	var err error
	p.once.Do(func() {
		close(p.closed)
		err = p.listener.Close()

		p.mu.Lock()
		for c := range p.handshaking {
			_ = c.Close()
		}
		clear(p.handshaking)
		p.mu.Unlock()

		for _, c := range p.Drain() {
			_ = c.Close()
		}
	})
	return err
}

func (p *Pool) track(conn net.Conn) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	select {
	case <-p.closed:
		return false
	default:
	}
	p.handshaking[conn] = struct{}{}
	return true
}

func (p *Pool) untrack(conn net.Conn) {
	p.mu.Lock()
	delete(p.handshaking, conn)
	p.mu.Unlock()
}

func (p *Pool) acceptLoop(id int) {
	logger := p.logger.With("worker", id)

	for {
		conn, err := p.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Warn("accept failed", "error", errx.Wrap(ErrAccept, err))
			select {
			case <-p.closed:
				return
			case <-time.After(acceptRetryDelay):
			}
			continue
		}

		if p.tls != nil {
			if !p.track(conn) {
				_ = conn.Close()
				return
			}
			tlsConn, err := p.handshake(conn)
			p.untrack(conn)
			if err != nil {
				select {
				case <-p.closed:
					_ = conn.Close()
					return
				default:
				}
				logger.Info("TLS handshake failed", "remote", conn.RemoteAddr().String(), "error", err)
				_ = conn.Close()
				continue
			}
			conn = tlsConn
		}

		select {
		case <-p.closed:
			_ = conn.Close()
			return
		default:
		}
		select {
		case p.conns <- conn:
		case <-p.closed:
			_ = conn.Close()
			return
		}
	}
}

func (p *Pool) handshake(conn net.Conn) (net.Conn, error) {
	tlsConn := tls.Server(conn, p.tls)
	ctx := context.Background()
	if p.handshakeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.handshakeTimeout)
		defer cancel()
	}
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return nil, errx.Wrap(ErrHandshake, err)
	}
	return tlsConn, nil
}
