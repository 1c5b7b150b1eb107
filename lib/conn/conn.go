package conn

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"mortar/lib/errco"
	"mortar/lib/servstats"
)

// StatusSource provides the composite status json shown to clients
type StatusSource interface {
	Fetch(ctx context.Context, protocol int32, clientIP string) ([]byte, *errco.MrtLog)
}

// Responder answers minecraft clients with the composite status
type Responder struct {
	Source      StatusSource
	ReadTimeout time.Duration // max time a client can take to send a whole packet
}

// NewResponder returns a responder serving the status provided by source
func NewResponder(source StatusSource, readTimeout time.Duration) *Responder {
	return &Responder{
		Source:      source,
		ReadTimeout: readTimeout,
	}
}

// Serve accepts clients on listener until it is closed.
// Each client is handled on its own goroutine.
func (r *Responder) Serve(listener net.Listener) *errco.MrtLog {
	for {
		clientSocket, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			errco.NewLogln(errco.TYPE_ERR, errco.LVL_1, errco.ERROR_CLIENT_ACCEPT, err.Error())
			continue
		}

		errco.NewLogln(errco.TYPE_INF, errco.LVL_3, errco.ERROR_NIL, "%-40s %s", "new client connection from", clientSocket.RemoteAddr().String())

		go r.HandleClientSocket(clientSocket)
	}
}

// HandleClientSocket handles a client connection until it reaches a terminal state.
// The connection is closed before returning.
// [goroutine]
func (r *Responder) HandleClientSocket(clientSocket net.Conn) {
	servstats.Stats.Connected()
	defer servstats.Stats.Disconnected()

	s := newSession(clientSocket, r)
	defer func() {
		errco.NewLogln(errco.TYPE_INF, errco.LVL_3, errco.ERROR_NIL, "closing connection for: %s (%s)", s.clientAddress, s.state)
		clientSocket.Close()
	}()

	// each packet must be complete within ReadTimeout:
	// the deadline is moved only when a packet is decoded
	deadline := time.Now().Add(r.ReadTimeout)
	decoded := 0

	data := make([]byte, 1024)
	var readErr error
	for {
		// decode every packet buffered so far
		if s.process() {
			return
		}
		if s.decoded != decoded {
			decoded = s.decoded
			deadline = time.Now().Add(r.ReadTimeout)
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				errco.NewLogln(errco.TYPE_INF, errco.LVL_3, errco.ERROR_CONN_EOF, "client %s closed the connection", s.clientAddress)
			} else {
				errco.NewLogln(errco.TYPE_WAR, errco.LVL_3, errco.ERROR_CLIENT_SOCKET_READ, "client %s: %s", s.clientAddress, readErr.Error())
			}
			return
		}

		clientSocket.SetReadDeadline(deadline)

		var n int
		n, readErr = clientSocket.Read(data)
		if n > 0 {
			errco.NewLogln(errco.TYPE_BYT, errco.LVL_4, errco.ERROR_NIL, "%sclient --> mortar%s: %v", errco.COLOR_GREEN, errco.COLOR_RESET, data[:n])
			servstats.Stats.Traffic(0, n)
			s.buf = append(s.buf, data[:n]...)
		}
	}
}

// clientIP returns the ip of a remote address (ipv6 addresses included)
func clientIP(addr net.Addr) string {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
