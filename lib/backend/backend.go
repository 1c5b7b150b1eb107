package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"mortar/lib/errco"
	"mortar/lib/mcproto"
	"mortar/lib/model"
)

// Result is the outcome of a backend poll
type Result struct {
	Target      model.ServerTarget
	Status      *CachedStatus
	Cached      bool // status was served from cache without dialing
	Placeholder bool // poll failed: Status holds an empty document
}

// Client polls the status of a single backend server
type Client struct {
	target   model.ServerTarget
	protocol int32
	cache    *StatusCache
	timeout  time.Duration

	// mu serializes polls: a poll waiting for an in-flight one reads its fresh cache entry
	mu sync.Mutex
}

// NewClient returns a client polling target.
// Polled statuses are stored in cache, shared between clients.
func NewClient(target model.ServerTarget, cache *StatusCache, timeout time.Duration) *Client {
	protocol, ok := mcproto.ProtocolForVersion(target.Version)
	if !ok {
		errco.NewLogln(errco.TYPE_WAR, errco.LVL_1, errco.ERROR_VERSION_LOAD, "version \"%s\" of %s is unknown, using %s (protocol %d)", target.Version, target.Addr(), mcproto.DefaultVersion, protocol)
	}

	return &Client{
		target:   target,
		protocol: protocol,
		cache:    cache,
		timeout:  timeout,
	}
}

// Target returns the polled backend
func (c *Client) Target() model.ServerTarget {
	return c.target
}

// Poll returns the backend status.
//
// A status fetched within the cache ttl is returned without dialing.
// Otherwise the backend is dialed once: on failure a placeholder result
// (empty document, Placeholder set) is returned together with the error.
func (c *Client) Poll(ctx context.Context) (*Result, *errco.MrtLog) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if status, ok := c.cache.Get(c.target.Addr()); ok {
		errco.NewLogln(errco.TYPE_SER, errco.LVL_3, errco.ERROR_NIL, "status of %s served from cache (fetched %s ago)", c.target.Addr(), time.Since(status.FetchedAt).Round(time.Millisecond))
		return &Result{Target: c.target, Status: status, Cached: true}, nil
	}

	status, logMrt := c.fetch(ctx)
	if logMrt != nil {
		return &Result{
			Target:      c.target,
			Status:      &CachedStatus{Data: &model.StatusDocument{}, Raw: []byte("{}"), FetchedAt: time.Now()},
			Placeholder: true,
		}, logMrt.AddTrace()
	}

	c.cache.Set(c.target.Addr(), status)
	errco.NewLogln(errco.TYPE_SER, errco.LVL_2, errco.ERROR_NIL, "status of %s polled (%s, %d/%d players)", c.target.Addr(), status.Data.Version.Name, status.Data.Players.Online, status.Data.Players.Max)

	return &Result{Target: c.target, Status: status}, nil
}

// fetch emulates a client server list ping to the backend
func (c *Client) fetch(ctx context.Context) (*CachedStatus, *errco.MrtLog) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var dialer net.Dialer
	serverSocket, err := dialer.DialContext(ctx, "tcp", c.target.Addr())
	if err != nil {
		return nil, connLog(err, "dial %s: %s", c.target.Addr(), err.Error())
	}
	defer serverSocket.Close()

	// the deadline covers the whole exchange, cancellation interrupts blocked reads
	if deadline, ok := ctx.Deadline(); ok {
		serverSocket.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { serverSocket.SetDeadline(time.Now()) })
	defer stop()

	// [ handshake (next state 1) ][ status request [1 0] ]
	req := mcproto.BuildHandshake(c.protocol, c.target.Host, uint16(c.target.Port), mcproto.NEXT_STATE_STATUS)
	req = append(req, mcproto.BuildStatusRequest()...)

	errco.NewLogln(errco.TYPE_BYT, errco.LVL_4, errco.ERROR_NIL, "mortar --> %s: %v", c.target.Addr(), req)

	if _, err := serverSocket.Write(req); err != nil {
		return nil, connLog(err, "write to %s: %s", c.target.Addr(), err.Error())
	}

	// accumulate until the status response frame is complete
	var frame *mcproto.Frame
	buf := []byte{}
	data := make([]byte, 4096)
	for {
		f, ok, logMrt := mcproto.ReadFramedPacket(buf)
		if logMrt != nil {
			return nil, errco.NewLog(errco.TYPE_ERR, errco.LVL_2, errco.ERROR_BACKEND_PROTOCOL, "%s sent a malformed response: %s", c.target.Addr(), logMrt.String())
		} else if ok {
			frame = f
			break
		}

		n, err := serverSocket.Read(data)
		buf = append(buf, data[:n]...)
		if err != nil {
			if _, ok, _ := mcproto.ReadFramedPacket(buf); ok {
				continue
			}
			if errors.Is(err, io.EOF) {
				return nil, errco.NewLog(errco.TYPE_ERR, errco.LVL_2, errco.ERROR_BACKEND_CONNECT, "%s closed the connection after %d bytes", c.target.Addr(), len(buf))
			}
			return nil, connLog(err, "read from %s: %s", c.target.Addr(), err.Error())
		}
	}

	errco.NewLogln(errco.TYPE_BYT, errco.LVL_4, errco.ERROR_NIL, "%s --> mortar: %d bytes", c.target.Addr(), frame.Consumed)

	statusJSON, logMrt := mcproto.ParseStatusResponse(frame)
	if logMrt != nil {
		return nil, errco.NewLog(errco.TYPE_ERR, errco.LVL_2, errco.ERROR_BACKEND_PROTOCOL, "%s sent an invalid status response: %s", c.target.Addr(), logMrt.String())
	}

	doc := &model.StatusDocument{}
	if err := json.Unmarshal(statusJSON, doc); err != nil {
		return nil, errco.NewLog(errco.TYPE_ERR, errco.LVL_2, errco.ERROR_BACKEND_PROTOCOL, "%s sent an invalid status json: %s", c.target.Addr(), err.Error())
	}

	return &CachedStatus{
		Data:      doc,
		Raw:       bytes.Clone(statusJSON),
		FetchedAt: time.Now(),
	}, nil
}

// connLog returns a backend timeout log if err is a timeout, a backend connect log otherwise
func connLog(err error, m string, a ...interface{}) *errco.MrtLog {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return errco.NewLog(errco.TYPE_ERR, errco.LVL_2, errco.ERROR_BACKEND_TIMEOUT, m, a...)
	}
	return errco.NewLog(errco.TYPE_ERR, errco.LVL_2, errco.ERROR_BACKEND_CONNECT, m, a...)
}
