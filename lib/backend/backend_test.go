package backend

import (
	"context"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mortar/lib/errco"
	"mortar/lib/mcproto"
	"mortar/lib/model"
)

const aliceStatus = `{"version":{"name":"1.16.5","protocol":754},"players":{"max":20,"online":1,"sample":[{"name":"Alice","id":"4566e69f-c907-48ee-8d71-d7ba5aa00d20"}]},"description":{"text":"a server"}}`

// fakeBackend is a loopback minecraft server answering status requests
type fakeBackend struct {
	ln          net.Listener
	connections atomic.Int32
	handshakes  chan *mcproto.Handshake

	// respond writes the answer to a status request (nil: stay silent)
	respond func(c net.Conn)
}

func newFakeBackend(t *testing.T, respond func(c net.Conn)) *fakeBackend {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	fb := &fakeBackend{ln: ln, respond: respond, handshakes: make(chan *mcproto.Handshake, 16)}
	go fb.serve()
	t.Cleanup(func() { ln.Close() })

	return fb
}

func (fb *fakeBackend) serve() {
	for {
		c, err := fb.ln.Accept()
		if err != nil {
			return
		}
		fb.connections.Add(1)
		go fb.handle(c)
	}
}

func (fb *fakeBackend) handle(c net.Conn) {
	defer c.Close()

	buf := []byte{}
	data := make([]byte, 1024)
	phase := mcproto.PHASE_HANDSHAKING
	for {
		packet, ok, logMrt := mcproto.DecodePacket(buf, phase)
		if logMrt != nil {
			return
		}
		if !ok {
			n, err := c.Read(data)
			if err != nil {
				return
			}
			buf = append(buf, data[:n]...)
			continue
		}
		buf = buf[len(packet.Raw):]

		switch packet.Kind {
		case mcproto.KIND_HANDSHAKE:
			fb.handshakes <- packet.Handshake
			phase = mcproto.PHASE_STATUS
		case mcproto.KIND_STATUS_REQUEST:
			if fb.respond == nil {
				// keep the connection open without answering
				time.Sleep(2 * time.Second)
				return
			}
			fb.respond(c)
			return
		}
	}
}

func (fb *fakeBackend) target(version string) model.ServerTarget {
	host, port, _ := net.SplitHostPort(fb.ln.Addr().String())
	p, _ := strconv.Atoi(port)
	return model.ServerTarget{Host: host, Port: p, Version: version}
}

func respondWith(status string) func(c net.Conn) {
	return func(c net.Conn) {
		c.Write(mcproto.BuildStatusResponse([]byte(status)))
	}
}

func Test_PollSuccess(t *testing.T) {
	fb := newFakeBackend(t, respondWith(aliceStatus))
	client := NewClient(fb.target("1.16.5"), NewStatusCache(time.Minute), time.Second)

	res, logMrt := client.Poll(context.Background())
	require.Nil(t, logMrt)
	assert.False(t, res.Placeholder)
	assert.False(t, res.Cached)
	assert.Equal(t, "1.16.5", res.Status.Data.Version.Name)
	require.Len(t, res.Status.Data.Players.Sample, 1)
	assert.Equal(t, "Alice", res.Status.Data.Players.Sample[0].Name)
	assert.JSONEq(t, `{"text":"a server"}`, string(res.Status.Data.Description))
	assert.Equal(t, aliceStatus, string(res.Status.Raw))

	// the handshake carries the target version protocol and address
	h := <-fb.handshakes
	assert.Equal(t, int32(754), h.ProtocolVersion)
	assert.Equal(t, "127.0.0.1", h.ServerAddress)
	assert.Equal(t, uint16(fb.target("").Port), h.ServerPort)
	assert.Equal(t, mcproto.NEXT_STATE_STATUS, h.NextState)
}

func Test_PollChunkedResponse(t *testing.T) {
	fb := newFakeBackend(t, func(c net.Conn) {
		resp := mcproto.BuildStatusResponse([]byte(aliceStatus))
		for len(resp) > 0 {
			n := min(7, len(resp))
			c.Write(resp[:n])
			resp = resp[n:]
			time.Sleep(time.Millisecond)
		}
	})
	client := NewClient(fb.target("1.16.5"), NewStatusCache(time.Minute), time.Second)

	res, logMrt := client.Poll(context.Background())
	require.Nil(t, logMrt)
	assert.Equal(t, aliceStatus, string(res.Status.Raw))
}

func Test_PollCacheFreshness(t *testing.T) {
	fb := newFakeBackend(t, respondWith(aliceStatus))
	client := NewClient(fb.target("1.16.5"), NewStatusCache(time.Minute), time.Second)

	for i := 0; i < 5; i++ {
		res, logMrt := client.Poll(context.Background())
		require.Nil(t, logMrt)
		assert.Equal(t, i > 0, res.Cached)
	}
	assert.Equal(t, int32(1), fb.connections.Load())
}

func Test_PollConcurrentSingleDial(t *testing.T) {
	fb := newFakeBackend(t, func(c net.Conn) {
		time.Sleep(100 * time.Millisecond)
		c.Write(mcproto.BuildStatusResponse([]byte(aliceStatus)))
	})
	client := NewClient(fb.target("1.16.5"), NewStatusCache(time.Minute), time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, logMrt := client.Poll(context.Background())
			assert.Nil(t, logMrt)
			assert.False(t, res.Placeholder)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), fb.connections.Load())
}

func Test_PollCacheExpiry(t *testing.T) {
	fb := newFakeBackend(t, respondWith(aliceStatus))
	client := NewClient(fb.target("1.16.5"), NewStatusCache(50*time.Millisecond), time.Second)

	_, logMrt := client.Poll(context.Background())
	require.Nil(t, logMrt)

	time.Sleep(100 * time.Millisecond)

	res, logMrt := client.Poll(context.Background())
	require.Nil(t, logMrt)
	assert.False(t, res.Cached)
	assert.Equal(t, int32(2), fb.connections.Load())
}

func Test_PollTimeout(t *testing.T) {
	fb := newFakeBackend(t, nil)
	cache := NewStatusCache(time.Minute)
	client := NewClient(fb.target("1.16.5"), cache, 200*time.Millisecond)

	start := time.Now()
	res, logMrt := client.Poll(context.Background())
	elapsed := time.Since(start)

	require.NotNil(t, logMrt)
	assert.Equal(t, errco.ERROR_BACKEND_TIMEOUT, logMrt.Cod, logMrt.String())
	assert.Less(t, elapsed, time.Second)
	assert.True(t, res.Placeholder)
	assert.NotNil(t, res.Status.Data)

	// a failure does not populate the cache
	_, ok := cache.Get(client.Target().Addr())
	assert.False(t, ok)
}

func Test_PollConnectError(t *testing.T) {
	// reserve a port and close it so nothing is listening
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	client := NewClient(model.ServerTarget{Host: "127.0.0.1", Port: port, Version: "1.18.2"}, NewStatusCache(time.Minute), time.Second)

	res, logMrt := client.Poll(context.Background())
	require.NotNil(t, logMrt)
	assert.Equal(t, errco.ERROR_BACKEND_CONNECT, logMrt.Cod, logMrt.String())
	assert.True(t, res.Placeholder)
}

func Test_PollProtocolErrors(t *testing.T) {
	type test struct {
		title   string
		respond func(c net.Conn)
		code    errco.LogCod
	}

	tests := []test{
		{"invalid json", respondWith(`{"version":`), errco.ERROR_BACKEND_PROTOCOL},
		{"wrong packet id", func(c net.Conn) { c.Write(mcproto.FramePacket([]byte{0x05, 0x02, '{', '}'})) }, errco.ERROR_BACKEND_PROTOCOL},
		{"malformed length", func(c net.Conn) { c.Write([]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0x01}) }, errco.ERROR_BACKEND_PROTOCOL},
		{"closed early", func(c net.Conn) { c.Write([]byte{0x40, 0x00}) }, errco.ERROR_BACKEND_CONNECT},
	}

	for _, test := range tests {
		fb := newFakeBackend(t, test.respond)
		client := NewClient(fb.target("1.16.5"), NewStatusCache(time.Minute), time.Second)

		res, logMrt := client.Poll(context.Background())
		require.NotNil(t, logMrt, test.title)
		assert.Equal(t, test.code, logMrt.Cod, "%s: %s", test.title, logMrt.String())
		assert.True(t, res.Placeholder, test.title)
	}
}

func Test_PollUnknownVersion(t *testing.T) {
	fb := newFakeBackend(t, respondWith(aliceStatus))
	client := NewClient(fb.target("not-a-version"), NewStatusCache(time.Minute), time.Second)

	_, logMrt := client.Poll(context.Background())
	require.Nil(t, logMrt)
	assert.Equal(t, mcproto.DefaultProtocol(), (<-fb.handshakes).ProtocolVersion)
}

func Test_PoolPollAll(t *testing.T) {
	ok1 := newFakeBackend(t, respondWith(aliceStatus))
	silent := newFakeBackend(t, nil)
	ok2 := newFakeBackend(t, respondWith(`{"version":{"name":"1.18.2","protocol":758},"players":{"max":5,"online":0}}`))

	pool := NewPool([]model.ServerTarget{ok1.target("1.16.5"), silent.target("1.16.5"), ok2.target("1.18.2")}, NewStatusCache(time.Minute), 200*time.Millisecond)

	start := time.Now()
	results := pool.PollAll(context.Background())
	assert.Less(t, time.Since(start), time.Second)

	require.Len(t, results, 3)
	assert.False(t, results[0].Placeholder)
	assert.True(t, results[1].Placeholder)
	assert.False(t, results[2].Placeholder)

	docs := Documents(results)
	require.Len(t, docs, 2)
	assert.Equal(t, "1.16.5", docs[0].Version.Name)
	assert.Equal(t, "1.18.2", docs[1].Version.Name)

	raws := RawDocuments(results)
	require.Len(t, raws, 2)
	assert.Equal(t, aliceStatus, string(raws[0]))
}
