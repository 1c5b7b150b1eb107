package webapi

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mortar/lib/aggregate"
	"mortar/lib/backend"
	"mortar/lib/mcproto"
	"mortar/lib/model"
)

const aliceStatus = `{"version":{"name":"1.16.5","protocol":754},"players":{"max":20,"online":1,"sample":[{"name":"Alice","id":"a"}]},"forgeData":{"mods":[]}}`

// statusBackend starts a loopback backend answering every status request with status
func statusBackend(t *testing.T, status string) model.ServerTarget {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				buf := []byte{}
				data := make([]byte, 512)
				for {
					n, err := c.Read(data)
					if err != nil {
						return
					}
					buf = append(buf, data[:n]...)
					// handshake followed by the status request [1 0]
					if len(buf) >= 2 && buf[len(buf)-2] == 1 && buf[len(buf)-1] == 0 {
						c.Write(mcproto.BuildStatusResponse([]byte(status)))
						return
					}
				}
			}(c)
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return model.ServerTarget{Host: "127.0.0.1", Port: addr.Port, Version: "1.16.5"}
}

// deadTarget returns a target nothing is listening on
func deadTarget(t *testing.T) model.ServerTarget {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return model.ServerTarget{Host: "127.0.0.1", Port: port, Version: "1.16.5"}
}

func newTestServer(t *testing.T, targets ...model.ServerTarget) (*Server, *httptest.Server) {
	pool := backend.NewPool(targets, backend.NewStatusCache(time.Minute), 300*time.Millisecond)
	s := NewServer(pool, aggregate.NewOffsetStore(), "data:image/png;base64,AAAA", func() *model.Health {
		return &model.Health{ID: "test", Version: "v0"}
	})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func Test_Server(t *testing.T) {
	_, ts := newTestServer(t, statusBackend(t, aliceStatus), deadTarget(t))

	resp, body := get(t, ts.URL+"/server")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json; charset=utf-8", resp.Header.Get("Content-Type"))

	// failed backend omitted, unknown fields kept
	var docs []json.RawMessage
	require.NoError(t, json.Unmarshal(body, &docs))
	require.Len(t, docs, 1)
	assert.JSONEq(t, aliceStatus, string(docs[0]))
}

func Test_ServerList(t *testing.T) {
	_, ts := newTestServer(t, statusBackend(t, aliceStatus), deadTarget(t))

	_, body := get(t, ts.URL+"/serverlist?protocolVersion=762")

	doc := &model.StatusDocument{}
	require.NoError(t, json.Unmarshal(body, doc))
	assert.Equal(t, model.StatusVersion{Name: "mortar", Protocol: 762}, doc.Version)
	assert.Equal(t, []model.PlayerSample{{Name: "Alice -- 1.16.5", ID: "a"}}, doc.Players.Sample)
	assert.Equal(t, 1, doc.Players.Online)
	assert.Equal(t, "data:image/png;base64,AAAA", doc.Favicon)

	// missing or invalid protocol defaults to 1.16.5
	for _, q := range []string{"", "?protocolVersion=abc"} {
		_, body := get(t, ts.URL+"/serverlist"+q)
		doc := &model.StatusDocument{}
		require.NoError(t, json.Unmarshal(body, doc))
		assert.Equal(t, int32(754), doc.Version.Protocol)
	}
}

func Test_Offset(t *testing.T) {
	_, ts := newTestServer(t)

	put := func(body string) int {
		req, err := http.NewRequest(http.MethodPut, ts.URL+"/offset", strings.NewReader(body))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	_, body := get(t, ts.URL+"/offset")
	assert.JSONEq(t, `{}`, string(body))

	assert.Equal(t, http.StatusOK, put(`{"players":{"max":100,"online":7,"sample":[]},"test":"hello world!"}`))

	_, body = get(t, ts.URL+"/offset")
	assert.JSONEq(t, `{"players":{"max":100,"online":7,"sample":[]},"test":"hello world!"}`, string(body))

	// offset applied over the composite status
	_, body = get(t, ts.URL+"/serverlist")
	var merged map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body, &merged))
	assert.JSONEq(t, `{"max":100,"online":7,"sample":[]}`, string(merged["players"]))
	assert.JSONEq(t, `"hello world!"`, string(merged["test"]))
	assert.JSONEq(t, `{"name":"mortar","protocol":754}`, string(merged["version"]))

	// invalid offset rejected, previous kept
	assert.Equal(t, http.StatusBadRequest, put(`[1]`))
	_, body = get(t, ts.URL+"/offset")
	assert.Contains(t, string(body), "hello world!")

	// put replaces
	assert.Equal(t, http.StatusOK, put(`{}`))
	_, body = get(t, ts.URL+"/offset")
	assert.JSONEq(t, `{}`, string(body))
}

func Test_Health(t *testing.T) {
	_, ts := newTestServer(t)

	resp, body := get(t, ts.URL+"/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	health := &model.Health{}
	require.NoError(t, json.Unmarshal(body, health))
	assert.Equal(t, "test", health.ID)
}

func Test_CORS(t *testing.T) {
	_, ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/offset", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://example.com")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://example.com", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "PUT,POST,GET,DELETE,OPTIONS", resp.Header.Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))

	// every response carries the headers
	resp, _ = get(t, ts.URL+"/offset")
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Content-Type", resp.Header.Get("Access-Control-Allow-Headers"))

	resp, _ = get(t, ts.URL+"/unknown")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Content-Disposition", resp.Header.Get("Access-Control-Expose-Headers"))
}

func Test_ListenAndServe(t *testing.T) {
	s, _ := newTestServer(t)

	addr, logMrt := s.ListenAndServe("127.0.0.1:0")
	require.Nil(t, logMrt)
	defer s.Shutdown(context.Background())

	_, body := get(t, "http://"+addr.String()+"/offset")
	assert.JSONEq(t, `{}`, string(body))
}
