package webapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"mortar/lib/aggregate"
	"mortar/lib/backend"
	"mortar/lib/errco"
	"mortar/lib/mcproto"
	"mortar/lib/model"
	"mortar/lib/servstats"
)

// maxOffsetSize limits the body of an offset update
const maxOffsetSize = 1 << 20

// Server is the http api exposing backend statuses and the composite status
type Server struct {
	Pool    *backend.Pool
	Offset  *aggregate.OffsetStore
	Favicon string
	Health  func() *model.Health

	httpServer *http.Server
}

// NewServer returns the http api server.
// health can be nil, in which case /health answers 404.
func NewServer(pool *backend.Pool, offset *aggregate.OffsetStore, favicon string, health func() *model.Health) *Server {
	return &Server{
		Pool:    pool,
		Offset:  offset,
		Favicon: favicon,
		Health:  health,
	}
}

// Handler returns the http handler of the api
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /server", s.handleServer)
	mux.HandleFunc("GET /serverlist", s.handleServerList)
	mux.HandleFunc("GET /offset", s.handleOffsetGet)
	mux.HandleFunc("PUT /offset", s.handleOffsetPut)
	if s.Health != nil {
		mux.HandleFunc("GET /health", s.handleHealth)
	}
	return cors(mux)
}

// ListenAndServe serves the api on addr until Shutdown is called.
// The listener is opened before returning so that addr can be used right away.
func (s *Server) ListenAndServe(addr string) (net.Addr, *errco.MrtLog) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errco.NewLog(errco.TYPE_ERR, errco.LVL_0, errco.ERROR_WEB_LISTEN, err.Error())
	}

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		err := s.httpServer.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errco.NewLogln(errco.TYPE_ERR, errco.LVL_0, errco.ERROR_WEB_LISTEN, err.Error())
		}
	}()

	errco.NewLogln(errco.TYPE_INF, errco.LVL_1, errco.ERROR_NIL, "web api listening on http://%s", ln.Addr().String())

	return ln.Addr(), nil
}

// Shutdown stops the http server
func (s *Server) Shutdown(ctx context.Context) {
	if s.httpServer == nil {
		return
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		errco.NewLogln(errco.TYPE_WAR, errco.LVL_1, errco.ERROR_WEB_LISTEN, "web api shutdown: %s", err.Error())
	}
}

// handleServer answers with the list of backend statuses, failed polls omitted
func (s *Server) handleServer(w http.ResponseWriter, r *http.Request) {
	results := s.Pool.PollAll(r.Context())

	// raw documents are joined as they are to avoid dropping unknown fields
	body := bytes.NewBufferString("[")
	for i, raw := range backend.RawDocuments(results) {
		if i > 0 {
			body.WriteByte(',')
		}
		body.Write(raw)
	}
	body.WriteByte(']')

	writeJSON(w, http.StatusOK, body.Bytes())
}

// handleServerList answers with the composite status merged with the offset
func (s *Server) handleServerList(w http.ResponseWriter, r *http.Request) {
	protocol, err := strconv.Atoi(r.URL.Query().Get("protocolVersion"))
	if err != nil || protocol == 0 {
		protocol = int(mcproto.DefaultProtocol())
	}

	errco.NewLogln(errco.TYPE_INF, errco.LVL_3, errco.ERROR_NIL, "composite status requested by %s (protocol %d)", clientAddr(r), protocol)

	results := s.Pool.PollAll(r.Context())
	doc := aggregate.Compose(backend.Documents(results), int32(protocol), s.Favicon)

	data, logMrt := s.Offset.Merge(doc)
	if logMrt != nil {
		logMrt.Log(true)
		http.Error(w, logMrt.String(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, data)
}

func (s *Server) handleOffsetGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Offset.Get())
}

func (s *Server) handleOffsetPut(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxOffsetSize))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if logMrt := s.Offset.Set(body); logMrt != nil {
		logMrt.Log(true)
		http.Error(w, logMrt.String(), http.StatusBadRequest)
		return
	}

	errco.NewLogln(errco.TYPE_INF, errco.LVL_1, errco.ERROR_NIL, "offset updated by %s (%d keys)", clientAddr(r), s.Offset.Len())
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.Health()
	health.Connections = servstats.Stats.Snapshot()

	data, err := json.Marshal(health)
	if err != nil {
		errco.NewLogln(errco.TYPE_ERR, errco.LVL_3, errco.ERROR_JSON_MARSHAL, err.Error())
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, data)
}

func writeJSON(w http.ResponseWriter, code int, data []byte) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	w.Write(data)
}

// clientAddr returns the forwarded client address if present, the remote address otherwise
func clientAddr(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	return r.RemoteAddr
}
