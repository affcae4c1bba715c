package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/ioutil"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/smcp-go/smcp/codec"
	"github.com/smcp-go/smcp/message"
	"github.com/smcp-go/smcp/session"
)

var _ http.Handler = &Server{}

// NewServer returns a Server exposing api. opts may be nil for defaults.
func NewServer(api API, opts *Options) *Server {
	o := DefaultOptions()
	if opts != nil {
		o = *opts
	}
	s := &Server{
		Controller: NewServerController(api, nil),
		opts:       o,
		peers:      map[string]*peer{},
	}
	s.Controller.SetLogging(o.Logging)
	return s
}

// Server serves RPC calls over WebSocket and plain HTTP, and static files
// for every other request.
type Server struct {
	Controller *ServerController
	// Upgrader accepts WebSocket connections. WebSocket requests are refused
	// when it is nil.
	Upgrader Upgrader
	// Sessions enables per-peer sessions (optional). Calls made without a
	// session fail with ErrSessionUndefined.
	Sessions *session.Manager
	// Resolver instantiates constructor entries (optional).
	Resolver Resolver

	mu      sync.RWMutex
	opts    Options
	version uint64

	peersMu sync.Mutex
	peers   map[string]*peer
}

// SetHandlers sets the caller's codec handlers. The built-in handlers are
// appended.
func (s *Server) SetHandlers(handlers []codec.Handler) {
	s.Controller.Handlers = codec.Combine(handlers)
}

// Options returns a copy of the current options.
func (s *Server) Options() Options {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opts
}

// Version is incremented by every Apply.
func (s *Server) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Apply swaps in updated options. Requests already being served keep the
// options they started with.
func (s *Server) Apply(u OptionsUpdate) {
	s.mu.Lock()
	opts := s.opts
	opts.Apply(u)
	s.opts = opts
	s.version++
	s.mu.Unlock()

	s.Controller.SetLogging(opts.Logging)
	if u.Session != nil && s.Sessions != nil {
		s.Sessions.Apply(*u.Session)
	}
}

// peer is one persistent connection. It is the key of the controller's
// stream table.
type peer struct {
	conn Conn

	mu      sync.Mutex
	session string
}

func (p *peer) Session() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session
}

func (p *peer) setSession(id string) {
	p.mu.Lock()
	p.session = id
	p.mu.Unlock()
}

func (p *peer) send(msg *message.Message) error {
	data, binary, err := message.Serialize(msg)
	if err != nil {
		return err
	}
	return p.conn.WriteFrame(data, binary)
}

func (s *Server) bindPeer(id string, p *peer) {
	s.peersMu.Lock()
	s.peers[id] = p
	s.peersMu.Unlock()
}

func (s *Server) unbindPeer(p *peer) {
	s.peersMu.Lock()
	defer s.peersMu.Unlock()
	for id, other := range s.peers {
		if other == p {
			delete(s.peers, id)
		}
	}
}

func (s *Server) peerOf(id string) *peer {
	s.peersMu.Lock()
	defer s.peersMu.Unlock()
	return s.peers[id]
}

// resolve checks the caller's session before instantiating an entry.
func (s *Server) resolve(ctx context.Context, entry *Entry) (interface{}, error) {
	if s.Sessions != nil {
		id, err := CtxSessionID(ctx)
		if err != nil {
			return nil, ErrSessionUndefined
		}
		if err := s.Sessions.Touch(id); err != nil {
			return nil, err
		}
	}
	if s.Resolver != nil {
		return s.Resolver(ctx, entry)
	}
	return entry.New(), nil
}

func (s *Server) withSession(ctx context.Context, id string) context.Context {
	if s.Sessions == nil {
		return ctx
	}
	return withSession(ctx, id, s.Sessions)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	opts := s.Options()
	if isWebSocket(r) {
		if !opts.Protocols.WS || s.Upgrader == nil {
			http.Error(w, "websocket is disabled", http.StatusBadRequest)
			return
		}
		s.serveWebSocket(w, r, opts)
		return
	}

	// Plain requests, static files included, pass the token check and
	// get a session before they are routed.
	token, present := requestToken(r)
	if err := opts.checkToken(token, present); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var sessionID string
	if s.Sessions != nil {
		var err error
		sessionID, err = s.Sessions.Init(session.InitRequest{Request: r, Response: w})
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	if !isRPC(r) {
		s.serveStatic(w, r, opts)
		return
	}
	if !opts.Protocols.HTTP {
		http.Error(w, "http rpc is disabled", http.StatusMethodNotAllowed)
		return
	}
	s.serveRPC(w, r, opts, sessionID)
}

func isWebSocket(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

// isRPC reports whether r carries the RPC marker or a token.
func isRPC(r *http.Request) bool {
	q := r.URL.Query()
	for _, key := range []string{MarkerKey, TokenKey} {
		if _, ok := r.Header[http.CanonicalHeaderKey(key)]; ok {
			return true
		}
		if _, ok := q[key]; ok {
			return true
		}
	}
	return false
}

// headerWriter collects headers set before a WebSocket upgrade.
type headerWriter http.Header

func (h headerWriter) Header() http.Header         { return http.Header(h) }
func (h headerWriter) Write(b []byte) (int, error) { return len(b), nil }
func (h headerWriter) WriteHeader(int)             {}

func (s *Server) serveWebSocket(w http.ResponseWriter, r *http.Request, opts Options) {
	q := r.URL.Query()
	_, present := q[TokenKey]
	if err := opts.checkToken(q.Get(TokenKey), present); err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	header := http.Header{}
	var sessionID string
	if s.Sessions != nil {
		var err error
		sessionID, err = s.Sessions.Init(session.InitRequest{
			Request:  r,
			Response: headerWriter(header),
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	conn, err := s.Upgrader.Upgrade(r, w, header)
	if err != nil {
		logger.Printf("websocket upgrade error from %s: %s", r.RemoteAddr, err)
		return
	}
	if err := s.serveConn(conn, sessionID); err != nil {
		logger.Printf("Connection from %s closed: %s", r.RemoteAddr, err)
	}
}

// ServeConn serves calls arriving on conn until it closes. Calls keep
// running after a disconnect, but their streams are aborted.
func (s *Server) ServeConn(conn Conn) error {
	return s.serveConn(conn, "")
}

func (s *Server) serveConn(conn Conn, sessionID string) error {
	p := &peer{conn: conn, session: sessionID}
	if sessionID != "" {
		s.bindPeer(sessionID, p)
	}
	defer func() {
		s.Controller.CloseStreams(p)
		s.unbindPeer(p)
		conn.Close()
	}()

	onSession := func(requested *string) (string, error) {
		if s.Sessions == nil {
			return "", nil
		}
		req := session.InitRequest{ID: p.Session()}
		if requested != nil && *requested != "" {
			req.ID = *requested
		}
		id, err := s.Sessions.Init(req)
		if err != nil {
			return "", err
		}
		p.setSession(id)
		s.bindPeer(id, p)
		return id, nil
	}

	for {
		data, binary, err := conn.ReadFrame()
		if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}
		msg, err := message.Parse(data, binary)
		if err != nil {
			logger.Printf("Dropping invalid message: %s", err)
			continue
		}
		ex := Exchange{
			Peer:      p,
			Message:   msg,
			Send:      p.send,
			OnSession: onSession,
			Resolve:   s.resolve,
		}
		ctx := s.withSession(context.Background(), p.Session())
		if err := s.Controller.Dispatch(ctx, ex); err != nil {
			logger.Printf("Failed to process message %d: %s", msg.ID, err)
		}
	}
}

// requestToken returns the token of a plain HTTP request, from the header
// or else the query.
func requestToken(r *http.Request) (string, bool) {
	if values, ok := r.Header[http.CanonicalHeaderKey(TokenKey)]; ok && len(values) > 0 {
		return values[0], true
	}
	q := r.URL.Query()
	if _, ok := q[TokenKey]; ok {
		return q.Get(TokenKey), true
	}
	return "", false
}

// errorStatus maps a failure to read or process a request to its status.
func errorStatus(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func (s *Server) serveRPC(w http.ResponseWriter, r *http.Request, opts Options, sessionID string) {
	ctx := r.Context()
	if sessionID != "" {
		ctx = s.withSession(ctx, sessionID)
	}

	// A stream upload always reaches its sink, so an oversized one aborts
	// the call waiting on it. Reads past the limit fail, declared length or
	// not, and a truncated stream is never taken as complete.
	isStream := r.URL.Query().Get("type") == strconv.Itoa(int(message.TypeStreamResponseData))
	if !isStream && opts.MaxContentLength > 0 && r.ContentLength > opts.MaxContentLength {
		http.Error(w, "request too large", http.StatusRequestEntityTooLarge)
		return
	}
	var body io.Reader = r.Body
	if opts.MaxContentLength > 0 {
		body = http.MaxBytesReader(w, r.Body, opts.MaxContentLength)
	}

	var msg *message.Message
	var err error
	if isStream {
		// The whole body is the stream of a call in flight on the
		// WebSocket connection holding the same session.
		msg, err = message.ParseHTTP(nil, r.URL, body)
	} else {
		var data []byte
		data, err = ioutil.ReadAll(body)
		if err == nil {
			msg, err = message.ParseHTTP(data, r.URL, nil)
		}
	}
	if err != nil {
		http.Error(w, err.Error(), errorStatus(err))
		return
	}

	var reply *message.Message
	ex := Exchange{
		Message: msg,
		Send: func(m *message.Message) error {
			switch m.Type {
			case message.TypeJSONResponse, message.TypeSessionResponse:
				reply = m
			case message.TypeJSONResponseCallback:
				return codec.ErrCallbacksUnsupported
			}
			return nil
		},
		Resolve: s.resolve,
	}
	if msg.Type == message.TypeStreamResponseData && sessionID != "" {
		if p := s.peerOf(sessionID); p != nil {
			ex.Peer = p
		}
	}
	if msg.Type == message.TypeSessionRequest {
		ex.OnSession = func(*string) (string, error) { return sessionID, nil }
	}
	if err := s.Controller.Process(ctx, ex); err != nil {
		http.Error(w, err.Error(), errorStatus(err))
		return
	}
	if reply == nil {
		w.WriteHeader(http.StatusOK)
		return
	}

	data, _, err := message.Serialize(reply)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", httpContentType)
	if reply.Type == message.TypeJSONResponse && hasError(reply.Result) {
		w.WriteHeader(http.StatusBadRequest)
	}
	w.Write(data)
}

// hasError reports whether an [error, data] tuple carries an error.
func hasError(tuple json.RawMessage) bool {
	var parts []json.RawMessage
	if err := json.Unmarshal(tuple, &parts); err != nil || len(parts) == 0 {
		return false
	}
	return !bytes.Equal(bytes.TrimSpace(parts[0]), []byte("null"))
}

func (s *Server) serveStatic(w http.ResponseWriter, r *http.Request, opts Options) {
	if opts.PublicDir == "" {
		return
	}
	name := path.Clean("/" + r.URL.Path)
	if name == "/" {
		name = "/index.html"
	}
	fullpath := filepath.Join(opts.PublicDir, filepath.FromSlash(name))
	f, err := os.Open(fullpath)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil || stat.IsDir() {
		http.NotFound(w, r)
		return
	}
	http.ServeContent(w, r, stat.Name(), stat.ModTime(), f)
}
