/*************************************************************************
 * bcproxy — a BatMUD BC-mode translating proxy
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package proxy is the ProxyLoop: an accept loop that, for each
// downstream telnet client, dials the upstream MUD server, sends the
// one-time BC activation line, and runs two concurrent unidirectional
// forwarders for the lifetime of the pair.
package proxy

import (
	"crypto/tls"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/x1a0/bcproxy/internal/codec"
	"github.com/x1a0/bcproxy/internal/config"
	"github.com/x1a0/bcproxy/internal/log"
	"github.com/x1a0/bcproxy/internal/render"
	"github.com/x1a0/bcproxy/internal/sink"
)

// maxViolationStreak bounds how many consecutive decode violations
// (oversize tag, bad close, malformed digits) are tolerated on one
// connection before it is dropped as hopelessly desynced.
const maxViolationStreak = 32

const readBufSize = 8192

// dialTimeout bounds the upstream TCP/TLS dial so a hung MUD server
// doesn't leak an accept-loop goroutine indefinitely.
const dialTimeout = 15 * time.Second

type closer interface {
	Close() error
}

// Server owns the accept loop's shared state: the live-connection
// registry used for forced shutdown and the optional room sink.
type Server struct {
	cfg *config.Config
	lg  *log.Logger
	snk *sink.Sink

	mtx         sync.Mutex
	connClosers map[int]closer
	nextConnID  int

	wg sync.WaitGroup
}

// New builds a Server. snk may be nil to disable room persistence.
func New(cfg *config.Config, lg *log.Logger, snk *sink.Sink) *Server {
	return &Server{
		cfg:         cfg,
		lg:          lg,
		snk:         snk,
		connClosers: make(map[int]closer),
	}
}

// Listen binds the configured listen address and returns the raw
// listener; callers decide when to start Serve/Accept so shutdown
// sequencing (close listener, then close connections, then wait) is
// explicit to the caller rather than hidden in this package.
func (s *Server) Listen() (net.Listener, error) {
	return net.Listen("tcp", s.cfg.ListenAddress)
}

// Serve runs the accept loop on l until it's closed. It tracks itself
// on the Server's WaitGroup so Wait can be used for drain-on-shutdown.
func (s *Server) Serve(l net.Listener) {
	s.wg.Add(1)
	defer s.wg.Done()
	var failCount int
	for {
		conn, err := l.Accept()
		if err != nil {
			if strings.Contains(err.Error(), "closed") {
				return
			}
			failCount++
			s.lg.Warn("accept failed", log.KVErr(err))
			if failCount > 3 {
				return
			}
			continue
		}
		failCount = 0
		id := s.addConn(conn)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.delConn(id)
			s.handle(conn)
		}()
	}
}

// Wait blocks until every tracked goroutine (the acceptor and every
// live connection pair) has returned.
func (s *Server) Wait() {
	s.wg.Wait()
}

// CloseAll force-closes every tracked connection, used by the
// caller's shutdown sequence after the listener itself is closed.
func (s *Server) CloseAll() {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	for _, c := range s.connClosers {
		c.Close()
	}
}

// ConnCount reports how many accepted connections are currently
// tracked; the accept loop itself is not counted.
func (s *Server) ConnCount() int {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return len(s.connClosers)
}

func (s *Server) addConn(c closer) int {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.nextConnID++
	id := s.nextConnID
	s.connClosers[id] = c
	return id
}

func (s *Server) delConn(id int) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	delete(s.connClosers, id)
}

// handle dials the upstream for one downstream connection, sends the
// activation line, and runs both forwarders until both have returned.
func (s *Server) handle(down net.Conn) {
	defer down.Close()
	s.lg.Info("accepted connection", log.KV("remote", down.RemoteAddr()))

	up, err := s.dialUpstream()
	if err != nil {
		s.lg.Error("upstream dial failed", log.KVErr(err))
		return
	}
	defer up.Close()

	if _, err := up.Write(s.cfg.Activation); err != nil {
		s.lg.Error("activation write failed", log.KVErr(err))
		return
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		forwardRaw(up, down)
	}()
	go func() {
		defer wg.Done()
		s.forwardTranslated(down, up)
	}()
	wg.Wait()
	s.lg.Info("connection closed", log.KV("remote", down.RemoteAddr()))
}

func (s *Server) dialUpstream() (net.Conn, error) {
	dialer := &net.Dialer{Timeout: dialTimeout}
	switch s.cfg.UpstreamScheme {
	case config.SchemeTLS:
		tlsCfg := &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: s.cfg.InsecureSkipVerify,
			ServerName:         s.cfg.UpstreamServerName,
		}
		return tls.DialWithDialer(dialer, "tcp", s.cfg.UpstreamAddress, tlsCfg)
	default:
		return dialer.Dial("tcp", s.cfg.UpstreamAddress)
	}
}

// forwardRaw copies client-to-server bytes verbatim; the upstream
// never needs BC markup translated in this direction.
func forwardRaw(dst, src net.Conn) {
	io.Copy(dst, src)
	closeWrite(dst)
}

func closeWrite(c net.Conn) {
	type halfCloser interface {
		CloseWrite() error
	}
	if hc, ok := c.(halfCloser); ok {
		hc.CloseWrite()
	} else {
		c.Close()
	}
}

// forwardTranslated reads upstream bytes, decodes BC markup, and
// writes the rendered client-bound bytes to dst. A run of consecutive
// decode violations past maxViolationStreak drops the connection
// rather than retrying forever against a desynced or adversarial
// stream.
func (s *Server) forwardTranslated(dst net.Conn, src net.Conn) {
	d := codec.New(
		codec.WithMaxDepth(s.cfg.MaxTagDepth),
		codec.WithMaxTagBytes(s.cfg.MaxTagBytes),
		codec.WithWarnFunc(s.lg.Warnf),
	)
	r := render.New(s.lg.Warnf)
	buf := make([]byte, readBufSize)
	lastViolations := 0

	for {
		n, err := src.Read(buf)
		if n > 0 {
			d.Feed(buf[:n])
			if !s.drain(dst, d, r, &lastViolations) {
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// drain pulls every ready frame off d, writing rendered bytes to dst.
// Returns false if the connection should be dropped (violation budget
// exhausted or a write error).
func (s *Server) drain(dst net.Conn, d *codec.Decoder, r *render.Renderer, lastViolations *int) bool {
	for {
		f := d.Next()
		switch f.Kind {
		case codec.FrameNeedMore:
			return true
		case codec.FrameText:
			if _, err := dst.Write(f.Text); err != nil {
				return false
			}
		case codec.FrameTag:
			res := r.Transform(f.Tag)
			if _, err := dst.Write(res.Bytes); err != nil {
				return false
			}
			if res.Room != nil && s.snk != nil {
				s.snk.Submit(*res.Room)
			}
		}
		if v := d.Violations(); v > *lastViolations {
			streak := v - *lastViolations
			*lastViolations = v
			if streak >= maxViolationStreak {
				s.lg.Warn("dropping connection after violation streak",
					log.KV("streak", streak), log.KV("remote", dst.RemoteAddr()))
				return false
			}
		}
	}
}
