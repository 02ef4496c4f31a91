package server

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/text/encoding/unicode"

	"github.com/f4ah6o/minihttpd/internal/pathres"
	"github.com/f4ah6o/minihttpd/internal/response"
)

// maxRequestBytes is the most that is read from a connection; the request
// line has to arrive within the first read.
const maxRequestBytes = 10 << 10

// indexFiles are tried in order for directory requests.
var indexFiles = []string{"index.htm", "index.html"}

var errMalformed = errors.New("malformed request line")

// conn owns one accepted connection. Close is idempotent so the response
// writer and the deferred cleanup can both call it.
type conn struct {
	net.Conn
	idle time.Time
	log  *slog.Logger

	once     sync.Once
	closeErr error
}

func (c *conn) Close() error {
	c.once.Do(func() { c.closeErr = c.Conn.Close() })
	return c.closeErr
}

// deadline is now+d, but never later than the end of the idle window.
func (c *conn) deadline(d time.Duration) time.Time {
	t := time.Now().Add(d)
	if c.idle.Before(t) {
		return c.idle
	}
	return t
}

type request struct {
	method string
	target string
	path   pathres.Clean
}

func (s *Server) serveConn(rwc net.Conn) {
	c := &conn{
		Conn: rwc,
		idle: time.Now().Add(s.cfg.IdleTimeout.Std()),
		log:  s.log.With("conn", uuid.NewString(), "remote", rwc.RemoteAddr().String()),
	}
	defer func() {
		if err := recover(); err != nil {
			c.log.Error("panic recovered", "err", err)
		}
		c.Close()
	}()

	req, err := s.readRequest(c)
	if err != nil {
		c.log.Debug("dropping connection", "err", err)
		return
	}
	c.log = c.log.With("method", req.method, "target", req.target)

	if req.method != "GET" && req.method != "POST" {
		s.respond(c, response.StatusNotImplemented, 0, response.NotImplemented)
		return
	}

	switch req.path.Kind {
	case pathres.Directory:
		s.serveIndex(c, req.path)
	default:
		s.serveFile(c, req.path)
	}
}

// readRequest performs the single read and parses the request line.
func (s *Server) readRequest(c *conn) (*request, error) {
	if err := c.SetReadDeadline(c.deadline(s.cfg.ReadTimeout.Std())); err != nil {
		return nil, fmt.Errorf("set read deadline: %w", err)
	}
	buf := make([]byte, maxRequestBytes)
	n, err := c.Read(buf)
	if n == 0 {
		if err == nil {
			err = errMalformed
		}
		return nil, fmt.Errorf("read request: %w", err)
	}
	return parseRequest(buf[:n])
}

// parseRequest decodes raw as UTF-8 and splits its first line on single
// spaces. Only the method and target are used; anything after is ignored.
func parseRequest(raw []byte) (*request, error) {
	text, err := unicode.UTF8.NewDecoder().Bytes(raw)
	if err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	line, _, _ := strings.Cut(string(text), "\n")
	line = strings.TrimSuffix(line, "\r")

	parts := strings.Split(line, " ")
	if len(parts) < 2 || parts[0] == "" {
		return nil, fmt.Errorf("%w: %q", errMalformed, line)
	}

	rawPath, _, _ := strings.Cut(parts[1], "?")
	return &request{
		method: parts[0],
		target: parts[1],
		path:   pathres.Resolve(rawPath),
	}, nil
}

func (s *Server) serveFile(c *conn, p pathres.Clean) {
	ext := p.Ext()
	contentType, ok := s.mime.Lookup(ext)
	if !ok {
		// Unknown extensions get no response at all.
		c.log.Debug("unregistered extension, dropping", "ext", ext)
		return
	}

	name, err := pathres.Locate(s.root, p)
	if err != nil {
		c.log.Warn("rejected path", "path", p.Path, "err", err)
		s.respond(c, response.StatusNotFound, 0, response.NotFound)
		return
	}
	if _, err := fs.Stat(s.fsys, name); err != nil {
		s.respond(c, response.StatusNotFound, 0, response.NotFound)
		return
	}
	s.sendFile(c, name, contentType)
}

func (s *Server) serveIndex(c *conn, dir pathres.Clean) {
	for _, index := range indexFiles {
		name, err := pathres.Locate(s.root, dir.Join(index))
		if err != nil {
			c.log.Warn("rejected path", "path", dir.Path, "err", err)
			break
		}
		if _, err := fs.Stat(s.fsys, name); err == nil {
			s.sendFile(c, name, response.ContentTypeHTML)
			return
		}
	}
	s.respond(c, response.StatusNotFound, 0, response.NotFound)
}

// sendFile reads name whole and answers 200. A read failure closes the
// connection without a response.
func (s *Server) sendFile(c *conn, name, contentType string) {
	body, err := fs.ReadFile(s.fsys, name)
	if err != nil {
		c.log.Debug("read file failed, dropping", "file", name, "err", err)
		return
	}
	s.respond(c, response.StatusOK, len(body), func(w io.WriteCloser) error {
		return response.OK(w, body, contentType)
	})
}

// respond arms the write deadline and runs send. A connection whose
// deadline cannot be set is dropped without a response.
func (s *Server) respond(c *conn, status string, size int, send func(io.WriteCloser) error) {
	if err := c.SetWriteDeadline(c.deadline(s.cfg.WriteTimeout.Std())); err != nil {
		c.log.Debug("set write deadline failed, dropping", "status", status, "err", err)
		return
	}
	if err := send(c); err != nil {
		c.log.Debug("write response failed", "status", status, "err", err)
		return
	}
	if size > 0 {
		c.log.Info("served", "status", status, "size", humanize.Bytes(uint64(size)))
		return
	}
	c.log.Info("served", "status", status)
}
