// Package http implements the BEP-3/BEP-23/BEP-48 announce and scrape
// protocol over plain HTTP, using a request parser and response writer
// built directly on net.Conn rather than net/http — grounded on the
// teacher's frontend/http package (routes, query parsing, bencode
// responses) but with net/http and httprouter replaced, since spec §4.F
// requires a minimal request-line-plus-one-header parser bounded at 8192
// bytes rather than a general-purpose HTTP server.
package http

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"time"

	"github.com/swarmkeep/swarmkeep/access"
	"github.com/swarmkeep/swarmkeep/bittorrent"
	"github.com/swarmkeep/swarmkeep/pkg/log"
	"github.com/swarmkeep/swarmkeep/service"
	"github.com/swarmkeep/swarmkeep/stats"
)

// Config controls how the HTTP frontend trusts proxies and bounds
// per-connection work (spec §4.B "MayProxy", §6 "access.proxy").
type Config struct {
	RequestTimeout    time.Duration
	TrustedForwardFor bool // only honor X-Forwarded-For from MayProxy-listed IPs
	AllowIPSpoofing   bool

	// RedirectURL is where "GET /" sends clients (spec §4.F, §6 "-r
	// <url>"/"tracker.redirect_url"). Empty means "GET /" 404s instead.
	RedirectURL string

	// StatsPath is the route /stats answers on (§6 "access.stats_path").
	// Empty defaults to "/stats".
	StatsPath string
}

// Server answers announce/scrape/stats requests on a TCP listener.
type Server struct {
	cfg   Config
	logic *service.Logic
	perms *access.IPPermissions
	st    *stats.Stats
}

// NewServer builds an HTTP frontend bound to logic.
func NewServer(cfg Config, logic *service.Logic, perms *access.IPPermissions, st *stats.Stats) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	if cfg.StatsPath == "" {
		cfg.StatsPath = "/stats"
	}
	return &Server{cfg: cfg, logic: logic, perms: perms, st: st}
}

// Serve accepts connections on ln until ctx is canceled or Accept fails.
// Each connection is handled on its own goroutine and closed after one
// request, matching this tracker's HTTP/1.0-only, no-keep-alive parser.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(s.cfg.RequestTimeout))

	w := bufio.NewWriter(conn)
	req, err := readRequest(bufio.NewReaderSize(conn, maxRequestLine), conn.RemoteAddr())
	if err != nil {
		log.Debug("http: failed to parse request", log.Fields{"err": err.Error()})
		code := 400
		if err == ErrRequestTooLarge {
			code = 500
		}
		writeBareStatus(w, code)
		w.Flush()
		return
	}

	s.route(conn, req, w)
	w.Flush()
}

func (s *Server) route(conn net.Conn, req *request, w *bufio.Writer) {
	trustFwd := s.cfg.TrustedForwardFor && s.perms.Check(hostOf(conn.RemoteAddr()), access.MayProxy)

	switch req.Path {
	case "/":
		s.handleRoot(w)
	case "/announce":
		writeStatusLine(w, 200)
		s.handleAnnounce(req, w, trustFwd)
	case "/scrape":
		writeStatusLine(w, 200)
		s.handleScrape(req, w)
	case s.cfg.StatsPath:
		writeStatusLine(w, 200)
		s.handleStats(conn, req, w)
	default:
		writeBareStatus(w, 404)
	}
}

// handleRoot answers "GET /" with a 302 to the configured redirect target,
// or a bare 404 if none was configured (spec §4.F).
func (s *Server) handleRoot(w *bufio.Writer) {
	if s.cfg.RedirectURL == "" {
		writeBareStatus(w, 404)
		return
	}
	fmt.Fprintf(w, "HTTP/1.0 302 Found\r\nLocation: %s\r\nConnection: close\r\n\r\n", s.cfg.RedirectURL)
}

func (s *Server) handleAnnounce(req *request, w *bufio.Writer, trustFwd bool) {
	ar, err := parseAnnounce(req, trustFwd, s.cfg.AllowIPSpoofing)
	if err != nil {
		writeError(w, err)
		return
	}
	resp, err := s.logic.HandleAnnounce(context.Background(), ar)
	if err != nil {
		writeError(w, err)
		return
	}
	writeAnnounceResponse(w, &resp)
}

func (s *Server) handleScrape(req *request, w *bufio.Writer) {
	sr, err := parseScrape(req)
	if err != nil {
		writeError(w, err)
		return
	}
	resp, err := s.logic.HandleScrape(context.Background(), sr)
	if err != nil {
		writeError(w, err)
		return
	}
	writeScrapeResponse(w, &resp)
}

func (s *Server) handleStats(conn net.Conn, req *request, w *bufio.Writer) {
	if !s.perms.Check(hostOf(conn.RemoteAddr()), access.MayStat) {
		writeError(w, bittorrent.ClientError("not authorized to view stats"))
		return
	}
	qp, _ := bittorrent.NewQueryParams(req.RawQuery)
	modeStr, _ := qp.String("mode")
	verbose := qp.Bool("verbose")

	gauges := s.logic.Gauges()
	snap := s.st.Snapshot(gauges, verbose)
	w.Write(stats.Render(snap, stats.ParseMode(modeStr)))
}

func writeStatusLine(w *bufio.Writer, code int) {
	fmt.Fprintf(w, "HTTP/1.0 %d OK\r\nContent-Type: text/plain\r\nConnection: close\r\n\r\n", code)
}

// writeBareStatus writes a status line with no body and no content
// headers, for the non-conforming/not-found responses spec §4.F and §7
// call for ("bare HTTP/1.0 NNN Text\r\n\r\n with no body").
func writeBareStatus(w *bufio.Writer, code int) {
	fmt.Fprintf(w, "HTTP/1.0 %d %s\r\n\r\n", code, statusText(code))
}

func statusText(code int) string {
	switch code {
	case 302:
		return "Found"
	case 400:
		return "Bad Request"
	case 404:
		return "Not Found"
	case 500:
		return "Internal Server Error"
	default:
		return "Error"
	}
}

func hostOf(addr net.Addr) string {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
