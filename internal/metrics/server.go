package metrics

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes the Prometheus registry over HTTP, optionally restricted
// to an allowlist of source IPs or CIDR ranges.
type Server struct {
	httpServer *http.Server
	metrics    *Metrics
	addr       string
	path       string
	allowedIPs []*net.IPNet
	logger     *slog.Logger
}

func NewServerWithAllowedIPs(m *Metrics, addr, path string, allowedIPs []string, logger *slog.Logger) *Server {
	if addr == "" {
		addr = ":9090"
	}
	if path == "" {
		path = "/metrics"
	}

	s := &Server{
		metrics:    m,
		addr:       addr,
		path:       path,
		allowedIPs: parseAllowlist(allowedIPs, logger),
		logger:     logger,
	}
	if len(s.allowedIPs) > 0 {
		logger.Info("metrics IP filtering enabled", "allowed_networks", len(s.allowedIPs))
	}
	return s
}

// parseAllowlist accepts single addresses and CIDR ranges. Entries that do
// not parse are logged and skipped rather than failing startup.
func parseAllowlist(entries []string, logger *slog.Logger) []*net.IPNet {
	var nets []*net.IPNet
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			_, ipNet, err := net.ParseCIDR(entry)
			if err != nil {
				logger.Warn("invalid CIDR in allowed_ips", "cidr", entry, "error", err)
				continue
			}
			nets = append(nets, ipNet)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			logger.Warn("invalid IP in allowed_ips", "ip", entry)
			continue
		}
		mask := net.CIDRMask(128, 128)
		if ip.To4() != nil {
			mask = net.CIDRMask(32, 32)
		}
		nets = append(nets, &net.IPNet{IP: ip, Mask: mask})
	}
	return nets
}

// ListenAndServe starts the metrics HTTP server. /health stays unfiltered
// so load balancers can probe it.
func (s *Server) ListenAndServe() error {
	handler := promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})

	mux := http.NewServeMux()
	mux.Handle(s.path, s.ipFilterMiddleware(handler))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	s.httpServer = &http.Server{Addr: s.addr, Handler: mux}

	s.logger.Info("starting metrics server", "addr", s.addr, "path", s.path)
	return s.httpServer.ListenAndServe()
}

func (s *Server) ipFilterMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.allowedIPs) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		ip := s.getClientIP(r)
		if ip == nil || !s.isIPAllowed(ip) {
			s.logger.Warn("metrics access denied", "remote_addr", r.RemoteAddr)
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// getClientIP prefers proxy headers over RemoteAddr: X-Forwarded-For holds
// the original client first, then X-Real-IP.
func (s *Server) getClientIP(r *http.Request) net.IP {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return ip
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if ip := net.ParseIP(strings.TrimSpace(xri)); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return net.ParseIP(r.RemoteAddr)
	}
	return net.ParseIP(host)
}

func (s *Server) isIPAllowed(ip net.IP) bool {
	for _, ipNet := range s.allowedIPs {
		if ipNet.Contains(ip) {
			return true
		}
	}
	return false
}

// Shutdown gracefully shuts down the metrics server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("shutting down metrics server")
	return s.httpServer.Shutdown(ctx)
}
