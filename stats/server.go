package stats

import (
	"fmt"

	"github.com/prometheus/common/expfmt"
	"github.com/valyala/fasthttp"

	"github.com/matthutchison/cryoempipe/cmn/nlog"
)

// Server is a minimal read-only HTTP surface: /metrics (Prometheus text
// exposition, hand-encoded via expfmt since the pack carries no
// fasthttpadaptor) and /status (a one-line human-readable liveness
// check). There is no control-plane route - this is observability only.
type Server struct {
	registry *Registry
	srv      *fasthttp.Server
}

// NewServer builds a Server bound to registry's metrics.
func NewServer(registry *Registry) *Server {
	s := &Server{registry: registry}
	s.srv = &fasthttp.Server{Handler: s.handle}
	return s
}

// ListenAndServe blocks serving addr (e.g. ":9191") until the listener
// fails or the process exits - there is no graceful-shutdown path, since
// shutdown is process-level throughout this daemon.
func (s *Server) ListenAndServe(addr string) error {
	nlog.Infof("stats server listening on %s", addr)
	return s.srv.ListenAndServe(addr)
}

func (s *Server) handle(ctx *fasthttp.RequestCtx) {
	switch string(ctx.Path()) {
	case "/metrics":
		s.serveMetrics(ctx)
	case "/status":
		ctx.SetContentType("text/plain; charset=utf-8")
		fmt.Fprintln(ctx, "ok")
	default:
		ctx.SetStatusCode(fasthttp.StatusNotFound)
	}
}

func (s *Server) serveMetrics(ctx *fasthttp.RequestCtx) {
	families, err := s.registry.Gatherer().Gather()
	if err != nil {
		nlog.Warningf("gathering metrics: %v", err)
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetContentType(string(expfmt.FmtText))
	enc := expfmt.NewEncoder(ctx, expfmt.FmtText)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			nlog.Warningf("encoding metric family %s: %v", mf.GetName(), err)
			return
		}
	}
}
