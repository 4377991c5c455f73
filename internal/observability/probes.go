package observability

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
)

// ReadinessReport is the readiness body. Status holds "up" or
// "down: <reason>" per checker name.
type ReadinessReport struct {
	Ready  bool              `json:"ready"`
	Status map[string]string `json:"status"`
}

func (s *Server) liveness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

// readiness answers 503 unless every checker passes within the timeout.
func (s *Server) readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Timeout)
	defer cancel()

	report := s.runCheckers(ctx)

	code := http.StatusOK
	if !report.Ready {
		code = http.StatusServiceUnavailable
	}
	render.Status(r, code)
	render.JSON(w, r, report)
}

type probeResult struct {
	name string
	err  error
}

// runCheckers fans the checkers out and collects one result each.
func (s *Server) runCheckers(ctx context.Context) ReadinessReport {
	results := make(chan probeResult, len(s.checkers))
	for _, c := range s.checkers {
		go func() {
			results <- probeResult{name: c.Name(), err: c.Check(ctx)}
		}()
	}

	report := ReadinessReport{Ready: true, Status: make(map[string]string, len(s.checkers))}
	for range s.checkers {
		res := <-results
		if res.err == nil {
			report.Status[res.name] = "up"
			continue
		}
		report.Ready = false
		report.Status[res.name] = "down: " + res.err.Error()
		// Orchestrators retry readiness, so a failure is a warning.
		s.logger.Warn("readiness check failed", slog.String("component", res.name), slog.Any("error", res.err))
	}
	return report
}
