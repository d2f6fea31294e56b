package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync/atomic"
	"time"

	"talahum/internal/core"
	applog "talahum/internal/log"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.uptime).Round(time.Second).String(),
	})
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]interface{})

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := s.checks[name](ctx); err != nil {
			checks[name] = fmt.Sprintf("failed: %v", err)
			status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed",
				"check", name, applog.FieldError, err)
			continue
		}
		checks[name] = "ok"
	}

	checks["rate_limiter"] = map[string]interface{}{
		"active_clients": s.rateLimiter.ActiveClients(),
		"status":         "ok",
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	securityMetrics := s.detector.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	traceMetrics := s.traceMiddleware.GetMetrics()

	counter := func(name, help string, v int64) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s counter\n", name)
		fmt.Fprintf(w, "%s %d\n\n", name, v)
	}
	gauge := func(name, help string, v int64) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s gauge\n", name)
		fmt.Fprintf(w, "%s %d\n\n", name, v)
	}

	w.WriteHeader(http.StatusOK)
	counter("http_requests_total", "Total number of HTTP requests", traceMetrics.TotalRequests)
	counter("http_server_errors_total", "Responses with a 5xx status", traceMetrics.ServerErrors)
	gauge("http_response_time_microseconds", "Smoothed response time", traceMetrics.AverageResponseTime)
	counter("payments_recorded_total", "Payments accepted by the association API", atomic.LoadInt64(&s.appMetrics.paymentsRecorded))
	counter("receipts_exported_total", "Receipt PDFs produced", atomic.LoadInt64(&s.appMetrics.receiptsExported))
	counter("period_reports_exported_total", "Period report PDFs produced", atomic.LoadInt64(&s.appMetrics.reportsExported))
	counter("period_loads_stale_total", "Period loads discarded because a newer one began", atomic.LoadInt64(&s.appMetrics.staleLoads))
	counter("period_load_errors_total", "Period loads that failed", atomic.LoadInt64(&s.appMetrics.loadErrors))
	counter("rate_limit_hits_total", "Total rate limit hits", rateLimitMetrics.TotalHits)
	counter("suspicious_requests_total", "Total suspicious requests detected", securityMetrics.SuspiciousRequests)
	gauge("active_rate_limit_clients", "Currently tracked rate limit clients", rateLimitMetrics.ClientCount)
	gauge("uptime_seconds", "Application uptime in seconds", int64(time.Since(s.appMetrics.uptime).Seconds()))
}

type monthOption struct {
	Value    int
	Name     string
	Selected bool
}

type yearOption struct {
	Value    int
	Selected bool
}

type indexPage struct {
	AssociationName string
	Period          core.Period
	Months          []monthOption
	Years           []yearOption
	Query           string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if rb := RequireMethod(r, http.MethodGet, http.MethodHead); rb != nil {
		rb.Write(w)
		return
	}

	period, err := ParsePeriodParams(r.URL.Query(), s.now())
	if err != nil {
		period = core.PeriodOf(s.now())
	}

	page := indexPage{
		AssociationName: s.cfg.AssociationName,
		Period:          period,
		Query:           sanitizeInput(r.URL.Query().Get("q")),
	}
	for m := 1; m <= 12; m++ {
		page.Months = append(page.Months, monthOption{Value: m, Name: core.MonthName(m), Selected: m == period.Month})
	}
	years := core.RecentYears(s.now(), 5)
	if period.Year < years[len(years)-1] || period.Year > years[0] {
		years = append(years, period.Year)
	}
	for _, y := range years {
		page.Years = append(page.Years, yearOption{Value: y, Selected: y == period.Year})
	}

	s.renderTemplate(w, r, http.StatusOK, "index.html", page, nil)
}
