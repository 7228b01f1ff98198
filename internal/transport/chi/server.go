package chi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/recall/internal/domain/search/filter"
	"github.com/kailas-cloud/recall/internal/domain/search/request"
	"github.com/kailas-cloud/recall/internal/domain/search/result"
	logpkg "github.com/kailas-cloud/recall/internal/logger"
	"github.com/kailas-cloud/recall/internal/metrics"
	healthuc "github.com/kailas-cloud/recall/internal/usecase/health"
	queryuc "github.com/kailas-cloud/recall/internal/usecase/query"
)

// ServiceName is reported by the index endpoint.
const ServiceName = "Forest Memory RAG"

// maxBodyBytes caps a query request body.
const maxBodyBytes = 1 << 20

// Server serves the query API.
type Server struct {
	query   *queryuc.Service
	health  *healthuc.Service
	limits  request.Limits
	version string
	logger  *zap.Logger
}

// NewServer creates an HTTP API server.
func NewServer(query *queryuc.Service, health *healthuc.Service, logger *zap.Logger) *Server {
	return &Server{query: query, health: health, version: "dev", logger: logger}
}

// WithLimits overrides the top_k defaults.
func (s *Server) WithLimits(l request.Limits) *Server {
	s.limits = l
	return s
}

// WithVersion sets the version reported by the index endpoint.
func (s *Server) WithVersion(v string) *Server {
	s.version = v
	return s
}

type queryRequest struct {
	Query  string  `json:"query"`
	TopK   *int    `json:"top_k"`
	Days   *int    `json:"days"`
	Role   *string `json:"role"`
	Source *string `json:"source"`
}

type scoredResponse struct {
	Content   string   `json:"content"`
	Score     *float64 `json:"score"`
	Date      string   `json:"date"`
	Time      string   `json:"time"`
	Role      string   `json:"role"`
	Source    string   `json:"source"`
	CharCount int      `json:"char_count"`
}

type queryResponse struct {
	Results []scoredResponse `json:"results"`
	Count   int              `json:"count"`
	Query   string           `json:"query"`
}

type statsResponse struct {
	Collection   string `json:"collection"`
	TotalEntries int    `json:"total_entries"`
	DBPath       string `json:"db_path"`
}

type healthResponse struct {
	Status  healthuc.Status                 `json:"status"`
	Entries int                             `json:"entries"`
	Checks  map[string]healthuc.CheckResult `json:"checks"`
}

type indexResponse struct {
	Service   string   `json:"service"`
	Version   string   `json:"version"`
	Entries   int      `json:"entries"`
	Endpoints []string `json:"endpoints"`
}

type errorResponse struct {
	Error string `json:"error"`
}

var endpoints = []string{"/api/rag/query (POST)", "/api/rag/stats", "/health"}

// Query handles POST /api/rag/query.
func (s *Server) Query(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	var in queryRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &in); err != nil {
			metrics.QueryRequestsTotal.WithLabelValues("invalid").Inc()
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}
	}

	req, err := request.New(in.Query, in.TopK, filter.Query{Days: in.Days, Role: in.Role, Source: in.Source}, s.limits)
	if err != nil {
		s.queryError(w, r, err)
		return
	}

	resp, err := s.query.Query(r.Context(), &req)
	if err != nil {
		s.queryError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, queryResponse{
		Results: scoredToResponse(resp.Results),
		Count:   resp.Count,
		Query:   resp.Query,
	})
}

// Stats handles GET /api/rag/stats.
func (s *Server) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := s.query.Stats(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{
		Collection:   st.Collection,
		TotalEntries: st.Total,
		DBPath:       st.Location,
	})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, healthResponse{
		Status:  report.Status,
		Entries: report.Entries,
		Checks:  report.Checks,
	})
}

// Index handles GET /.
func (s *Server) Index(w http.ResponseWriter, r *http.Request) {
	n, err := s.query.Count(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, indexResponse{
		Service:   ServiceName,
		Version:   s.version,
		Entries:   n,
		Endpoints: endpoints,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// NotFound answers unknown routes and methods.
func (s *Server) NotFound(w http.ResponseWriter, _ *http.Request) {
	writeError(w, http.StatusNotFound, "not found")
}

// queryError answers 400 with the validation message for errors caused by
// the request and 500 for everything else.
func (s *Server) queryError(w http.ResponseWriter, r *http.Request, err error) {
	if queryuc.IsClientError(err) {
		metrics.QueryRequestsTotal.WithLabelValues("invalid").Inc()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.internalError(w, r, err)
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	logpkg.FromContext(r.Context()).Error("request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, err.Error())
}

func scoredToResponse(in []result.Scored) []scoredResponse {
	out := make([]scoredResponse, len(in))
	for i, h := range in {
		out[i] = scoredResponse{
			Content:   h.Content,
			Score:     h.Score,
			Date:      h.Date,
			Time:      h.Time,
			Role:      h.Role,
			Source:    h.Source,
			CharCount: h.CharCount,
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
