package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/G-Research/jobstate/internal/common/logging"
	"github.com/G-Research/jobstate/internal/common/requestid"
	"github.com/G-Research/jobstate/internal/common/wmserrors"
	"github.com/G-Research/jobstate/internal/jobstate/reporting"
	"github.com/G-Research/jobstate/internal/jobstate/repository"
	"github.com/G-Research/jobstate/internal/jobstate/sitemask"
	"github.com/G-Research/jobstate/internal/jobstate/status"
	"github.com/G-Research/jobstate/pkg/api"
)

type JobStore interface {
	Attributes() []string
	InsertJob(ctx context.Context, sub repository.Submission) (*repository.SubmissionResult, error)
	GetJob(ctx context.Context, jobId int64) (*repository.Job, error)
	GetAttributes(ctx context.Context, jobId int64, names ...string) (map[string]string, error)
	GetJobsAttributes(ctx context.Context, jobIds []int64, names ...string) (map[int64]map[string]string, error)
	SetAttributes(ctx context.Context, jobId int64, values map[string]string, opts repository.AttributeUpdateOptions) (bool, error)
	SetJobsAttributes(ctx context.Context, jobIds []int64, values map[string]string, opts repository.AttributeUpdateOptions) (int64, error)
	GetParameters(ctx context.Context, jobIds []int64, names ...string) (map[int64]map[string]string, error)
	SetParameters(ctx context.Context, jobId int64, values map[string]string) error
	SetJobsParameters(ctx context.Context, values map[int64]map[string]string) error
	GetOptimizerParameters(ctx context.Context, jobId int64, names ...string) (map[string]string, error)
	SetOptimizerParameter(ctx context.Context, jobId int64, name string, value string) error
	RemoveOptimizerParameters(ctx context.Context, jobId int64, names ...string) error
	GetAtticParameters(ctx context.Context, jobId int64, cycle int) (map[string]string, error)
	GetJobDescription(ctx context.Context, jobId int64, original bool) (string, error)
	GetInputFiles(ctx context.Context, jobId int64) ([]string, error)
	SetInputFiles(ctx context.Context, jobId int64, paths []string) error
	RequestTransition(ctx context.Context, jobId int64, change repository.Change) (status.Status, error)
	RequestTransitions(ctx context.Context, jobIds []int64, change repository.Change) (map[int64]status.Status, error)
	OverrideStatus(ctx context.Context, jobId int64, change repository.Change) error
	OverrideStatuses(ctx context.Context, jobIds []int64, change repository.Change) (map[int64]status.Status, error)
	MarkDeleted(ctx context.Context, jobIds []int64, source string) (map[int64]status.Status, error)
	GetLoggingInfo(ctx context.Context, jobId int64) ([]repository.LoggingRecord, error)
	GetOptimizerChain(ctx context.Context, jobId int64) (status.OptimizerChain, error)
	AdvanceOptimizer(ctx context.Context, jobId int64, currentStage string) (string, error)
	Reschedule(ctx context.Context, jobId int64, source string) (*repository.RescheduleResult, error)
	RescheduleJobs(ctx context.Context, jobIds []int64, source string) map[int64]repository.RescheduleOutcome
	Heartbeat(ctx context.Context, jobId int64, samples map[string]string, at time.Time) ([]repository.Command, error)
	GetHeartbeatData(ctx context.Context, jobId int64) ([]repository.HeartbeatSample, error)
	EnqueueCommand(ctx context.Context, jobId int64, command string, arguments string) error
	PollCommands(ctx context.Context, jobId int64, commandStatus string) ([]repository.Command, error)
	MarkCommandDelivered(ctx context.Context, jobId int64, command string) (int64, error)
	DeleteJobs(ctx context.Context, jobIds []int64) (int64, error)
}

type SiteMask interface {
	SetSiteStatus(ctx context.Context, sites []string, siteStatus sitemask.Status, author string, comment string) ([]string, error)
	RemoveSites(ctx context.Context, sites []string) (int64, error)
	GetMask(ctx context.Context, filter sitemask.Filter) ([]sitemask.Entry, error)
	GetSiteStatus(ctx context.Context, site string) (sitemask.Status, error)
	PartitionSites(ctx context.Context, sites []string) (sitemask.Partition, error)
	GetSiteMaskLogging(ctx context.Context, sites []string) (map[string][]sitemask.LogEntry, error)
}

type Queries interface {
	GetCounters(ctx context.Context, groupBy []string, filter reporting.Filter, newer *time.Time) ([]reporting.Counter, error)
	GetDistinctValues(ctx context.Context, attribute string, filter reporting.Filter) ([]string, error)
	SelectJobs(ctx context.Context, selection reporting.Selection) ([]int64, error)
}

// Server exposes the store over HTTP with JSON bodies. It holds no state of its own.
type Server struct {
	jobs      JobStore
	sites     SiteMask
	summaries reporting.Reporter
	queries   Queries
	// Largest number of jobs accepted by one bulk request, 0 for no limit
	maxBatchSize int
}

func NewServer(jobs JobStore, sites SiteMask, summaries reporting.Reporter, queries Queries, maxBatchSize int) *Server {
	return &Server{jobs: jobs, sites: sites, summaries: summaries, queries: queries, maxBatchSize: maxBatchSize}
}

// Router returns the routes of the API, mounted under /api/v1.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	v1 := router.PathPrefix("/api/v1").Subrouter()
	s.addJobRoutes(v1)
	s.addSiteRoutes(v1)
	s.addReportRoutes(v1)
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, api.ErrorResponse{Error: "no route for " + r.Method + " " + r.URL.Path})
	})
	router.Use(requestid.Middleware(false), requestLogging)
	return router
}

type handlerFunc func(r *http.Request) (interface{}, error)

// handle runs h and writes its result as JSON with okStatus, or the error with the status
// code matching its type.
func handle(okStatus int, h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := h(r)
		if err != nil {
			code := wmserrors.HTTPStatusFromError(err)
			entry := requestEntry(r)
			if code >= http.StatusInternalServerError {
				logging.WithStacktrace(entry, err).Error("Request failed")
			} else {
				entry.WithError(err).Debug("Request refused")
			}
			writeJSON(w, code, api.ErrorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, okStatus, result)
	}
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WithError(err).Warn("Failed to write response")
	}
}

func decode(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return errors.WithStack(&wmserrors.ErrInvalidArgument{Name: "body", Value: "", Message: err.Error()})
	}
	return nil
}

func jobIdVar(r *http.Request) (int64, error) {
	raw := mux.Vars(r)["jobId"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.WithStack(&wmserrors.ErrInvalidArgument{Name: "jobId", Value: raw, Message: "job ids are positive integers"})
	}
	return id, nil
}

func (s *Server) checkBatch(n int) error {
	if s.maxBatchSize > 0 && n > s.maxBatchSize {
		return errors.WithStack(&wmserrors.ErrInvalidArgument{
			Name:    "jobIds",
			Value:   n,
			Message: "at most " + strconv.Itoa(s.maxBatchSize) + " jobs per request",
		})
	}
	return nil
}

func requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		requestEntry(r).WithField("duration", time.Since(start)).Debug("Request handled")
	})
}

func requestEntry(r *http.Request) *log.Entry {
	return log.WithFields(log.Fields{
		"method":    r.Method,
		"path":      r.URL.Path,
		"requestId": requestid.FromContextOrMissing(r.Context()),
	})
}
