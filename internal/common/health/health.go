package health

import (
	"context"
	"net/http"
	"time"

	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"
)

// Checker reports whether a dependency is usable.
type Checker interface {
	Check() error
}

// PingChecker adapts a context-aware ping function, e.g. pgxpool.Pool.Ping, into a Checker.
type PingChecker struct {
	name    string
	timeout time.Duration
	ping    func(ctx context.Context) error
}

func NewPingChecker(name string, timeout time.Duration, ping func(ctx context.Context) error) *PingChecker {
	return &PingChecker{name: name, timeout: timeout, ping: ping}
}

func (c *PingChecker) Check() error {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	if err := c.ping(ctx); err != nil {
		return &CheckError{Name: c.name, Cause: err}
	}
	return nil
}

type CheckError struct {
	Name  string
	Cause error
}

func (e *CheckError) Error() string {
	return e.Name + " health check failed: " + e.Cause.Error()
}

func (e *CheckError) Unwrap() error {
	return e.Cause
}

type MultiChecker struct {
	checkers []Checker
}

func NewMultiChecker(checkers ...Checker) *MultiChecker {
	return &MultiChecker{
		checkers: checkers,
	}
}

func (mc *MultiChecker) Check() error {
	var result *multierror.Error
	for _, checker := range mc.checkers {
		if err := checker.Check(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func (mc *MultiChecker) Add(checker Checker) {
	mc.checkers = append(mc.checkers, checker)
}

type HealthCheckHttpHandler struct {
	checker Checker
}

func NewHealthCheckHttpHandler(checker Checker) *HealthCheckHttpHandler {
	return &HealthCheckHttpHandler{
		checker: checker,
	}
}

func (h *HealthCheckHttpHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	err := h.checker.Check()
	if err == nil {
		log.Debug("Health check passed")
		w.WriteHeader(http.StatusNoContent)
		return
	}
	log.Warnf("Health check failed: %v", err)
	w.WriteHeader(http.StatusServiceUnavailable)
	if _, err := w.Write([]byte(err.Error())); err != nil {
		log.Errorf("Failed to write health check response: %v", err)
	}
}
