package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fixedChecker struct{ err error }

func (c fixedChecker) Check() error { return c.err }

func TestMultiChecker(t *testing.T) {
	mc := NewMultiChecker(fixedChecker{}, fixedChecker{})
	assert.NoError(t, mc.Check())

	mc.Add(fixedChecker{err: errors.New("postgres down")})
	mc.Add(fixedChecker{err: errors.New("redis down")})
	err := mc.Check()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "postgres down")
	assert.Contains(t, err.Error(), "redis down")
}

func TestPingChecker(t *testing.T) {
	ok := NewPingChecker("postgres", time.Second, func(ctx context.Context) error { return nil })
	assert.NoError(t, ok.Check())

	failing := NewPingChecker("redis", time.Second, func(ctx context.Context) error { return errors.New("refused") })
	err := failing.Check()
	assert.EqualError(t, err, "redis health check failed: refused")
}

func TestHealthCheckHttpHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthCheckHttpHandler(fixedChecker{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	NewHealthCheckHttpHandler(fixedChecker{err: errors.New("down")}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "down", rec.Body.String())
}
