package logging

import (
	"bytes"
	"testing"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestWithStacktrace(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&log.JSONFormatter{})

	err := errors.Wrap(errors.New("boom"), "outer")
	entry := WithStacktrace(log.NewEntry(logger), err)

	assert.Equal(t, err, entry.Data[log.ErrorKey])
	assert.NotNil(t, entry.Data[Stacktrace])
}

func TestWithStacktrace_PlainError(t *testing.T) {
	logger := log.New()
	entry := WithStacktrace(log.NewEntry(logger), assert.AnError)
	_, ok := entry.Data[Stacktrace]
	assert.False(t, ok)
}

func TestWithJob(t *testing.T) {
	entry := WithJob(log.NewEntry(log.New()), 42)
	assert.Equal(t, int64(42), entry.Data[JobIdField])
}

func TestCommandLineFormatter(t *testing.T) {
	out, err := (&CommandLineFormatter{}).Format(&log.Entry{Message: "hello"})
	assert.NoError(t, err)
	assert.Equal(t, "hello\n", string(out))
}
