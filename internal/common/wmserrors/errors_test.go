package wmserrors

import (
	"net/http"
	"testing"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusFromError(t *testing.T) {
	tests := map[string]struct {
		err  error
		want int
	}{
		"ErrAlreadyExists":                {&ErrAlreadyExists{}, http.StatusConflict},
		"ErrNotFound":                     {&ErrNotFound{}, http.StatusNotFound},
		"ErrInvalidArgument":              {&ErrInvalidArgument{}, http.StatusBadRequest},
		"ErrPolicy":                       {&ErrPolicy{}, http.StatusUnprocessableEntity},
		"ErrStorage":                      {&ErrStorage{}, http.StatusServiceUnavailable},
		"ErrDecoding":                     {&ErrDecoding{}, http.StatusInternalServerError},
		"pkg.Error => ErrNotFound":        {errors.WithMessage(&ErrNotFound{}, "foo"), http.StatusNotFound},
		"pkg.Error => ErrInvalidArgument": {errors.WithMessage(&ErrInvalidArgument{}, "foo"), http.StatusBadRequest},
		"pkg.Error => ErrPolicy":          {errors.WithStack(&ErrPolicy{}), http.StatusUnprocessableEntity},
		"pkg.Error":                       {errors.New("foo"), http.StatusInternalServerError},
		"nil":                             {nil, http.StatusOK},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, HTTPStatusFromError(tc.err))
		})
	}
}

func TestNewStorageError(t *testing.T) {
	assert.NoError(t, NewStorageError("select", nil))

	pgErr := &pgconn.PgError{Code: pgerrcode.UniqueViolation, Message: "duplicate key"}
	err := NewStorageError("insert job", pgErr)

	var storageErr *ErrStorage
	if assert.True(t, errors.As(err, &storageErr)) {
		assert.Equal(t, "insert job", storageErr.Operation)
		assert.Equal(t, pgerrcode.UniqueViolation, storageErr.PgCode())
	}
	assert.True(t, errors.Is(err, pgErr))
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, `resource "42" of type "job" does not exist`, (&ErrNotFound{Type: "job", Value: "42"}).Error())
	assert.Equal(t,
		`value "Bogus" is invalid for field "Status"; unknown status`,
		(&ErrInvalidArgument{Name: "Status", Value: "Bogus", Message: "unknown status"}).Error())
	assert.Equal(t,
		"job 7 refused by MaxRescheduling: limit of 3 reached",
		(&ErrPolicy{JobId: 7, Rule: "MaxRescheduling", Message: "limit of 3 reached"}).Error())
	assert.True(t, IsPolicy(errors.WithStack(&ErrPolicy{})))
	assert.True(t, IsNotFound(errors.Wrap(&ErrNotFound{}, "lookup")))
	assert.False(t, IsNotFound(errors.New("other")))
}
