package requestid

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddGet(t *testing.T) {
	ctx := AddToContext(context.Background(), "abc")
	id, ok := FromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "abc", id)

	_, ok = FromContext(context.Background())
	assert.False(t, ok)
	assert.Equal(t, "missing", FromContextOrMissing(context.Background()))
}

func TestMiddleware(t *testing.T) {
	var seen string
	handler := func(w http.ResponseWriter, r *http.Request) {
		seen = FromContextOrMissing(r.Context())
	}

	tests := map[string]struct {
		replace  bool
		incoming string
		keep     bool
	}{
		"generated when absent":      {replace: false, incoming: "", keep: false},
		"kept when present":          {replace: false, incoming: "caller-id", keep: true},
		"replaced when asked to":     {replace: true, incoming: "caller-id", keep: false},
		"generated on replace empty": {replace: true, incoming: "", keep: false},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.incoming != "" {
				req.Header.Set(MetadataKey, tc.incoming)
			}
			rec := httptest.NewRecorder()
			Middleware(tc.replace)(http.HandlerFunc(handler)).ServeHTTP(rec, req)

			assert.NotEqual(t, "missing", seen)
			assert.Equal(t, seen, rec.Header().Get(MetadataKey))
			if tc.keep {
				assert.Equal(t, tc.incoming, seen)
			} else {
				assert.NotEqual(t, tc.incoming, seen)
			}
		})
	}
}
