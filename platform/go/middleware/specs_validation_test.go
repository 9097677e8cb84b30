package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zenGate-Global/palmyra-tenancy/contracts"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/problemdetails"
)

func TestSpecValidator(t *testing.T) {
	spec, err := contracts.Load(context.Background())
	require.NoError(t, err)

	h := SpecValidator(spec)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	send := func(method, path, body string, authorized bool) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		if body != "" {
			req.Header.Set("Content-Type", "application/json")
		}
		if authorized {
			req.Header.Set("Authorization", "Bearer token")
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := send(http.MethodPost, "/api/v1/communities", `{"name":"Chess"}`, true)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = send(http.MethodPost, "/api/v1/communities", `{"name":""}`, true)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, problemdetails.ContentType, rec.Header().Get("Content-Type"))

	rec = send(http.MethodGet, "/api/v1/communities/not-a-uuid", "", true)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = send(http.MethodGet, "/api/v1/communities", "", false)
	require.NotEqual(t, http.StatusNoContent, rec.Code)
}
