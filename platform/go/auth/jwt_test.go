package auth

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractJWTToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
		found  bool
	}{
		{"missing header", "", "", false},
		{"bearer", "Bearer abc.def", "abc.def", true},
		{"case insensitive", "bearer abc.def", "abc.def", true},
		{"basic scheme", "Basic dXNlcjpwYXNz", "", false},
		{"too short", "Bear", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			got, found := ExtractJWTToken(req)
			require.Equal(t, tt.found, found)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestParseUnsignedJWTClaims(t *testing.T) {
	payload := base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"user-1","tenantId":"tenant-1"}`))

	claims, err := parseUnsignedJWTClaims("e30." + payload)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims["sub"])
	require.Equal(t, "tenant-1", claims["tenantId"])

	_, err = parseUnsignedJWTClaims("no-dots")
	require.Error(t, err)

	_, err = parseUnsignedJWTClaims("e30.!!!")
	require.Error(t, err)
}
