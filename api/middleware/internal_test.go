package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/angelmondragon/lessongate-backend/internal/users"
	pkgerrors "github.com/angelmondragon/lessongate-backend/pkg/errors"
)

func TestInternalOnly(t *testing.T) {
	secret := func() (string, error) { return "s3cret", nil }
	var got captured
	h := InternalOnly(secret, nil)(captureHandler(&got))

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong", "nope", http.StatusUnauthorized},
		{"valid", "s3cret", http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/internal/v1/users/lookup", nil)
			if tc.header != "" {
				req.Header.Set(InternalSecretHeader, tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
	assert.Equal(t, users.CallerInternal, got.caller.Kind)
}

func TestInternalOnlyFailsClosedWithoutSecret(t *testing.T) {
	unset := func() (string, error) {
		return "", pkgerrors.New(pkgerrors.CodeMisconfigured, "internal secret not configured")
	}
	var got captured
	h := InternalOnly(unset, nil)(captureHandler(&got))

	req := httptest.NewRequest(http.MethodPost, "/api/internal/v1/users/lookup", nil)
	req.Header.Set(InternalSecretHeader, "")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, users.CallerKind(""), got.caller.Kind)
}
