package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"studymate/internal/models"

	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func TestIssueAndParseToken(t *testing.T) {
	p := models.Principal{ID: "u1", Department: "Science", YearOfStudy: 2}
	token, err := IssueToken(testSecret, p, time.Hour)
	require.NoError(t, err)

	got, err := ParseToken(testSecret, token)
	require.NoError(t, err)
	require.Equal(t, p, got)
}

func TestParseTokenWrongSecret(t *testing.T) {
	token, err := IssueToken(testSecret, models.Principal{ID: "u1"}, time.Hour)
	require.NoError(t, err)
	_, err = ParseToken("other-secret", token)
	require.Error(t, err)
}

func TestParseTokenExpired(t *testing.T) {
	token, err := IssueToken(testSecret, models.Principal{ID: "u1"}, -time.Minute)
	require.NoError(t, err)
	_, err = ParseToken(testSecret, token)
	require.Error(t, err)
}

func TestMiddlewareRejectsMissingToken(t *testing.T) {
	h := Middleware(testSecret, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/materials", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareInjectsPrincipal(t *testing.T) {
	var got models.Principal
	h := Middleware(testSecret, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFrom(r.Context())
		require.True(t, ok)
		got = p
	}))
	token, err := IssueToken(testSecret, models.Principal{ID: "u9", Department: "Arts", YearOfStudy: 1}, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/materials", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "u9", got.ID)
	require.Equal(t, "Arts", got.Department)
}
