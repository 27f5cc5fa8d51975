package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func issueToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("upstream-issuer-secret"))
	require.NoError(t, err)
	return signed
}

func TestAuthenticateSetsIdentity(t *testing.T) {
	e := echo.New()
	m := NewAuthMiddleware()

	var gotUID, gotRole string
	h := m.Authenticate(func(c echo.Context) error {
		gotUID = c.Get("uid").(string)
		gotRole = c.Get("role").(string)
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+issueToken(t, jwt.MapClaims{"sub": "alice", "role": "seller"}))
	rec := httptest.NewRecorder()

	require.NoError(t, h(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", gotUID)
	assert.Equal(t, "seller", gotRole)
}

func TestAuthenticateRejectsMissingHeader(t *testing.T) {
	e := echo.New()
	m := NewAuthMiddleware()

	h := m.Authenticate(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	err := h(e.NewContext(req, httptest.NewRecorder()))

	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
}

func TestAuthenticateRejectsTokenWithoutSubject(t *testing.T) {
	e := echo.New()
	m := NewAuthMiddleware()

	h := m.Authenticate(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+issueToken(t, jwt.MapClaims{"role": "buyer"}))
	err := h(e.NewContext(req, httptest.NewRecorder()))

	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
}
