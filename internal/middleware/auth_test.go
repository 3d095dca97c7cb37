package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	return token
}

func TestParseToken(t *testing.T) {
	token := signToken(t, testSecret, jwt.MapClaims{"sub": "user-42", "exp": time.Now().Add(time.Hour).Unix()})
	sub, err := ParseToken(testSecret, token)
	require.NoError(t, err)
	assert.Equal(t, "user-42", sub)
}

func TestParseToken_Rejections(t *testing.T) {
	expired := signToken(t, testSecret, jwt.MapClaims{"sub": "u1", "exp": time.Now().Add(-time.Hour).Unix()})
	wrongKey := signToken(t, []byte("other-secret"), jwt.MapClaims{"sub": "u1"})
	noSubject := signToken(t, testSecret, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})

	for name, token := range map[string]string{
		"expired":    expired,
		"wrong_key":  wrongKey,
		"no_subject": noSubject,
		"garbage":    "not.a.token",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseToken(testSecret, token)
			assert.Error(t, err)
		})
	}
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(echo.HeaderAuthorization, "Bearer abc123")
	assert.Equal(t, "abc123", BearerToken(r))

	r = httptest.NewRequest(http.MethodGet, "/ws?token=fromquery", nil)
	assert.Equal(t, "fromquery", BearerToken(r))

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, BearerToken(r))
}

func TestJWTMiddleware(t *testing.T) {
	e := echo.New()
	handler := JWT(testSecret)(func(c echo.Context) error {
		return c.String(http.StatusOK, UserID(c))
	})

	t.Run("valid", func(t *testing.T) {
		token := signToken(t, testSecret, jwt.MapClaims{"sub": "user-7", "exp": time.Now().Add(time.Hour).Unix()})
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
		rec := httptest.NewRecorder()
		err := handler(e.NewContext(req, rec))
		require.NoError(t, err)
		assert.Equal(t, "user-7", rec.Body.String())
	})

	t.Run("missing_token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		err := handler(e.NewContext(req, httptest.NewRecorder()))
		var httpErr *echo.HTTPError
		require.ErrorAs(t, err, &httpErr)
		assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
	})

	t.Run("invalid_token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(echo.HeaderAuthorization, "Bearer bogus")
		err := handler(e.NewContext(req, httptest.NewRecorder()))
		var httpErr *echo.HTTPError
		require.ErrorAs(t, err, &httpErr)
		assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
	})
}
