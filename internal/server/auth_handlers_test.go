package server

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"kinship/internal/config"
	"kinship/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer_AuthRequired(t *testing.T) {
	t.Parallel()
	s := &Server{config: &config.Config{JWTSecret: testSecret}}
	app := fiber.New()
	app.Get("/protected", s.AuthRequired(), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"userID": currentUserID(c), "username": currentUsername(c)})
	})

	sign := func(method jwt.SigningMethod, claims jwt.MapClaims) string {
		str, err := jwt.NewWithClaims(method, claims).SignedString([]byte(testSecret))
		require.NoError(t, err)
		return str
	}
	claims := func(sub, issuer, audience string, exp time.Duration) jwt.MapClaims {
		return jwt.MapClaims{
			"sub":      sub,
			"username": "alice",
			"iss":      issuer,
			"aud":      audience,
			"exp":      time.Now().Add(exp).Unix(),
		}
	}
	valid, err := s.generateToken(123, "alice")
	require.NoError(t, err)

	tests := []struct {
		name           string
		authHeader     string
		expectedStatus int
	}{
		{"Valid Token", "Bearer " + valid, http.StatusOK},
		{"Lowercase Scheme", "bearer " + valid, http.StatusOK},
		{"Expired Token", "Bearer " + sign(jwt.SigningMethodHS256, claims("123", tokenIssuer, tokenAudience, -time.Hour)), http.StatusUnauthorized},
		{"Invalid Issuer", "Bearer " + sign(jwt.SigningMethodHS256, claims("123", "wrong-issuer", tokenAudience, time.Hour)), http.StatusUnauthorized},
		{"Invalid Audience", "Bearer " + sign(jwt.SigningMethodHS256, claims("123", tokenIssuer, "wrong-audience", time.Hour)), http.StatusUnauthorized},
		{"Other HMAC Algorithm", "Bearer " + sign(jwt.SigningMethodHS512, claims("123", tokenIssuer, tokenAudience, time.Hour)), http.StatusUnauthorized},
		{"Non Numeric Subject", "Bearer " + sign(jwt.SigningMethodHS256, claims("alice", tokenIssuer, tokenAudience, time.Hour)), http.StatusUnauthorized},
		{"Missing Expiry", "Bearer " + sign(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "123", "iss": tokenIssuer, "aud": tokenAudience}), http.StatusUnauthorized},
		{"Missing Header", "", http.StatusUnauthorized},
		{"Malformed Bearer Format", "Token " + valid, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)

			if tt.expectedStatus == http.StatusOK {
				body := decode[map[string]any](t, resp)
				assert.Equal(t, float64(123), body["userID"])
				assert.Equal(t, "alice", body["username"])
			}
		})
	}
}

func TestGenerateToken_Claims(t *testing.T) {
	t.Parallel()
	s := &Server{config: &config.Config{JWTSecret: testSecret}}

	str, err := s.generateToken(42, "bob")
	require.NoError(t, err)

	parsed, err := jwt.Parse(str, func(*jwt.Token) (any, error) { return []byte(testSecret), nil })
	require.NoError(t, err)
	claims := parsed.Claims.(jwt.MapClaims)
	assert.Equal(t, strconv.Itoa(42), claims["sub"])
	assert.Equal(t, "bob", claims["username"])
	assert.Equal(t, tokenIssuer, claims["iss"])
	assert.Equal(t, tokenAudience, claims["aud"])
	assert.NotEmpty(t, claims["jti"])

	other, err := s.generateToken(42, "bob")
	require.NoError(t, err)
	assert.NotEqual(t, str, other, "every token carries its own jti")

	_, err = (&Server{config: &config.Config{}}).generateToken(1, "x")
	assert.Error(t, err)
}

func TestSignupAndLogin(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "correct-horse",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	signup := decode[map[string]any](t, resp)
	assert.NotEmpty(t, signup["token"])
	user := signup["user"].(map[string]any)
	assert.Equal(t, "alice", user["username"])
	assert.NotContains(t, user, "password")

	t.Run("duplicate username", func(t *testing.T) {
		resp := ts.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
			"username": "alice",
			"email":    "other@example.com",
			"password": "correct-horse",
		})
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		body := decode[models.ErrorResponse](t, resp)
		assert.Equal(t, models.CodeConflict, body.Code)
	})

	t.Run("invalid email", func(t *testing.T) {
		resp := ts.do(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
			"username": "carol",
			"email":    "not-an-email",
			"password": "correct-horse",
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("login", func(t *testing.T) {
		resp := ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
			"username": "alice",
			"password": "correct-horse",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body := decode[map[string]any](t, resp)
		token := body["token"].(string)

		me := ts.do(t, http.MethodGet, "/api/users/me", token, nil)
		require.Equal(t, http.StatusOK, me.StatusCode)
		assert.Equal(t, "alice", decode[models.User](t, me).Username)
	})

	t.Run("wrong password", func(t *testing.T) {
		resp := ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
			"username": "alice",
			"password": "wrong-horse",
		})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}
