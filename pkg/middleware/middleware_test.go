package middleware_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger/zapadapter"
	utils "github.com/Ramsey-B/trellis/pkg/context"
	"github.com/Ramsey-B/trellis/pkg/engine"
	"github.com/Ramsey-B/trellis/pkg/middleware"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var logger = zapadapter.NewZapEctoLogger(zap.NewNop(), nil)

func newEcho() *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	return e
}

func serve(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{engine.InvalidOperation("self follow"), http.StatusBadRequest},
		{engine.NotFound("actor %s", "a1"), http.StatusNotFound},
		{engine.Blocked("blocked"), http.StatusForbidden},
		{engine.RateLimited("slow down"), http.StatusTooManyRequests},
		{engine.Storage(errors.New("disk"), "insert"), http.StatusInternalServerError},
		{fmt.Errorf("wrapped: %w", engine.NotFound("x")), http.StatusNotFound},
		{errors.New("anything else"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.code, middleware.StatusCode(tt.err), tt.err.Error())
	}
}

func TestError_RendersEngineErrors(t *testing.T) {
	e := newEcho()
	e.GET("/blocked", func(c echo.Context) error {
		return engine.Blocked("actor is blocked")
	})
	e.GET("/storage", func(c echo.Context) error {
		return engine.Storage(errors.New("connection reset"), "select actor")
	})

	req := httptest.NewRequest(http.MethodGet, "/blocked", nil)
	req.Header.Set(echo.HeaderXRequestID, "req-1")
	rec := serve(e, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	var body middleware.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body.Message, "actor is blocked")
	assert.Equal(t, "req-1", body.RequestID)
	assert.Equal(t, "req-1", rec.Header().Get(echo.HeaderXRequestID))

	// storage causes are not leaked
	rec = serve(e, httptest.NewRequest(http.MethodGet, "/storage", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, http.StatusText(http.StatusInternalServerError), body.Message)
	assert.NotContains(t, rec.Body.String(), "connection reset")
}

func TestError_RendersHTTPErrors(t *testing.T) {
	e := newEcho()
	e.GET("/bad", func(c echo.Context) error {
		return httperror.NewHTTPError(http.StatusBadRequest, "actorId is required")
	})

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/bad", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body middleware.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body.Message, "actorId is required")

	rec = serve(e, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestContext_GeneratesRequestID(t *testing.T) {
	e := newEcho()
	var seen string
	e.GET("/ping", func(c echo.Context) error {
		seen = utils.GetRequestID(c.Request().Context())
		return c.NoContent(http.StatusNoContent)
	})

	rec := serve(e, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(echo.HeaderXRequestID))
}

type fakeVerifier struct {
	err error
}

func (v fakeVerifier) Verify(ctx context.Context, rawIDToken string) (*oidc.IDToken, error) {
	if v.err != nil {
		return nil, v.err
	}
	return &oidc.IDToken{}, nil
}

func TestAuthentication(t *testing.T) {
	newAuthed := func(verifier middleware.TokenVerifier) *echo.Echo {
		e := newEcho()
		g := e.Group("", middleware.Authentication(logger, verifier))
		g.GET("/private", func(c echo.Context) error {
			return c.NoContent(http.StatusNoContent)
		})
		return e
	}

	t.Run("missing bearer", func(t *testing.T) {
		rec := serve(newAuthed(fakeVerifier{}), httptest.NewRequest(http.MethodGet, "/private", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("invalid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/private", nil)
		req.Header.Set(echo.HeaderAuthorization, "Bearer nope")
		rec := serve(newAuthed(fakeVerifier{err: errors.New("expired")}), req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("token without claims", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/private", nil)
		req.Header.Set(echo.HeaderAuthorization, "Bearer token")
		rec := serve(newAuthed(fakeVerifier{}), req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
