// Package apitest drives the full HTTP stack against a migrated sqlite database.
package apitest

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/Ramsey-B/trellis/internal/app"
	"github.com/Ramsey-B/trellis/internal/testutil"
	"github.com/Ramsey-B/trellis/pkg/database"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

type Harness struct {
	t        testing.TB
	DB       database.DB
	Services *app.Services
	Echo     *echo.Echo
}

// New builds the services and routes exactly as the server does, minus auth.
func New(t testing.TB, opts app.Options) *Harness {
	t.Helper()

	logger := testutil.Logger()
	conn := testutil.NewDB(t)
	services := app.NewServices(conn, opts, logger)

	e := app.NewEcho("trellis-test", logger)
	services.RegisterRoutes(e.Group(app.APIPrefix))

	return &Harness{
		t:        t,
		DB:       conn,
		Services: services,
		Echo:     e,
	}
}

// Do sends a JSON request to path under the api prefix.
func (h *Harness) Do(method, path string, body any) *httptest.ResponseRecorder {
	h.t.Helper()

	reqBody := bytes.NewBuffer(nil)
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(h.t, err)
		reqBody = bytes.NewBuffer(data)
	}

	req := httptest.NewRequest(method, app.APIPrefix+path, reqBody)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

	rec := httptest.NewRecorder()
	h.Echo.ServeHTTP(rec, req)
	return rec
}

// Decode unmarshals the recorded response body.
func Decode[T any](t testing.TB, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}
