package errors

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCLIErrorAdapter_ExitCodes(t *testing.T) {
	adapter := NewCLIErrorAdapter(false, slog.Default())

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"unclassified", stderrors.New("boom"), 1},
		{"validation", ValidationError("bad hour").Build(), 2},
		{"not found", NotFoundError("no alarm").Build(), 3},
		{"limit", LimitError("limit").Build(), 4},
		{"permission", PermissionError("denied").Build(), 5},
		{"config", ConfigError("bad config").Build(), 7},
		{"network", NetworkError("offline").Build(), 8},
		{"daemon", DaemonError("down").Build(), 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, adapter.ExitCodeFor(tt.err))
		})
	}
}

func TestCLIErrorAdapter_HandleError(t *testing.T) {
	var out bytes.Buffer
	var code int
	adapter := NewCLIErrorAdapter(false, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	adapter.out = &out
	adapter.exit = func(c int) { code = c }

	adapter.HandleError(LimitError("alarm limit reached").Build())

	require.Equal(t, 4, code)
	require.Equal(t, "Error: alarm limit reached\n", out.String())
}

func TestHTTPErrorAdapter(t *testing.T) {
	adapter := NewHTTPErrorAdapter(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	t.Run("status codes", func(t *testing.T) {
		require.Equal(t, http.StatusOK, adapter.StatusCodeFor(nil))
		require.Equal(t, http.StatusNotFound, adapter.StatusCodeFor(NotFoundError("x").Build()))
		require.Equal(t, http.StatusConflict, adapter.StatusCodeFor(LimitError("x").Build()))
		require.Equal(t, http.StatusForbidden, adapter.StatusCodeFor(PermissionError("x").Build()))
		require.Equal(t, http.StatusInternalServerError, adapter.StatusCodeFor(stderrors.New("x")))
	})

	t.Run("response body", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/alarms", nil)
		err := LimitError("alarm limit reached").WithContext("max", 3).Build()

		adapter.WriteErrorResponse(rec, req, err)

		require.Equal(t, http.StatusConflict, rec.Code)
		var body HTTPErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, "alarm limit reached", body.Error)
		require.Equal(t, "limit", body.Code)
		require.EqualValues(t, 3, body.Details["max"])
	})
}
