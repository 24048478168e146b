package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"nur/internal/config"
	"nur/internal/embedding"
	"nur/internal/llm"
	"nur/internal/service"
	"nur/internal/store/graph"
	"nur/internal/store/relational"
	"nur/internal/store/vector"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	dsn := os.Getenv("NUR_TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("NUR_TEST_DATABASE_DSN not set")
	}
	rel, err := relational.Open(context.Background(), config.DatabaseConfig{DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(rel.Close)

	cfg := config.Defaults()
	svc := service.New(rel, vector.NewMemory(), graph.NewMemory(), &llm.Fake{}, embedding.NewDeterministic(32), cfg)
	return NewHandler(svc)
}

func doRPC(t *testing.T, h *Handler, method string, params any) Response {
	t.Helper()
	body, err := json.Marshal(Request{Method: method, Params: mustJSON(t, params)})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestUnknownMethodIsRejected(t *testing.T) {
	h := newTestHandler(t)
	resp := doRPC(t, h, "delete_everything", nil)
	require.NotNil(t, resp.Error)
	require.Equal(t, "ValidationError", resp.Error.Code)
	require.False(t, resp.Error.Retryable)
}

func TestRememberThenRecall(t *testing.T) {
	h := newTestHandler(t)

	remembered := doRPC(t, h, "remember", map[string]any{
		"content": "Alice decided to ship v2 on 2025-03-01.\n",
		"metadata": map[string]any{
			"type": "note",
		},
	})
	require.Nil(t, remembered.Error)
	result := remembered.Result.(map[string]any)
	require.NotEmpty(t, result["artifact_id"])
	require.False(t, result["deduped"].(bool))

	recalled := doRPC(t, h, "recall", map[string]any{
		"query": "Alice ship v2",
		"k":     5,
	})
	require.Nil(t, recalled.Error)
}

func TestForgetRequiresConfirm(t *testing.T) {
	h := newTestHandler(t)
	resp := doRPC(t, h, "forget", map[string]any{"id": "art_doesnotexist", "confirm": false})
	require.NotNil(t, resp.Error)
	require.Equal(t, "ValidationError", resp.Error.Code)
}

func TestStatusReportsServices(t *testing.T) {
	h := newTestHandler(t)
	resp := doRPC(t, h, "status", nil)
	require.Nil(t, resp.Error)
	result := resp.Result.(map[string]any)
	require.Contains(t, result, "services")
}
