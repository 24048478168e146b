// Package rpc adapts service.Service to the JSON-RPC-over-HTTP tool surface
// named in spec.md §6: a single POST /rpc endpoint decoding {method, params}
// and dispatching through a closed switch table to remember/recall/forget/
// status/event_search/event_get/event_list_for_revision/job_status.
//
// This is the one piece of the system spec.md §1 explicitly treats as a
// replaceable outer shell (the "thin request handler that dispatches
// JSON-RPC tool calls" is named as an external collaborator); SPEC_FULL.md
// nonetheless provides a minimal implementation of it so the server has a
// real entrypoint, shaped like the dispatch-by-method-string pattern used
// by modelcontextprotocol/go-sdk based MCP servers in the corpus.
package rpc

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"nur/internal/memory"
	"nur/internal/service"
)

// Request is the JSON-RPC envelope this server accepts.
type Request struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// Response is the JSON-RPC envelope this server returns: exactly one of
// Result or Error is populated.
type Response struct {
	Result any           `json:"result,omitempty"`
	Error  *ErrorPayload `json:"error,omitempty"`
}

// ErrorPayload is the stable {code, message, retryable} shape spec.md §7
// requires every internal error kind to translate to.
type ErrorPayload struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// Handler dispatches JSON-RPC requests to a service.Service. It is the only
// transport this repository ships; callers embed it at whatever path they
// choose (cmd/nur-server mounts it at POST /rpc).
type Handler struct {
	svc *service.Service
}

// NewHandler builds a Handler wrapping svc.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// ServeHTTP dispatches through the closed method table named in
// SPEC_FULL.md §6. Unlisted method strings are rejected as ValidationError,
// never silently ignored (spec.md §9 "Dynamic dispatch on kind": closed
// set, explicit table, no open-world polymorphism).
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, memory.NewValidationError("malformed request body", err))
		return
	}

	ctx := r.Context()
	var (
		result any
		err    error
	)
	switch req.Method {
	case "remember":
		result, err = h.remember(ctx, req.Params)
	case "recall":
		result, err = h.recall(ctx, req.Params)
	case "forget":
		result, err = h.forget(ctx, req.Params)
	case "status":
		result, err = h.status(ctx, req.Params)
	case "event_search":
		result, err = h.eventSearch(ctx, req.Params)
	case "event_get":
		result, err = h.eventGet(ctx, req.Params)
	case "event_list_for_revision":
		result, err = h.eventListForRevision(ctx, req.Params)
	case "job_status":
		result, err = h.jobStatus(ctx, req.Params)
	default:
		err = memory.NewValidationError("unknown method: "+req.Method, nil)
	}

	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Result: result})
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusOK, Response{Error: errorPayload(err)})
}

// errorPayload translates any error to the stable {code, message, retryable}
// shape. An error that isn't (or doesn't wrap) a *memory.Error maps to a
// generic internal kind with retryable=false, per SPEC_FULL.md §7.
func errorPayload(err error) *ErrorPayload {
	var me *memory.Error
	if !errors.As(err, &me) {
		return &ErrorPayload{Code: "InternalError", Message: err.Error(), Retryable: false}
	}
	return &ErrorPayload{Code: string(me.Kind), Message: err.Error(), Retryable: me.Retryable}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("encode rpc response")
	}
}
