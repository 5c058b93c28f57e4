package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/eugenenazirov/layerconf/internal/resolver"
	"github.com/eugenenazirov/layerconf/internal/ruleset"
	"github.com/eugenenazirov/layerconf/internal/storage"
)

type contextKey string

const requestIDContextKey contextKey = "requestID"

const maxRuleSetBytes = 1 << 20

// Handler wires the rule-set store and the environment snapshot into HTTP
// handlers.
type Handler struct {
	storage storage.Storage
	env     resolver.Env

	clock func() time.Time
}

// HandlerOption configures Handler behaviour.
type HandlerOption func(*Handler)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.clock = clock
	}
}

// NewHandler constructs a Handler. env is the snapshot every resolution
// served by this handler sees; it is not re-read per request.
func NewHandler(store storage.Storage, env resolver.Env, opts ...HandlerOption) *Handler {
	h := &Handler{
		storage: store,
		env:     env,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	_ = r
	resp := healthResponse{
		Status:    "ok",
		Timestamp: h.clock(),
		RuleSets:  len(h.storage.List()),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleListRuleSets(w http.ResponseWriter, r *http.Request) {
	_ = r
	entries := h.storage.List()
	resp := ruleSetListResponse{RuleSets: make([]ruleSetResponse, 0, len(entries))}
	for _, entry := range entries {
		resp.RuleSets = append(resp.RuleSets, toRuleSetResponse(entry))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetRuleSet(w http.ResponseWriter, r *http.Request) {
	entry, err := h.storage.GetRuleSet(r.PathValue("name"))
	if err != nil {
		writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRuleSetResponse(entry))
}

func (h *Handler) handlePutRuleSet(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	data, err := io.ReadAll(io.LimitReader(r.Body, maxRuleSetBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", "unable to read request body")
		return
	}
	if len(data) > maxRuleSetBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "Invalid request", "rule set document is too large")
		return
	}

	doc, err := ruleset.Decode(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid rule set", err.Error())
		return
	}

	compiled, err := doc.Compile()
	if err != nil {
		recordValidationFailure(err)
		writeError(w, http.StatusBadRequest, "Invalid rule set", err.Error(), suggestionFor(err))
		return
	}

	if err := h.storage.SetRuleSet(name, compiled); err != nil {
		writeStorageError(w, err)
		return
	}

	entry, err := h.storage.GetRuleSet(name)
	if err != nil {
		writeStorageError(w, err)
		return
	}

	resp := toRuleSetResponse(entry)
	resp.Message = "Rule set updated successfully"
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleDeleteRuleSet(w http.ResponseWriter, r *http.Request) {
	if err := h.storage.DeleteRuleSet(r.PathValue("name")); err != nil {
		writeStorageError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request", "unable to parse JSON payload")
		return
	}

	entry, err := h.storage.GetRuleSet(name)
	if err != nil {
		writeStorageError(w, err)
		return
	}

	ctx := resolver.Context{Path: strings.TrimSpace(req.Path), Tags: req.Tags}

	start := time.Now()
	effective, err := entry.Resolver.Resolve(h.env, ctx)
	elapsed := time.Since(start)
	observeResolution(name, elapsed, err)

	if err != nil {
		switch {
		case errors.Is(err, resolver.ErrCyclicReference), errors.Is(err, resolver.ErrUnknownReference):
			writeError(w, http.StatusUnprocessableEntity, "Cannot resolve configuration", err.Error(), suggestionFor(err))
		default:
			writeInternalError(w, err)
		}
		return
	}

	layers := entry.Resolver.Applicable(ctx)
	if layers == nil {
		layers = []string{}
	}

	resp := resolveResponse{
		RuleSet:          name,
		Path:             ctx.Path,
		Tags:             ctx.Tags,
		Layers:           layers,
		Config:           effective,
		ResolutionTimeUs: elapsed.Microseconds(),
	}
	if resp.Tags == nil {
		resp.Tags = []string{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func suggestionFor(err error) string {
	switch {
	case errors.Is(err, resolver.ErrInvalidLayer):
		return "Every override needs at least one entry under files"
	case errors.Is(err, resolver.ErrMalformedPattern):
		return "Check brackets, braces and groups in the files patterns"
	case errors.Is(err, resolver.ErrCyclicReference):
		return "Break the loop between $ref values"
	case errors.Is(err, resolver.ErrUnknownReference):
		return "Point $ref at a dotted key path that exists after merging"
	default:
		return ""
	}
}

func toRuleSetResponse(entry storage.Entry) ruleSetResponse {
	return ruleSetResponse{
		Name:      entry.Name,
		Layers:    entry.Resolver.LayerNames(),
		UpdatedAt: entry.UpdatedAt,
	}
}

func requestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDContextKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

type resolveRequest struct {
	Path string   `json:"path"`
	Tags []string `json:"tags"`
}

type resolveResponse struct {
	RuleSet          string          `json:"ruleSet"`
	Path             string          `json:"path"`
	Tags             []string        `json:"tags"`
	Layers           []string        `json:"layers"`
	Config           resolver.Config `json:"config"`
	ResolutionTimeUs int64           `json:"resolutionTimeUs"`
}

type ruleSetResponse struct {
	Name      string    `json:"name"`
	Layers    []string  `json:"layers"`
	UpdatedAt time.Time `json:"updatedAt"`
	Message   string    `json:"message,omitempty"`
}

type ruleSetListResponse struct {
	RuleSets []ruleSetResponse `json:"ruleSets"`
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	RuleSets  int       `json:"ruleSets"`
}

type errorResponse struct {
	Error      string `json:"error"`
	Details    string `json:"details,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// writeJSON encodes payload before writing the status so that an encoding
// failure becomes a 500 instead of a truncated success.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		status = http.StatusInternalServerError
		data, _ = json.Marshal(errorResponse{Error: "Internal error", Details: "unable to encode response"})
	}

	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	_, _ = w.Write(append(data, '\n'))
}

func writeError(w http.ResponseWriter, status int, message, details string, suggestion ...string) {
	resp := errorResponse{
		Error:   message,
		Details: details,
	}
	if len(suggestion) > 0 {
		resp.Suggestion = suggestion[0]
	}
	writeJSON(w, status, resp)
}

func writeStorageError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "Rule set not found", err.Error())
	case errors.Is(err, storage.ErrInvalidName), errors.Is(err, storage.ErrNilRuleSet):
		writeError(w, http.StatusBadRequest, "Invalid rule set", err.Error())
	default:
		writeInternalError(w, err)
	}
}

func writeInternalError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusInternalServerError, "Internal error", err.Error())
}
