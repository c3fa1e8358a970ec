package evaluation

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/radicugloss/radicugloss/internal/pkg/errors"
	"github.com/radicugloss/radicugloss/internal/pkg/logger"
	"github.com/radicugloss/radicugloss/pkg/radicugloss"
)

// Legacy endpoint messages, kept for existing clients.
const (
	msgMissingJSON   = "Missing JSON in request"
	msgMissingFields = "search_results or true_relevance_set are missing in data"
	msgWrongTypes    = "search_results should be a list and true_relevance_set should be a dict"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 8 << 20

// Handler provides HTTP handlers for evaluation.
type Handler struct {
	evaluator *Evaluator
	log       *logger.Logger
}

// NewHandler creates a new evaluation handler.
func NewHandler(e *Evaluator, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Discard()
	}
	return &Handler{evaluator: e, log: log}
}

// RegisterRoutes registers evaluation routes.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /nrdcgl", h.handleLegacyNRDCGL)
	mux.HandleFunc("POST /v1/score", h.handleScore)
	mux.HandleFunc("POST /v1/evaluate", h.handleEvaluate)
	mux.HandleFunc("POST /v1/judgments", h.handleLoadJudgments)
	mux.HandleFunc("GET /v1/judgments/{query_id}", h.handleGetJudgments)
	mux.HandleFunc("GET /v1/history/{query_id}", h.handleHistory)
	mux.HandleFunc("DELETE /v1/history/{query_id}", h.handleDeleteHistory)
}

// fail writes err. Rejections of the caller's input go to debug, everything
// else is a warning.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	log := h.log.WithContext(r.Context()).WithError(err)
	if apperrors.IsValidation(err) || apperrors.IsNotFound(err) {
		log.Debug(msg)
	} else {
		log.Warn(msg)
	}
	apperrors.WriteError(w, err)
}

// writeJSON encodes v before the status is sent, so an unencodable value
// becomes a 500 instead of an empty 200.
func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		apperrors.WriteError(w, apperrors.InternalError("encode response", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// decodeJSON decodes the body into v. Failures are invalid requests.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return apperrors.InvalidRequestError("invalid request body: " + err.Error())
	}
	return nil
}

func isJSONContent(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

type legacyRequest struct {
	ScoreParams

	SearchResults    json.RawMessage `json:"search_results"`
	TrueRelevanceSet json.RawMessage `json:"true_relevance_set"`
}

// LegacyResponse is the body of a successful POST /nrdcgl.
type LegacyResponse struct {
	Result float64 `json:"result"`
}

// handleLegacyNRDCGL handles POST /nrdcgl with the legacy request shape:
// search_results (list), true_relevance_set (dict) and optional k,
// fp_penalty, fn_penalty, invert and punish_max.
func (h *Handler) handleLegacyNRDCGL(w http.ResponseWriter, r *http.Request) {
	log := h.log.WithContext(r.Context())
	log.Info("nrdcgl endpoint called")

	if !isJSONContent(r) {
		log.Info(msgMissingJSON)
		apperrors.WriteError(w, apperrors.InvalidRequestError(msgMissingJSON))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		apperrors.WriteError(w, apperrors.InvalidRequestError("read request body: "+err.Error()))
		return
	}

	var req legacyRequest
	if err := json.Unmarshal(body, &req); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			apperrors.WriteError(w, apperrors.InvalidRequestError(typeErr.Field+" has the wrong type").
				WithDetail("field", typeErr.Field))
			return
		}
		apperrors.WriteError(w, apperrors.InvalidRequestError("invalid request body: "+err.Error()))
		return
	}

	if isEmptyJSON(req.SearchResults) || isEmptyJSON(req.TrueRelevanceSet) {
		log.Error(msgMissingFields)
		apperrors.WriteError(w, apperrors.InvalidRequestError(msgMissingFields))
		return
	}

	var results []string
	var set radicugloss.RelevanceSet
	if json.Unmarshal(req.SearchResults, &results) != nil || json.Unmarshal(req.TrueRelevanceSet, &set) != nil {
		log.Error(msgWrongTypes)
		apperrors.WriteError(w, apperrors.InvalidRequestError(msgWrongTypes))
		return
	}

	res, err := h.evaluator.Score(r.Context(), "legacy", ScoreRequest{
		ScoreParams: req.ScoreParams,
		Results:     results,
		Judgments:   set,
	})
	if err != nil {
		log.WithError(err).Error("Error in nrdcgl")
		apperrors.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, LegacyResponse{Result: res.NRDCGL})
}

// isEmptyJSON reports whether raw is absent or a falsy JSON value.
func isEmptyJSON(raw json.RawMessage) bool {
	switch string(bytes.TrimSpace(raw)) {
	case "", "null", "[]", "{}", `""`, "0", "false":
		return true
	}
	return false
}

// handleScore handles POST /v1/score
func (h *Handler) handleScore(w http.ResponseWriter, r *http.Request) {
	var req ScoreRequest
	if err := decodeJSON(r, &req); err != nil {
		apperrors.WriteError(w, err)
		return
	}
	if err := validateStruct(req); err != nil {
		apperrors.WriteError(w, err)
		return
	}

	res, err := h.evaluator.Score(r.Context(), "http", req)
	if err != nil {
		h.fail(w, r, "score failed", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleEvaluate handles POST /v1/evaluate
func (h *Handler) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := decodeJSON(r, &req); err != nil {
		apperrors.WriteError(w, err)
		return
	}

	run, err := h.evaluator.Evaluate(r.Context(), req)
	if err != nil {
		h.fail(w, r, "evaluation failed", err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

type judgmentsBody struct {
	Judgments []RelevanceJudgment `json:"judgments" validate:"required,min=1,dive"`
}

// handleLoadJudgments handles POST /v1/judgments. The body is either a bare
// array of judgments or {"judgments": [...]}.
func (h *Handler) handleLoadJudgments(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		apperrors.WriteError(w, apperrors.InvalidRequestError("read request body: "+err.Error()))
		return
	}

	var req judgmentsBody
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		err = json.Unmarshal(trimmed, &req.Judgments)
	} else {
		err = json.Unmarshal(trimmed, &req)
	}
	if err != nil {
		apperrors.WriteError(w, apperrors.InvalidRequestError("invalid request body: "+err.Error()))
		return
	}
	if err := validateStruct(req); err != nil {
		apperrors.WriteError(w, err)
		return
	}

	h.evaluator.LoadJudgments(req.Judgments)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "loaded",
		"count":  len(req.Judgments),
	})
}

// handleGetJudgments handles GET /v1/judgments/{query_id}
func (h *Handler) handleGetJudgments(w http.ResponseWriter, r *http.Request) {
	queryID := r.PathValue("query_id")
	if err := checkQueryID(queryID); err != nil {
		apperrors.WriteError(w, err)
		return
	}
	set, ok := h.evaluator.Judgments(queryID)
	if !ok {
		h.fail(w, r, "judgments lookup failed", apperrors.NotFoundError("judgments for query "+queryID))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query_id":  queryID,
		"judgments": set,
	})
}

// handleHistory handles GET /v1/history/{query_id}?since=RFC3339&limit=N
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	queryID := r.PathValue("query_id")

	var since time.Time
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			apperrors.WriteError(w, apperrors.ValidationError("since must be an RFC3339 timestamp").WithDetail("since", v))
			return
		}
		since = t
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			apperrors.WriteError(w, apperrors.ValidationError("limit must be a non-negative integer").WithDetail("limit", v))
			return
		}
		limit = n
	}

	points, err := h.evaluator.History(r.Context(), queryID, since, limit)
	if err != nil {
		h.fail(w, r, "history read failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query_id": queryID,
		"points":   points,
	})
}

// handleDeleteHistory handles DELETE /v1/history/{query_id}
func (h *Handler) handleDeleteHistory(w http.ResponseWriter, r *http.Request) {
	queryID := r.PathValue("query_id")
	if err := h.evaluator.DeleteHistory(r.Context(), queryID); err != nil {
		h.fail(w, r, "history delete failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query_id": queryID,
		"status":   "deleted",
	})
}
