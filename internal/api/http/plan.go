package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/partwise/partwise/internal/query/planner"
	"github.com/partwise/partwise/pkg/types"
)

// Planner builds scan plans. *planner.Planner implements it.
type Planner interface {
	Plan(ctx context.Context, sql string, params []interface{}) (*planner.Plan, error)
}

// PlanRequest represents a plan request.
type PlanRequest struct {
	SQL    string        `json:"sql"`
	Params []interface{} `json:"params,omitempty"`
}

// PlanResponse represents the plan response.
type PlanResponse struct {
	*planner.Plan
	RequestID string `json:"request_id"`
}

// PlanHandler handles POST /v1/plan requests.
type PlanHandler struct {
	planner Planner
}

// NewPlanHandler creates a new plan handler.
func NewPlanHandler(p Planner) *PlanHandler {
	return &PlanHandler{planner: p}
}

// ServeHTTP handles the plan HTTP request.
func (h *PlanHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "", requestID)
		return
	}

	var req PlanRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err), "", requestID)
		return
	}
	if req.SQL == "" {
		writeError(w, http.StatusBadRequest, "sql is required", "", requestID)
		return
	}

	plan, err := h.planner.Plan(r.Context(), req.SQL, normalizeParams(req.Params))
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	if plan.Targets == nil {
		plan.Targets = []planner.ScanTarget{}
	}
	writeJSON(w, http.StatusOK, PlanResponse{Plan: plan, RequestID: requestID})
}

// normalizeParams turns JSON numbers into int64 or float64.
func normalizeParams(params []interface{}) []interface{} {
	if len(params) == 0 {
		return nil
	}
	out := make([]interface{}, len(params))
	for i, p := range params {
		out[i] = types.NormalizeJSONNumber(p)
	}
	return out
}
