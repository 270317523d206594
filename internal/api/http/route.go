package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/partwise/partwise/internal/routing"
	"github.com/partwise/partwise/pkg/types"
)

// Router places rows. *routing.Service implements it.
type Router interface {
	Route(ctx context.Context, table string, row types.Row) (*routing.Result, error)
}

// RouteRequest represents a route request. Exactly one of Row and Rows is
// set.
type RouteRequest struct {
	Table string      `json:"table"`
	Row   types.Row   `json:"row,omitempty"`
	Rows  []types.Row `json:"rows,omitempty"`
}

// RouteResponse represents the route response.
type RouteResponse struct {
	Results   []*routing.Result `json:"results"`
	RequestID string            `json:"request_id"`
}

// RouteHandler handles POST /v1/route requests.
type RouteHandler struct {
	router Router
}

// NewRouteHandler creates a new route handler.
func NewRouteHandler(router Router) *RouteHandler {
	return &RouteHandler{router: router}
}

// ServeHTTP handles the route HTTP request.
func (h *RouteHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "", requestID)
		return
	}

	var req RouteRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err), "", requestID)
		return
	}
	if req.Table == "" {
		writeError(w, http.StatusBadRequest, "table is required", "", requestID)
		return
	}

	rows := req.Rows
	if req.Row != nil {
		rows = append([]types.Row{req.Row}, rows...)
	}
	if len(rows) == 0 {
		writeError(w, http.StatusBadRequest, "row or rows is required", "", requestID)
		return
	}

	resp := RouteResponse{Results: make([]*routing.Result, 0, len(rows)), RequestID: requestID}
	for _, row := range rows {
		res, err := h.router.Route(r.Context(), req.Table, row.NormalizeJSONNumbers())
		if err != nil {
			writeFailure(w, r, err)
			return
		}
		resp.Results = append(resp.Results, res)
	}
	writeJSON(w, http.StatusOK, resp)
}
