package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/partwise/partwise/internal/manifest"
	"github.com/partwise/partwise/pkg/types"
)

// TablesResponse lists table definitions.
type TablesResponse struct {
	Tables    []types.TableDef `json:"tables"`
	RequestID string           `json:"request_id"`
}

// TableResponse carries one table definition.
type TableResponse struct {
	Table     types.TableDef `json:"table"`
	RequestID string         `json:"request_id"`
}

// TablesHandler serves /v1/tables and /v1/tables/{id}.
type TablesHandler struct {
	catalog manifest.Catalog
}

// NewTablesHandler creates a new tables handler.
func NewTablesHandler(catalog manifest.Catalog) *TablesHandler {
	return &TablesHandler{catalog: catalog}
}

// Register adds the handler's routes to mux.
func (h *TablesHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/tables", h.list)
	mux.HandleFunc("POST /v1/tables", h.register)
	mux.HandleFunc("GET /v1/tables/{id}", h.show)
	mux.HandleFunc("DELETE /v1/tables/{id}", h.drop)
	mux.HandleFunc("POST /v1/tables/{id}/partitions", h.addPartition)
}

func (h *TablesHandler) list(w http.ResponseWriter, r *http.Request) {
	defs, err := h.catalog.ListTables(r.Context())
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	if defs == nil {
		defs = []types.TableDef{}
	}
	writeJSON(w, http.StatusOK, TablesResponse{Tables: defs, RequestID: GetRequestID(r.Context())})
}

func (h *TablesHandler) register(w http.ResponseWriter, r *http.Request) {
	var def types.TableDef
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err), "", GetRequestID(r.Context()))
		return
	}
	spec, err := h.catalog.RegisterTable(r.Context(), def)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, TableResponse{Table: spec.Def(), RequestID: GetRequestID(r.Context())})
}

func (h *TablesHandler) show(w http.ResponseWriter, r *http.Request) {
	def, err := h.catalog.GetTableDef(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TableResponse{Table: *def, RequestID: GetRequestID(r.Context())})
}

func (h *TablesHandler) drop(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.DropTable(r.Context(), r.PathValue("id")); err != nil {
		writeFailure(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TablesHandler) addPartition(w http.ResponseWriter, r *http.Request) {
	var rd types.RangeDef
	if err := json.NewDecoder(r.Body).Decode(&rd); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err), "", GetRequestID(r.Context()))
		return
	}
	spec, err := h.catalog.AddRangePartition(r.Context(), r.PathValue("id"), rd)
	if err != nil {
		writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TableResponse{Table: spec.Def(), RequestID: GetRequestID(r.Context())})
}
