package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/arkilian/tablecat/internal/catalog"
	cerrors "github.com/arkilian/tablecat/internal/errors"
	"github.com/arkilian/tablecat/pkg/types"
	"github.com/gorilla/mux"
)

// TableResponse describes one registered table.
type TableResponse struct {
	ID         int           `json:"id"`
	Name       string        `json:"name"`
	PrimaryKey string        `json:"primary_key,omitempty"`
	File       string        `json:"file,omitempty"`
	SchemaDesc string        `json:"schema_desc"`
	Schema     *types.Schema `json:"schema"`
}

// ListTablesResponse is returned by GET /v1/tables.
type ListTablesResponse struct {
	Tables []TableResponse `json:"tables"`
	Count  int             `json:"count"`
}

// FieldResponse is returned by GET /v1/tables/{name}/fields/{field}.
type FieldResponse struct {
	Table string `json:"table"`
	Index int    `json:"index"`
	Name  string `json:"name"`
	Type  string `json:"type"`
	Len   int    `json:"len"`
}

// HealthResponse is returned by GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
	Tables int    `json:"tables"`
}

// CatalogHandler serves catalog lookups.
type CatalogHandler struct {
	cat   *catalog.Catalog
	ready func() bool
}

// NewCatalogHandler creates a handler over cat. ready reports whether the
// schema definitions have finished loading; nil means always ready.
func NewCatalogHandler(cat *catalog.Catalog, ready func() bool) *CatalogHandler {
	if ready == nil {
		ready = func() bool { return true }
	}
	return &CatalogHandler{cat: cat, ready: ready}
}

// NewRouter builds the full API router.
func NewRouter(cat *catalog.Catalog, ready func() bool) *mux.Router {
	h := NewCatalogHandler(cat, ready)

	router := mux.NewRouter()
	Use(router)
	h.Register(router)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "route not found", "", r.Header.Get(RequestIDHeader))
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "", r.Header.Get(RequestIDHeader))
	})
	return router
}

// Register adds the catalog routes to router.
func (h *CatalogHandler) Register(router *mux.Router) {
	router.HandleFunc("/healthz", h.health).Methods(http.MethodGet)

	router.HandleFunc("/v1/tables", h.listTables).Methods(http.MethodGet)
	router.HandleFunc("/v1/tables/id/{id}", h.getTableByID).Methods(http.MethodGet)
	router.HandleFunc("/v1/tables/{name}", h.getTable).Methods(http.MethodGet)
	router.HandleFunc("/v1/tables/{name}/fields/{field}", h.getField).Methods(http.MethodGet)
}

func (h *CatalogHandler) health(w http.ResponseWriter, r *http.Request) {
	if !h.ready() {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "loading"})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Tables: h.cat.Len()})
}

func (h *CatalogHandler) listTables(w http.ResponseWriter, r *http.Request) {
	tables := h.cat.Tables()
	resp := ListTablesResponse{
		Tables: make([]TableResponse, 0, len(tables)),
		Count:  len(tables),
	}
	for _, info := range tables {
		resp.Tables = append(resp.Tables, toTableResponse(info))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *CatalogHandler) getTable(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	info, ok := h.cat.TableByName(name)
	if !ok {
		h.writeCatalogError(w, r, cerrors.NewTableNotFound(fmt.Sprintf("no table named %q", name)))
		return
	}
	writeJSON(w, http.StatusOK, toTableResponse(info))
}

func (h *CatalogHandler) getTableByID(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid table id %q", raw), "", GetRequestID(r.Context()))
		return
	}

	info, ok := h.cat.Table(id)
	if !ok {
		h.writeCatalogError(w, r, cerrors.NewTableNotFound(fmt.Sprintf("no table with id %d", id)))
		return
	}
	writeJSON(w, http.StatusOK, toTableResponse(info))
}

func (h *CatalogHandler) getField(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	info, ok := h.cat.TableByName(vars["name"])
	if !ok {
		h.writeCatalogError(w, r, cerrors.NewTableNotFound(fmt.Sprintf("no table named %q", vars["name"])))
		return
	}

	idx, err := info.Schema.IndexOf(vars["field"])
	if err != nil {
		h.writeCatalogError(w, r, err)
		return
	}
	typ, err := info.Schema.FieldType(idx)
	if err != nil {
		h.writeCatalogError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, FieldResponse{
		Table: info.Name,
		Index: idx,
		Name:  vars["field"],
		Type:  typ.String(),
		Len:   typ.Len(),
	})
}

func (h *CatalogHandler) writeCatalogError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, cerrors.ErrTableNotFound), errors.Is(err, cerrors.ErrFieldNotFound):
		status = http.StatusNotFound
	case errors.Is(err, cerrors.ErrIndexOutOfRange):
		status = http.StatusBadRequest
	}

	message := err.Error()
	var ce *cerrors.CatalogError
	if errors.As(err, &ce) {
		message = ce.Message
	}
	writeError(w, status, message, cerrors.GetCode(err), GetRequestID(r.Context()))
}

type pathed interface {
	Path() string
}

func toTableResponse(info catalog.TableInfo) TableResponse {
	resp := TableResponse{
		ID:         info.ID(),
		Name:       info.Name,
		PrimaryKey: info.PrimaryKey,
		SchemaDesc: info.Schema.String(),
		Schema:     info.Schema,
	}
	if p, ok := info.File.(pathed); ok {
		resp.File = p.Path()
	}
	return resp
}
