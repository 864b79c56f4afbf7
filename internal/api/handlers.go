package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/arbor/internal/models"
	"github.com/starford/arbor/internal/treeservice"
)

// maxBody caps request bodies; every request here is a small JSON object.
const maxBody = 64 << 10

// Handler holds API route handlers.
type Handler struct {
	svc *treeservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *treeservice.Service) *Handler {
	return &Handler{svc: svc}
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
	return false
}

// GetTree handles GET /api/tree.
//
//	@Summary		Get the nested tree snapshot
//	@Tags			tree
//	@Produce		json
//	@Param			If-None-Match	header		string	false	"Checksum of a previously fetched snapshot"
//	@Success		200				{object}	treeservice.Snapshot
//	@Success		304				"Snapshot unchanged"
//	@Security		BearerAuth
//	@Router			/tree [get]
func (h *Handler) GetTree(w http.ResponseWriter, r *http.Request) {
	body, sum, err := h.svc.Tree()
	if err != nil {
		slog.Error("tree snapshot failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	etag := `"` + sum + `"`
	w.Header().Set("ETag", etag)
	if match := r.Header.Get("If-None-Match"); match != "" && strings.Trim(match, `"`) == sum {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// GetRows handles GET /api/tree/rows.
//
//	@Summary		List the visible rows in display order
//	@Tags			tree
//	@Produce		json
//	@Success		200	{object}	RowsResponse
//	@Security		BearerAuth
//	@Router			/tree/rows [get]
func (h *Handler) GetRows(w http.ResponseWriter, _ *http.Request) {
	rows := h.svc.Rows()
	if rows == nil {
		rows = []models.Row{}
	}
	writeJSON(w, http.StatusOK, RowsResponse{Rows: rows})
}

// CheckTree handles GET /api/tree/check.
//
//	@Summary		Verify the cached tree's structural invariants
//	@Tags			tree
//	@Produce		json
//	@Success		200	{object}	CheckResponse
//	@Failure		500	{object}	CheckResponse
//	@Security		BearerAuth
//	@Router			/tree/check [get]
func (h *Handler) CheckTree(w http.ResponseWriter, _ *http.Request) {
	if err := h.svc.Check(); err != nil {
		slog.Error("tree invariant violated", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, CheckResponse{OK: false, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, CheckResponse{OK: true})
}

// GetSession handles GET /api/session.
//
//	@Summary		Get focus, cut marker and context menu state
//	@Tags			view
//	@Produce		json
//	@Success		200	{object}	SessionResponse
//	@Security		BearerAuth
//	@Router			/session [get]
func (h *Handler) GetSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Session())
}

// GetKeys handles GET /api/keys.
//
//	@Summary		List the active key bindings
//	@Tags			view
//	@Produce		json
//	@Success		200	{object}	KeysResponse
//	@Security		BearerAuth
//	@Router			/keys [get]
func (h *Handler) GetKeys(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, KeysResponse{Keys: h.svc.Keys()})
}

// CreateItem handles POST /api/items.
//
//	@Summary		Create a folder or note
//	@Tags			items
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateItemRequest	true	"Item to create"
//	@Success		201		{object}	ResultResponse
//	@Failure		400		{object}	ResultResponse
//	@Failure		404		{object}	ResultResponse
//	@Failure		409		{object}	ResultResponse
//	@Security		BearerAuth
//	@Router			/items [post]
func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req CreateItemRequest
	if !decode(w, r, &req) {
		return
	}
	writeResult(w, http.StatusCreated, h.svc.Create(r.Context(), req), nil)
}

// RenameItem handles PATCH /api/items/{id}.
//
//	@Summary		Rename an item
//	@Tags			items
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Item id"
//	@Param			body	body		RenameItemRequest	true	"New name"
//	@Success		200		{object}	ResultResponse
//	@Failure		404		{object}	ResultResponse
//	@Security		BearerAuth
//	@Router			/items/{id} [patch]
func (h *Handler) RenameItem(w http.ResponseWriter, r *http.Request) {
	var req RenameItemRequest
	if !decode(w, r, &req) {
		return
	}
	writeResult(w, http.StatusOK, h.svc.Rename(r.Context(), chi.URLParam(r, "id"), req), nil)
}

// DeleteItem handles DELETE /api/items/{id}.
//
//	@Summary		Delete an item and everything beneath it
//	@Tags			items
//	@Param			id	path		string	true	"Item id"
//	@Success		200	{object}	ResultResponse
//	@Failure		404	{object}	ResultResponse
//	@Security		BearerAuth
//	@Router			/items/{id} [delete]
func (h *Handler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	writeResult(w, http.StatusOK, h.svc.Delete(r.Context(), chi.URLParam(r, "id")), nil)
}

// MoveItem handles POST /api/items/{id}/move.
//
//	@Summary		Move an item onto a folder, after a note, or to the root level
//	@Tags			items
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Item id"
//	@Param			body	body		MoveItemRequest	true	"Drop target"
//	@Success		200		{object}	ResultResponse
//	@Failure		409		{object}	ResultResponse
//	@Security		BearerAuth
//	@Router			/items/{id}/move [post]
func (h *Handler) MoveItem(w http.ResponseWriter, r *http.Request) {
	var req MoveItemRequest
	if !decode(w, r, &req) {
		return
	}
	writeResult(w, http.StatusOK, h.svc.Move(r.Context(), chi.URLParam(r, "id"), req), nil)
}

// PromoteItem handles POST /api/items/{id}/promote.
//
//	@Summary		Move an item up to its grandparent
//	@Tags			items
//	@Param			id	path		string	true	"Item id"
//	@Success		200	{object}	ResultResponse
//	@Failure		409	{object}	ResultResponse
//	@Security		BearerAuth
//	@Router			/items/{id}/promote [post]
func (h *Handler) PromoteItem(w http.ResponseWriter, r *http.Request) {
	writeResult(w, http.StatusOK, h.svc.Promote(r.Context(), chi.URLParam(r, "id")), nil)
}

// CutItem handles POST /api/items/{id}/cut.
func (h *Handler) CutItem(w http.ResponseWriter, r *http.Request) {
	writeResult(w, http.StatusOK, h.svc.Cut(chi.URLParam(r, "id")), nil)
}

// Paste handles POST /api/paste.
//
//	@Summary		Move the cut item onto the focused item
//	@Tags			items
//	@Success		200	{object}	ResultResponse
//	@Failure		409	{object}	ResultResponse
//	@Security		BearerAuth
//	@Router			/paste [post]
func (h *Handler) Paste(w http.ResponseWriter, r *http.Request) {
	writeResult(w, http.StatusOK, h.svc.Paste(r.Context()), nil)
}

// ClickItem handles POST /api/items/{id}/click.
func (h *Handler) ClickItem(w http.ResponseWriter, r *http.Request) {
	act, res := h.svc.Click(r.Context(), chi.URLParam(r, "id"))
	writeResult(w, http.StatusOK, res, &act)
}

// ToggleItem handles POST /api/items/{id}/toggle.
func (h *Handler) ToggleItem(w http.ResponseWriter, r *http.Request) {
	writeResult(w, http.StatusOK, h.svc.Toggle(r.Context(), chi.URLParam(r, "id")), nil)
}

// OpenContextMenu handles POST /api/items/{id}/context-menu.
func (h *Handler) OpenContextMenu(w http.ResponseWriter, r *http.Request) {
	var req ContextMenuRequest
	if !decode(w, r, &req) {
		return
	}
	act, res := h.svc.ContextMenu(chi.URLParam(r, "id"), req)
	writeResult(w, http.StatusOK, res, &act)
}

// PressKey handles POST /api/keys.
//
//	@Summary		Deliver one key press to the tree
//	@Tags			view
//	@Accept			json
//	@Produce		json
//	@Param			body	body		KeyRequest	true	"Key press"
//	@Success		200		{object}	ResultResponse
//	@Security		BearerAuth
//	@Router			/keys [post]
func (h *Handler) PressKey(w http.ResponseWriter, r *http.Request) {
	var req KeyRequest
	if !decode(w, r, &req) {
		return
	}
	act, res := h.svc.Key(r.Context(), req)
	writeResult(w, http.StatusOK, res, &act)
}

// Reveal handles POST /api/reveal/{id}.
func (h *Handler) Reveal(w http.ResponseWriter, r *http.Request) {
	writeResult(w, http.StatusOK, h.svc.Reveal(r.Context(), chi.URLParam(r, "id")), nil)
}

// Refresh handles POST /api/refresh.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	writeResult(w, http.StatusOK, h.svc.Refresh(r.Context()), nil)
}
