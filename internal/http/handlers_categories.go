package http

import (
	"net/http"
	"strings"

	"voxafi/internal/core"
	applog "voxafi/internal/log"
)

type categoryRequest struct {
	Name  string `json:"name"`
	Icon  string `json:"icon,omitempty"`
	Color string `json:"color,omitempty"`
}

type categoryPatchRequest struct {
	Name  *string `json:"name,omitempty"`
	Icon  *string `json:"icon,omitempty"`
	Color *string `json:"color,omitempty"`
}

func (req categoryPatchRequest) toPatch() (core.CategoryPatch, error) {
	p := core.CategoryPatch{Icon: req.Icon, Color: req.Color}
	if req.Name != nil {
		name := strings.TrimSpace(sanitizeInput(*req.Name))
		if name == "" {
			return core.CategoryPatch{}, core.ErrEmptyName
		}
		p.Name = &name
	}
	return p, nil
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()
	cats, err := s.budget.Categories(ctx, userID(r))
	if err != nil {
		writeError(w, r, applog.OpList, err)
		return
	}
	if cats == nil {
		cats = []core.Category{}
	}
	writeJSON(w, http.StatusOK, cats)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, applog.OpCreate, err)
		return
	}
	ctx, cancel := withTimeout(r)
	defer cancel()
	c, err := s.budget.AddCategory(ctx, userID(r), core.Category{
		Name:  sanitizeInput(req.Name),
		Icon:  sanitizeInput(req.Icon),
		Color: sanitizeInput(req.Color),
	})
	if err != nil {
		writeError(w, r, applog.OpCreate, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryPatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, applog.OpUpdate, err)
		return
	}
	patch, err := req.toPatch()
	if err != nil {
		writeError(w, r, applog.OpUpdate, err)
		return
	}
	ctx, cancel := withTimeout(r)
	defer cancel()
	c, err := s.budget.UpdateCategory(ctx, userID(r), r.PathValue("id"), patch)
	if err != nil {
		writeError(w, r, applog.OpUpdate, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r)
	defer cancel()
	if err := s.budget.DeleteCategory(ctx, userID(r), r.PathValue("id")); err != nil {
		writeError(w, r, applog.OpDelete, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
