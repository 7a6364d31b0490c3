package app

import (
	"net/http"

	"collab/api/internal/rbac"
	"github.com/go-chi/chi/v5"
)

func (s *HTTPServer) documentRoutes(r chi.Router) {
	r.Route("/documents", func(r chi.Router) {
		r.Get("/", s.handleListDocuments)
		r.Post("/", s.handleCreateDocument)

		r.Route("/{documentID}", func(r chi.Router) {
			r.Get("/", s.handleGetDocument)
			r.Put("/content", s.handleUpdateDocument)
			r.Get("/versions", s.handleListVersions)
			r.Post("/versions", s.handleCreateVersion)
			r.Post("/lock", s.handleLockDocument)
			r.Delete("/lock", s.handleUnlockDocument)
			r.Get("/permissions", s.handleListPermissions)
			r.Put("/permissions/{userID}", s.handleGrantPermission)
			r.Delete("/permissions/{userID}", s.handleRevokePermission)
		})
	})
}

func (s *HTTPServer) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	items, err := s.service.ListDocuments(r.Context(), actorFrom(r.Context()))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": documentViews(items)})
}

func (s *HTTPServer) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	var body CreateDocumentInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	doc, err := s.service.CreateDocument(r.Context(), actorFrom(r.Context()), body)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"document": documentView(doc)})
}

func (s *HTTPServer) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")
	doc, err := s.service.GetDocument(r.Context(), actorFrom(r.Context()), documentID)
	if err != nil {
		fail(w, r, err)
		return
	}
	if doc == nil {
		fail(w, r, notFoundError("document", documentID))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"document": documentView(*doc)})
}

func (s *HTTPServer) handleUpdateDocument(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Content string `json:"content"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	doc, err := s.service.UpdateDocument(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "documentID"), body.Content)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"document": documentView(doc)})
}

func (s *HTTPServer) handleListVersions(w http.ResponseWriter, r *http.Request) {
	items, err := s.service.ListVersions(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "documentID"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"versions": versionViews(items)})
}

func (s *HTTPServer) handleCreateVersion(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Content string `json:"content"`
		Comment string `json:"comment"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	version, err := s.service.CreateVersion(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "documentID"), body.Content, body.Comment)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"version": versionView(version)})
}

func (s *HTTPServer) handleLockDocument(w http.ResponseWriter, r *http.Request) {
	locked, err := s.service.LockDocument(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "documentID"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"locked": locked})
}

func (s *HTTPServer) handleUnlockDocument(w http.ResponseWriter, r *http.Request) {
	unlocked, err := s.service.UnlockDocument(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "documentID"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"unlocked": unlocked})
}

func (s *HTTPServer) handleListPermissions(w http.ResponseWriter, r *http.Request) {
	items, err := s.service.ListPermissions(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "documentID"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"permissions": permissionViews(items)})
}

func (s *HTTPServer) handleGrantPermission(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Level string `json:"level"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	permission, err := s.service.GrantPermission(r.Context(), actorFrom(r.Context()),
		chi.URLParam(r, "documentID"), chi.URLParam(r, "userID"), rbac.Level(body.Level))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"permission": permissionView(permission)})
}

func (s *HTTPServer) handleRevokePermission(w http.ResponseWriter, r *http.Request) {
	revoked, err := s.service.RevokePermission(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "documentID"), chi.URLParam(r, "userID"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"revoked": revoked})
}
