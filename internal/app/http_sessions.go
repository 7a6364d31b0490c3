package app

import (
	"context"
	"net/http"

	"collab/api/internal/store"
	"github.com/go-chi/chi/v5"
)

func (s *HTTPServer) sessionRoutes(r chi.Router) {
	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreateSession)

		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Post("/join", s.sessionAction(s.service.JoinSession))
			r.Post("/start", s.sessionAction(s.service.StartSession))
			r.Post("/lock", s.sessionAction(s.service.LockSession))
			r.Post("/unlock", s.sessionAction(s.service.UnlockSession))
			r.Post("/leave", s.sessionResult("left", s.service.LeaveSession))
			r.Post("/end", s.sessionResult("ended", s.service.EndSession))
			r.Post("/cancel", s.sessionResult("cancelled", s.service.CancelSession))
			r.Post("/token", s.handleIssueAccessToken)
			r.Get("/participants", s.handleListParticipants)

			r.Route("/participants/{userID}", func(r chi.Router) {
				r.Post("/control", s.participantAction(s.service.GrantControl))
				r.Delete("/control", s.participantAction(s.service.RevokeControl))
				r.Post("/mute", s.participantAction(s.service.MuteParticipant))
				r.Post("/unmute", s.participantAction(s.service.UnmuteParticipant))
				r.Post("/kick", s.participantAction(s.service.KickParticipant))
				r.Post("/moderator", s.participantAction(s.service.PromoteModerator))
			})
		})
	})
}

type sessionOp func(context.Context, Actor, string) (store.Session, error)
type sessionBoolOp func(context.Context, Actor, string) (bool, error)
type participantOp func(context.Context, Actor, string, string) (store.Participant, error)

func (s *HTTPServer) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var body CreateSessionInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	session, err := s.service.CreateSession(r.Context(), actorFrom(r.Context()), body)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"session": sessionView(session)})
}

func (s *HTTPServer) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	session, err := s.service.GetSession(r.Context(), actorFrom(r.Context()), sessionID)
	if err != nil {
		fail(w, r, err)
		return
	}
	if session == nil {
		fail(w, r, notFoundError("session", sessionID))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": sessionView(*session)})
}

func (s *HTTPServer) sessionAction(op sessionOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := op(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "sessionID"))
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"session": sessionView(session)})
	}
}

func (s *HTTPServer) sessionResult(field string, op sessionBoolOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ok, err := op(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "sessionID"))
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{field: ok})
	}
}

func (s *HTTPServer) participantAction(op participantOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		participant, err := op(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "sessionID"), chi.URLParam(r, "userID"))
		if err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"participant": participantView(participant)})
	}
}

func (s *HTTPServer) handleIssueAccessToken(w http.ResponseWriter, r *http.Request) {
	token, err := s.service.IssueAccessToken(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "sessionID"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": token})
}

func (s *HTTPServer) handleListParticipants(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("all") != "true"
	items, err := s.service.ListParticipants(r.Context(), actorFrom(r.Context()), chi.URLParam(r, "sessionID"), activeOnly)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"participants": participantViews(items)})
}
