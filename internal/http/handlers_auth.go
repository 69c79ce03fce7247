package http

import (
	"context"
	"errors"
	"net/http"

	"voxafi/internal/auth"
	applog "voxafi/internal/log"
)

type sessionKey struct{}

func withSession(ctx context.Context, sess auth.Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, sess)
}

// sessionFrom returns the verified session stored by requireUser.
func sessionFrom(ctx context.Context) auth.Session {
	sess, _ := ctx.Value(sessionKey{}).(auth.Session)
	return sess
}

func userID(r *http.Request) string {
	return sessionFrom(r.Context()).User.ID
}

// requireUser rejects requests without a valid bearer token.
func (s *Server) requireUser(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			ErrorResponse(http.StatusUnauthorized, "missing bearer token").
				Header("WWW-Authenticate", `Bearer realm="voxafi"`).
				Write(w)
			return
		}
		sess, err := s.auth.Verify(r.Context(), token)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) {
				ErrorResponse(http.StatusUnauthorized, err.Error()).
					Header("WWW-Authenticate", `Bearer realm="voxafi", error="invalid_token"`).
					Write(w)
				return
			}
			writeError(w, r, applog.OpLogin, err)
			return
		}
		ctx := withSession(r.Context(), sess)
		ctx = applog.NewContext(ctx, applog.FromContext(ctx).With(applog.FieldUserID, sess.User.ID))
		next(w, r.WithContext(ctx))
	})
}

type credentialsRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword,omitempty"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, applog.OpCreate, err)
		return
	}
	if req.ConfirmPassword != "" {
		if err := auth.ValidateRegistration(req.Email, req.Password, req.ConfirmPassword); err != nil {
			writeError(w, r, applog.OpCreate, err)
			return
		}
	}
	ctx, cancel := withTimeout(r)
	defer cancel()
	sess, err := s.auth.Register(ctx, req.Email, req.Password)
	if errors.Is(err, auth.ErrConfirmationPending) {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "confirmation_pending"})
		return
	}
	if err != nil {
		writeError(w, r, applog.OpCreate, err)
		return
	}
	applog.FromContext(r.Context()).InfoContext(r.Context(), "User registered", applog.NewFields().WithUser(sess.User.ID).WithOperation(applog.OpCreate).ToSlice()...)
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, applog.OpLogin, err)
		return
	}
	ctx, cancel := withTimeout(r)
	defer cancel()
	sess, err := s.auth.Login(ctx, req.Email, req.Password)
	if err != nil {
		writeError(w, r, applog.OpLogin, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.Logout(r.Context(), sessionFrom(r.Context()).AccessToken); err != nil {
		writeError(w, r, applog.OpDelete, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sessionFrom(r.Context()).User)
}
