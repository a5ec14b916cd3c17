package httpapi

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/poikeeper/internal/common"
)

type loginRequest struct {
	BadgeNum string `json:"badge_num"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeInto(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	tokens, err := s.svc.Users.Login(r.Context(), req.BadgeNum, req.Password)
	if err != nil {
		if errors.Is(err, common.ErrorUnauthorized) {
			s.metrics.LoginFailures.Inc()
			s.logger.Info(r.Context(), "login rejected", "badge_num", req.BadgeNum)
		}
		s.writeError(w, r, err)
		return
	}

	ok(w, http.StatusOK, "Login Successful", tokens)
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeInto(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.RefreshToken == "" {
		s.writeError(w, r, badRequest("refresh_token: value is required"))
		return
	}

	tokens, err := s.svc.Users.RefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ok(w, http.StatusOK, "", tokens)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	id, _ := identityFrom(r.Context())
	if err := s.svc.Users.Logout(r.Context(), id.UserID); err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, http.StatusOK, "Logged out", nil)
}

func (s *Server) listLoginAttempts(w http.ResponseWriter, r *http.Request) {
	p, err := queryPage(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	page, err := s.svc.Users.LoginAttempts(r.Context(), p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, http.StatusOK, "", page)
}
