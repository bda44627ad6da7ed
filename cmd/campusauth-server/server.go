package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	campusAuth "github.com/MrEthical07/campusAuth"
	"github.com/MrEthical07/campusAuth/metrics/export/prometheus"
	"github.com/MrEthical07/campusAuth/middleware"
	"github.com/MrEthical07/campusAuth/model"
	"github.com/MrEthical07/campusAuth/ownership"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

var defaultPermissions = []string{
	"students.read",
	"classes.read",
	"invoices.read",
	"teachers.read",
	"parents.read",
}

var defaultRoles = map[string][]string{
	"teacher": {"students.read", "classes.read", "teachers.read"},
	"student": {"students.read", "classes.read"},
	"parent":  {"students.read", "classes.read", "invoices.read", "parents.read"},
}

var errBadRequest = errors.New("malformed request body")

type server struct {
	engine *campusAuth.Engine
	logger *slog.Logger
}

func newServer(engine *campusAuth.Engine, logger *slog.Logger) *server {
	return &server{engine: engine, logger: logger}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Method(http.MethodGet, "/metrics", prometheus.NewExporter(s.engine).Handler())

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", s.login)
		r.Post("/2fa/verify", s.verifyTwoFactor)
		r.Post("/refresh", s.refresh)
		r.Post("/logout", s.logout)
		r.Get("/password/requirements", s.passwordRequirements)
		r.Post("/password/reset", s.requestReset)
		r.Post("/password/reset/confirm", s.confirmReset)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(s.engine))
			r.Post("/password/change", s.changePassword)
			r.Get("/2fa/status", s.twoFactorStatus)
			r.Post("/2fa/enroll", s.enrollTwoFactor)
			r.Post("/2fa/enable", s.enableTwoFactor)
			r.Post("/2fa/disable", s.disableTwoFactor)
			r.Post("/2fa/backup-codes", s.regenerateBackupCodes)
			r.Get("/me/access", s.accessContext)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(s.engine))
		s.record(r, "/students/{id}", "students.read", ownership.TargetStudent)
		s.record(r, "/classes/{id}", "classes.read", ownership.TargetClass)
		s.record(r, "/invoices/{id}", "invoices.read", ownership.TargetInvoice)
		s.record(r, "/teachers/{id}", "teachers.read", ownership.TargetTeacher)
		s.record(r, "/parents/{id}", "parents.read", ownership.TargetParent)

		r.Route("/admin/users/{userID}", func(r chi.Router) {
			r.Use(requireRole(model.RoleAdmin))
			r.Get("/lockout", s.lockoutStatus)
			r.Post("/unlock", s.unlock)
		})
	})

	return r
}

// record mounts a read endpoint guarded by an ownership check. The body is
// a placeholder for the real record lookup.
func (s *server) record(r chi.Router, pattern, perm string, target ownership.Target) {
	check := ownership.Check{Target: target, Source: middleware.URLParam("id")}
	r.With(middleware.RequireOwnership(s.engine, perm, check)).Get(pattern, func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"type": target.String(),
			"id":   chi.URLParam(r, "id"),
		})
	})
}

func requireRole(role model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := middleware.PrincipalFromContext(r.Context())
			if !ok || p.Role != role {
				middleware.WriteError(w, campusAuth.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		middleware.WriteJSON(w, http.StatusBadRequest, map[string]string{
			"error": errBadRequest.Error(),
			"kind":  campusAuth.KindValidation.String(),
		})
		return false
	}
	return true
}

func principal(r *http.Request) model.Principal {
	p, _ := middleware.PrincipalFromContext(r.Context())
	return p
}

func (s *server) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !decode(w, r, &req) {
		return
	}
	res, err := s.engine.LoginWithPassword(r.Context(), req.Username, req.Password, middleware.ClientIP(r))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}

func (s *server) verifyTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
		Code   string `json:"code"`
	}
	if !decode(w, r, &req) {
		return
	}
	res, err := s.engine.VerifyTwoFactorAndLogin(r.Context(), req.UserID, req.Code, middleware.ClientIP(r))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (s *server) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := s.engine.Refresh(r.Context(), req.RefreshToken, middleware.ClientIP(r))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, res)
}

func (s *server) logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.engine.Revoke(r.Context(), req.RefreshToken, middleware.ClientIP(r)); err != nil {
		middleware.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) passwordRequirements(w http.ResponseWriter, _ *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string][]string{"requirements": s.engine.PasswordRequirements()})
}

func (s *server) requestReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := s.engine.RequestPasswordReset(r.Context(), req.Email); err != nil {
		middleware.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *server) confirmReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token       string `json:"token"`
		NewPassword string `json:"new_password"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := s.engine.ConfirmPasswordReset(r.Context(), req.Token, req.NewPassword); err != nil {
		middleware.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) changePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Current string `json:"current_password"`
		Next    string `json:"new_password"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := s.engine.ChangePassword(r.Context(), principal(r).UserID, req.Current, req.Next); err != nil {
		middleware.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type codeRequest struct {
	Code string `json:"code"`
}

func (s *server) twoFactorStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.engine.TwoFactorStatus(r.Context(), principal(r).UserID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, st)
}

func (s *server) enrollTwoFactor(w http.ResponseWriter, r *http.Request) {
	setup, err := s.engine.EnrollTwoFactor(r.Context(), principal(r).UserID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, setup)
}

func (s *server) enableTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.engine.EnableTwoFactor(r.Context(), principal(r).UserID, req.Code); err != nil {
		middleware.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) disableTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.engine.DisableTwoFactor(r.Context(), principal(r).UserID, req.Code); err != nil {
		middleware.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) regenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if !decode(w, r, &req) {
		return
	}
	codes, err := s.engine.RegenerateBackupCodes(r.Context(), principal(r).UserID, req.Code)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string][]string{"backup_codes": codes})
}

func (s *server) accessContext(w http.ResponseWriter, r *http.Request) {
	ac, err := s.engine.AccessContext(r.Context(), principal(r))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, ac)
}

func (s *server) lockoutStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.engine.LockoutStatus(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, st)
}

func (s *server) unlock(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.UnlockAccount(r.Context(), chi.URLParam(r, "userID"), principal(r).UserID); err != nil {
		middleware.WriteError(w, err)
		return
	}
	s.logger.Info("account unlocked", "user_id", chi.URLParam(r, "userID"), "by", principal(r).UserID)
	w.WriteHeader(http.StatusNoContent)
}
