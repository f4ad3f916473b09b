package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"provisionstore/backend/internal/domain"
	"provisionstore/backend/internal/service"
)

type settingsKey struct{}

func withSettings(ctx context.Context, settings domain.Settings) context.Context {
	return context.WithValue(ctx, settingsKey{}, settings)
}

// settingsFrom returns the settings loaded by requirePIN for this request.
func settingsFrom(ctx context.Context) domain.Settings {
	if settings, ok := ctx.Value(settingsKey{}).(domain.Settings); ok {
		return settings
	}
	return domain.DefaultSettings()
}

func bearerPIN(r *http.Request) (string, bool) {
	authorization := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(authorization) < len("Bearer ") || !strings.EqualFold(authorization[:len("Bearer ")], "bearer ") {
		return "", false
	}
	pin := strings.TrimSpace(authorization[len("Bearer "):])
	return pin, pin != ""
}

// requirePIN checks the bearer PIN against freshly loaded settings and hands
// those settings to the handler.
func (a *API) requirePIN(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pin, ok := bearerPIN(r)
		if !ok {
			a.writeError(w, r, fmt.Errorf("missing bearer pin: %w", service.ErrInvalidPin))
			return
		}

		settings, err := a.service.LoadSettings(r.Context())
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		if err := service.VerifyPIN(settings, pin); err != nil {
			a.writeError(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(withSettings(r.Context(), settings)))
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.service.Login(r.Context(), req.PIN); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *API) handleChangePIN(w http.ResponseWriter, r *http.Request) {
	var req domain.ChangePINRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.service.ChangePIN(r.Context(), req); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *API) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, settingsFrom(r.Context()))
}

func (a *API) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req domain.SettingsUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	updated, err := a.service.UpdateSettings(r.Context(), settingsFrom(r.Context()), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}
