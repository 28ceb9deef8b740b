package http

import (
	"fmt"
	"net/http"

	"VerificarSmsPlatform/services/panel-service/internal/service"
)

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req service.CreateUserRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, err := h.users.CreateUser(r.Context(), actor(r), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"ok":      true,
		"usuario": user.Username,
		"rol":     user.Role,
		"email":   user.Email,
		"mensaje": "Usuario creado correctamente",
	})
}

func (h *Handler) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.GetUser(r.Context(), r.PathValue("username"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":      true,
		"usuario": user.Username,
		"rol":     user.Role,
		"email":   user.Email,
	})
}

func (h *Handler) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateUserRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.users.UpdateUser(r.Context(), actor(r), r.PathValue("username"), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":                      true,
		"usuario":                 result.User.Username,
		"rol":                     result.User.Role,
		"email":                   result.User.Email,
		"editando_propio_usuario": result.SelfEdit,
		"sesiones_actualizadas":   result.SessionsUpdated,
		"mensaje":                 "Usuario actualizado correctamente",
	})
}

func (h *Handler) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")
	revoked, err := h.users.DeleteUser(r.Context(), actor(r), username)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":                true,
		"sesiones_cerradas": revoked,
		"mensaje":           fmt.Sprintf("Usuario '%s' eliminado correctamente", username),
	})
}

func (h *Handler) handleUsage(w http.ResponseWriter, r *http.Request) {
	stats, err := h.reports.Usage(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":    true,
		"datos": stats,
	})
}

func (h *Handler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.reports.Metrics(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":    true,
		"datos": metrics,
	})
}
