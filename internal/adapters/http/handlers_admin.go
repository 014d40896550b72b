package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.service.Permissions().IsAdmin(requesterID(r)) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) readiness(w http.ResponseWriter, r *http.Request) {
	if err := h.service.CheckHealth(r.Context()); err != nil {
		writeDomainError(w, r, "readiness", err)
		return
	}
	writeMessage(w, http.StatusOK, "ready")
}

func (h *Handler) listSystemLicenses(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]any{
		"snapshot": h.service.SystemLicenseSnapshot(),
		"licenses": h.service.SystemLicenses(),
	})
}

func (h *Handler) reloadSystemLicenses(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.ReloadSystemLicenses(r.Context(), requesterID(r))
	if err != nil {
		writeDomainError(w, r, "reload_system_licenses", err)
		return
	}
	writeSuccess(w, http.StatusOK, res)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Health(r.Context())
	if err != nil {
		writeDomainError(w, r, "health", err)
		return
	}
	writeSuccess(w, http.StatusOK, report)
}

type allowForumRequest struct {
	ChannelID string `json:"channel_id"`
}

func (h *Handler) listForums(w http.ResponseWriter, r *http.Request) {
	ids, err := h.service.AllowedForums(requesterID(r))
	if err != nil {
		writeDomainError(w, r, "list_forums", err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{
		"channel_ids": ids,
		"all_forums":  len(ids) == 0,
	})
}

func (h *Handler) allowForum(w http.ResponseWriter, r *http.Request) {
	var req allowForumRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, r, "allow_forum", err)
		return
	}
	added, err := h.service.AllowForum(r.Context(), requesterID(r), req.ChannelID)
	if err != nil {
		writeDomainError(w, r, "allow_forum", err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"channel_id": req.ChannelID, "changed": added})
}

func (h *Handler) disallowForum(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channel_id")
	removed, err := h.service.DisallowForum(r.Context(), requesterID(r), channelID)
	if err != nil {
		writeDomainError(w, r, "disallow_forum", err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"channel_id": channelID, "changed": removed})
}

func (h *Handler) clearForums(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.ClearAllowedForums(r.Context(), requesterID(r))
	if err != nil {
		writeDomainError(w, r, "clear_forums", err)
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"cleared": n})
}
