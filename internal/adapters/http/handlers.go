package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Opizontas-Studio/dc-license-bot/internal/application"
	"github.com/Opizontas-Studio/dc-license-bot/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const maxBodyBytes = 64 << 10

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid json body", domain.ErrValidation)
	}
	return nil
}

func templateIDParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "template_id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: template_id must be a uuid", domain.ErrValidation)
	}
	return id, nil
}

func (h *Handler) listTemplates(w http.ResponseWriter, r *http.Request) {
	requester := requesterID(r)
	owner := r.URL.Query().Get("owner_id")
	if owner == "" {
		owner = requester
	}
	var (
		templates []domain.LicenseTemplate
		err       error
	)
	switch r.URL.Query().Get("sort") {
	case "", "created":
		templates, err = h.service.ListTemplates(r.Context(), requester, owner)
	case "usage":
		templates, err = h.service.ListTemplatesByUsage(r.Context(), requester, owner)
	default:
		err = fmt.Errorf("%w: sort must be created or usage", domain.ErrValidation)
	}
	if err != nil {
		writeDomainError(w, r, "list_templates", err)
		return
	}
	writeSuccess(w, http.StatusOK, templates)
}

func (h *Handler) createTemplate(w http.ResponseWriter, r *http.Request) {
	var req application.CreateTemplateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, r, "create_template", err)
		return
	}
	tpl, err := h.service.CreateTemplate(r.Context(), requesterID(r), req)
	if err != nil {
		writeDomainError(w, r, "create_template", err)
		return
	}
	writeSuccess(w, http.StatusCreated, tpl)
}

func (h *Handler) getTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := templateIDParam(r)
	if err != nil {
		writeDomainError(w, r, "get_template", err)
		return
	}
	tpl, err := h.service.GetTemplate(r.Context(), requesterID(r), id)
	if err != nil {
		writeDomainError(w, r, "get_template", err)
		return
	}
	writeSuccess(w, http.StatusOK, tpl)
}

func (h *Handler) updateTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := templateIDParam(r)
	if err != nil {
		writeDomainError(w, r, "update_template", err)
		return
	}
	var req application.UpdateTemplateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, r, "update_template", err)
		return
	}
	tpl, err := h.service.UpdateTemplate(r.Context(), requesterID(r), id, req)
	if err != nil {
		writeDomainError(w, r, "update_template", err)
		return
	}
	writeSuccess(w, http.StatusOK, tpl)
}

func (h *Handler) deleteTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := templateIDParam(r)
	if err != nil {
		writeDomainError(w, r, "delete_template", err)
		return
	}
	if err := h.service.DeleteTemplate(r.Context(), requesterID(r), id); err != nil {
		writeDomainError(w, r, "delete_template", err)
		return
	}
	writeMessage(w, http.StatusOK, "template deleted")
}

func (h *Handler) getSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.service.GetSettings(r.Context(), requesterID(r))
	if err != nil {
		writeDomainError(w, r, "get_settings", err)
		return
	}
	writeSuccess(w, http.StatusOK, settings)
}

func (h *Handler) updateSettings(w http.ResponseWriter, r *http.Request) {
	var req application.UpdateSettingsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, r, "update_settings", err)
		return
	}
	settings, err := h.service.UpdateSettings(r.Context(), requesterID(r), req)
	if err != nil {
		writeDomainError(w, r, "update_settings", err)
		return
	}
	writeSuccess(w, http.StatusOK, settings)
}
