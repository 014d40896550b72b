package http

import (
	"context"
	"net/http"

	"github.com/Opizontas-Studio/dc-license-bot/internal/application"
	"github.com/Opizontas-Studio/dc-license-bot/internal/domain"
	"github.com/Opizontas-Studio/dc-license-bot/internal/ports"
	"github.com/go-chi/chi/v5"
)

type publishBody struct {
	License domain.LicenseChoice `json:"license"`
}

type publishResponse struct {
	Transition application.Transition `json:"transition"`
	Notified   bool                   `json:"notified"`
	Post       domain.PublishedPost   `json:"post"`
}

type confirmBody struct {
	Accept bool `json:"accept"`
}

type autoPublishResponse struct {
	Status  application.AutoPublishStatus `json:"status"`
	Message string                        `json:"message"`
	Post    *domain.PublishedPost         `json:"post,omitempty"`
}

func toAutoPublishResponse(o application.AutoPublishOutcome) autoPublishResponse {
	return autoPublishResponse{Status: o.Status, Message: o.Message, Post: o.Post}
}

func (h *Handler) publish(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "publish", h.service.Publish)
}

func (h *Handler) replace(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "replace", h.service.Replace)
}

type transitionFunc func(ctx context.Context, req application.PublishRequest) (application.PublishResult, error)

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, operation string, fn transitionFunc) {
	var body publishBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeDomainError(w, r, operation, err)
		return
	}
	res, err := fn(r.Context(), application.PublishRequest{
		ThreadID:    chi.URLParam(r, "thread_id"),
		RequesterID: requesterID(r),
		Choice:      body.License,
	})
	if err != nil {
		writeDomainError(w, r, operation, err)
		return
	}
	status := http.StatusOK
	if res.Transition == application.TransitionPublished {
		status = http.StatusCreated
	}
	writeSuccess(w, status, publishResponse{Transition: res.Transition, Notified: res.Notified, Post: res.Post})
}

func (h *Handler) getPublishedPost(w http.ResponseWriter, r *http.Request) {
	post, err := h.service.GetPublishedPost(r.Context(), chi.URLParam(r, "thread_id"))
	if err != nil {
		writeDomainError(w, r, "get_published_post", err)
		return
	}
	writeSuccess(w, http.StatusOK, post)
}

func (h *Handler) publicationHistory(w http.ResponseWriter, r *http.Request) {
	events, err := h.service.PublicationHistory(r.Context(), chi.URLParam(r, "thread_id"))
	if err != nil {
		writeDomainError(w, r, "publication_history", err)
		return
	}
	writeSuccess(w, http.StatusOK, events)
}

func (h *Handler) confirmAutoPublish(w http.ResponseWriter, r *http.Request) {
	var body confirmBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeDomainError(w, r, "confirm_auto_publish", err)
		return
	}
	outcome, err := h.service.ConfirmAutoPublish(r.Context(), requesterID(r), chi.URLParam(r, "thread_id"), body.Accept)
	if err != nil {
		writeDomainError(w, r, "confirm_auto_publish", err)
		return
	}
	writeSuccess(w, http.StatusOK, toAutoPublishResponse(outcome))
}

// platformEvent is the webhook form of the platform event stream. Created
// threads answer with the auto-publish outcome.
func (h *Handler) platformEvent(w http.ResponseWriter, r *http.Request) {
	var ev ports.PlatformEvent
	if err := decodeJSON(w, r, &ev); err != nil {
		writeDomainError(w, r, "platform_event", err)
		return
	}
	switch ev.Type {
	case ports.EventThreadCreated:
		writeSuccess(w, http.StatusOK, toAutoPublishResponse(h.service.HandleThreadCreated(r.Context(), ev)))
	default:
		if err := h.service.HandlePlatformEvent(r.Context(), ev); err != nil {
			writeDomainError(w, r, "platform_event", err)
			return
		}
		writeMessage(w, http.StatusOK, "event handled")
	}
}
