package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"captionflow/internal/httpkit"
	"captionflow/internal/ledger"
	"captionflow/internal/media"
	"captionflow/internal/models"
	apperrors "captionflow/internal/pkg/errors"
)

type WorkflowResponse struct {
	Workflow *models.Workflow       `json:"workflow"`
	Context  map[string]media.Entry `json:"context"`
}

// GetWorkflow returns the ledger row of a workflow plus the artifacts its
// stages recorded so far.
func (h *Handler) GetWorkflow(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	id := strings.TrimSpace(chi.URLParam(r, "workflowId"))
	if id == "" {
		return apperrors.ValidationField("workflowId", "workflowId is required")
	}

	wf, err := h.ledger.Get(ctx, id)
	if errors.Is(err, ledger.ErrWorkflowNotFound) {
		return apperrors.NotFound("workflow", id)
	}
	if err != nil {
		return apperrors.WrapWithCode(err, apperrors.CodeUnavailable, "httpapi.workflow", "ledger unavailable")
	}

	entries := map[string]media.Entry{}
	if h.context != nil {
		snap, err := h.context.Snapshot(ctx, id)
		if err != nil {
			return err
		}
		for k, v := range snap {
			entries[string(k)] = v
		}
	}

	httpkit.WriteJSON(w, http.StatusOK, WorkflowResponse{Workflow: wf, Context: entries})
	return nil
}

// ListWorkflows returns the most recent workflows, newest first.
func (h *Handler) ListWorkflows(w http.ResponseWriter, r *http.Request) error {
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 && v <= 200 {
			limit = v
		}
	}

	items, err := h.ledger.List(r.Context(), limit)
	if err != nil {
		return apperrors.WrapWithCode(err, apperrors.CodeUnavailable, "httpapi.workflows", "ledger unavailable")
	}
	if items == nil {
		items = []models.Workflow{}
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"workflows": items})
	return nil
}
