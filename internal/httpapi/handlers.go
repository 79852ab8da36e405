package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/claimcore/core/internal/compute"
	"github.com/claimcore/core/internal/health"
	"github.com/claimcore/core/internal/idempotency"
	"github.com/claimcore/core/internal/lifecycle"
	"github.com/claimcore/core/internal/queue"
	"github.com/claimcore/core/internal/status"
	"github.com/claimcore/core/internal/webhook"
)

// taskStatusScanLimit bounds the full-bucket scan used to resolve a
// bare task_id to its webhook_id; the KV store has no secondary index,
// so this trades a linear scan for not requiring reference_id on the
// lookup path, acceptable at the scale a single-process status store
// already implies (see internal/status.KVStore.Scan, which makes the
// same tradeoff for filtered listing).
const taskStatusScanLimit = 10000

type handlers struct {
	manager      *lifecycle.Manager
	computeQueue *queue.Publisher
	computeFn    compute.Func
	idempotency  *idempotency.Module
	health       *health.Checker
	writeTimeout time.Duration
	logger       *slog.Logger
}

// claimRequestBody is the wire shape accepted by /process-claim-*,
// reusing webhook.ClaimRequest's field set minus processing_mode
// (derived from the path) and task_id (server-assigned).
type claimRequestBody struct {
	ReferenceID      string `json:"reference_id"`
	EmployeeNumber   string `json:"employee_number"`
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	OrganizationName string `json:"organization_name,omitempty"`
	CRDNumber        string `json:"crd_number,omitempty"`
	WebhookURL       string `json:"webhook_url,omitempty"`
}

// processClaim handles POST /process-claim-{mode}. webhook_url syntax is
// validated at delivery time, not here: an invalid URL still accepts
// and later fails permanently with a dead-letter entry.
func (h *handlers) processClaim(mode string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body claimRequestBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body")
			return
		}
		if body.ReferenceID == "" || body.EmployeeNumber == "" || body.FirstName == "" || body.LastName == "" {
			writeError(w, http.StatusBadRequest, "missing_required_field")
			return
		}
		if h.idempotency != nil && h.idempotency.IsDuplicate(body.ReferenceID) {
			writeError(w, http.StatusConflict, "duplicate_submission")
			return
		}
		claim := webhook.ClaimRequest{
			ReferenceID:      body.ReferenceID,
			EmployeeNumber:   body.EmployeeNumber,
			FirstName:        body.FirstName,
			LastName:         body.LastName,
			OrganizationName: body.OrganizationName,
			CRDNumber:        body.CRDNumber,
			WebhookURL:       body.WebhookURL,
			ProcessingMode:   mode,
		}
		correlationID := uuid.NewString()

		if claim.WebhookURL == "" {
			h.processSync(w, r.Context(), claim, correlationID)
			return
		}
		h.processAsync(w, r.Context(), claim, correlationID)
	}
}

// processSync runs compute inline and returns the full result, since
// there is no webhook to deliver to later.
func (h *handlers) processSync(w http.ResponseWriter, ctx context.Context, claim webhook.ClaimRequest, correlationID string) {
	if h.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.writeTimeout)
		defer cancel()
	}
	result, err := h.computeFn(ctx, claim)
	if err != nil {
		h.logger.Error("synchronous compute failed", "reference_id", claim.ReferenceID, "correlation_id", correlationID, "error", err)
		writeError(w, http.StatusInternalServerError, "compute_failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// processAsync creates the pending record (if a webhook was supplied)
// before enqueuing, so a fast worker can never finish ahead of the
// record it needs to transition.
func (h *handlers) processAsync(w http.ResponseWriter, ctx context.Context, claim webhook.ClaimRequest, correlationID string) {
	taskID := uuid.NewString()

	if err := h.acceptPending(ctx, claim, taskID, correlationID); err != nil {
		h.logger.Error("failed to create pending webhook record", "reference_id", claim.ReferenceID, "error", err)
		writeError(w, http.StatusInternalServerError, "store_unavailable")
		return
	}

	if err := h.computeQueue.EnqueueComputeWithID(ctx, taskID, correlationID, claim); err != nil {
		h.logger.Error("failed to enqueue compute task", "reference_id", claim.ReferenceID, "task_id", taskID, "error", err)
		writeError(w, http.StatusInternalServerError, "enqueue_failed")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":       "processing_queued",
		"reference_id": claim.ReferenceID,
		"task_id":      taskID,
	})
}

func (h *handlers) acceptPending(ctx context.Context, claim webhook.ClaimRequest, taskID, correlationID string) error {
	if claim.WebhookURL == "" {
		return nil
	}
	return h.manager.Create(ctx, webhook.Record{
		WebhookID:     webhook.ID(claim.ReferenceID, taskID),
		ReferenceID:   claim.ReferenceID,
		TaskID:        taskID,
		WebhookURL:    claim.WebhookURL,
		MaxAttempts:   webhook.DefaultMaxAttempts,
		CorrelationID: correlationID,
	})
}

// taskStatusView is the response shape for GET /task-status/{task_id}.
type taskStatusView struct {
	TaskID      string          `json:"task_id"`
	Status      string          `json:"status"`
	ReferenceID string          `json:"reference_id"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
}

func taskStatusFromRecord(r webhook.Record) taskStatusView {
	view := taskStatusView{TaskID: r.TaskID, ReferenceID: r.ReferenceID}
	switch r.Status {
	case webhook.StatusPending:
		view.Status = "QUEUED"
	case webhook.StatusInProgress:
		view.Status = "PROCESSING"
	case webhook.StatusRetrying:
		view.Status = "RETRYING"
	case webhook.StatusDelivered:
		view.Status = "COMPLETED"
		view.Result = r.Payload
	case webhook.StatusFailed:
		view.Status = "FAILED"
		view.Error = r.LastError
	}
	return view
}

func (h *handlers) taskStatus(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("task_id")
	record, err := h.findByTaskID(r.Context(), taskID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_unavailable")
		return
	}
	if record == nil {
		writeError(w, http.StatusNotFound, "task_not_found")
		return
	}
	writeJSON(w, http.StatusOK, taskStatusFromRecord(*record))
}

func (h *handlers) findByTaskID(ctx context.Context, taskID string) (*webhook.Record, error) {
	page, err := h.manager.List(ctx, status.Filter{}, 0, taskStatusScanLimit)
	if err != nil {
		return nil, err
	}
	for _, r := range page.Items {
		if r.TaskID == taskID {
			cp := r
			return &cp, nil
		}
	}
	return nil, nil
}

func (h *handlers) getWebhookStatus(w http.ResponseWriter, r *http.Request) {
	webhookID := r.PathValue("webhook_id")
	record, err := h.manager.Get(r.Context(), webhookID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_unavailable")
		return
	}
	if record == nil {
		writeError(w, http.StatusNotFound, "webhook_not_found")
		return
	}
	view := *record
	view.Payload = nil // webhook-status returns the record minus payload
	writeJSON(w, http.StatusOK, view)
}

func (h *handlers) deleteWebhookStatus(w http.ResponseWriter, r *http.Request) {
	webhookID := r.PathValue("webhook_id")
	deleted, err := h.manager.Delete(r.Context(), webhookID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_unavailable")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "webhook_not_found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type webhookStatusesResponse struct {
	Items    []webhook.Record `json:"items"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
	Total    int              `json:"total"`
}

func (h *handlers) listWebhookStatuses(w http.ResponseWriter, r *http.Request) {
	filter, page, pageSize := parseListQuery(r)
	result, err := h.manager.List(r.Context(), filter, page, pageSize)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_unavailable")
		return
	}
	for i := range result.Items {
		result.Items[i].Payload = nil
	}
	writeJSON(w, http.StatusOK, webhookStatusesResponse{
		Items: result.Items, Page: page, PageSize: pageSize, Total: result.Total,
	})
}

func (h *handlers) bulkDeleteWebhookStatuses(w http.ResponseWriter, r *http.Request) {
	filter, _, _ := parseListQuery(r)
	n, err := h.manager.BulkDelete(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

func (h *handlers) webhookCleanup(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	statusFilter := webhook.Status(q.Get("status"))
	olderThanDays := 0
	if v := q.Get("older_than_days"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_older_than_days")
			return
		}
		olderThanDays = parsed
	}
	n, err := h.manager.Cleanup(r.Context(), time.Duration(olderThanDays)*24*time.Hour, statusFilter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"cleaned": n})
}

func (h *handlers) healthCheck(w http.ResponseWriter, r *http.Request) {
	report := h.health.Check(r.Context())
	code := http.StatusOK
	if report.Status == health.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, report)
}

func parseListQuery(r *http.Request) (status.Filter, int, int) {
	q := r.URL.Query()
	filter := status.Filter{
		ReferenceIDPrefix: q.Get("reference_id"),
		Status:            webhook.Status(q.Get("status")),
	}
	if v := q.Get("older_than_days"); v != "" {
		if days, err := strconv.Atoi(v); err == nil {
			filter.OlderThan = int64(days) * 86400
		}
	}
	page := 0
	if v := q.Get("page"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p >= 0 {
			page = p
		}
	}
	pageSize := 50
	if v := q.Get("page_size"); v != "" {
		if ps, err := strconv.Atoi(v); err == nil && ps > 0 {
			pageSize = ps
		}
	}
	return filter, page, pageSize
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}
