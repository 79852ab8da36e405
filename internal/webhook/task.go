package webhook

import (
	"encoding/json"
	"time"
)

// TaskKind is the closed tagged-variant discriminator for QueueTask.
// Modeled as an exhaustive enum per the REDESIGN FLAG against
// dynamic-dispatch-by-string-name task systems.
type TaskKind string

const (
	TaskKindCompute TaskKind = "compute"
	TaskKindDeliver TaskKind = "deliver"
)

// QueueTask is the opaque envelope carried by the Task Queue & Worker Pool.
// Payload is the kind-specific body (ComputePayload or DeliverPayload),
// carried as raw JSON across the queue's own wire boundary.
type QueueTask struct {
	Kind          TaskKind        `json:"task_kind"`
	TaskID        string          `json:"task_id"`
	CorrelationID string          `json:"correlation_id"`
	Payload       json.RawMessage `json:"payload"`
	AttemptCount  int             `json:"attempt_count"`
	ETA           time.Time       `json:"eta,omitempty"`
}

// ComputePayload is the QueueTask payload for TaskKindCompute.
type ComputePayload struct {
	Claim ClaimRequest `json:"claim"`
}

// DeliverPayload is the QueueTask payload for TaskKindDeliver.
type DeliverPayload struct {
	WebhookID string          `json:"webhook_id"`
	Result    json.RawMessage `json:"result"`
}

// ClaimRequest is the ingress-side request envelope forwarded opaquely to
// the pluggable compute function.
type ClaimRequest struct {
	ReferenceID      string `json:"reference_id"`
	EmployeeNumber   string `json:"employee_number"`
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	OrganizationName string `json:"organization_name,omitempty"`
	CRDNumber        string `json:"crd_number,omitempty"`
	WebhookURL       string `json:"webhook_url,omitempty"`
	ProcessingMode   string `json:"processing_mode"`
}
