// Package reference provides a deterministic, non-production compute
// function so the core can be exercised end-to-end without a real
// claim-processing engine wired in. It is gated behind
// REFERENCE_COMPUTE_ENABLED and consumed by cmd/worker (queued compute
// tasks) and cmd/server (synchronous claims without a webhook_url).
package reference

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"

	"github.com/claimcore/core/internal/webhook"
)

// Config toggles the reference compute function on for local/dev runs.
type Config struct {
	Enabled bool `env:"REFERENCE_COMPUTE_ENABLED" envDefault:"false"`
}

// result is the synthetic compute output: the claim fields echoed back
// plus a deterministic pseudo risk_score, so repeated runs against the
// same claim are reproducible in tests and demos.
type result struct {
	ReferenceID      string `json:"reference_id"`
	EmployeeNumber   string `json:"employee_number"`
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	OrganizationName string `json:"organization_name,omitempty"`
	CRDNumber        string `json:"crd_number,omitempty"`
	ProcessingMode   string `json:"processing_mode"`
	RiskScore        int    `json:"risk_score"`
}

// Compute is the stub compute.Func implementation.
func Compute(_ context.Context, claim webhook.ClaimRequest) (json.RawMessage, error) {
	if claim.ReferenceID == "" {
		return nil, fmt.Errorf("reference compute: reference_id is required")
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(claim.ReferenceID + claim.EmployeeNumber))

	r := result{
		ReferenceID:      claim.ReferenceID,
		EmployeeNumber:   claim.EmployeeNumber,
		FirstName:        claim.FirstName,
		LastName:         claim.LastName,
		OrganizationName: claim.OrganizationName,
		CRDNumber:        claim.CRDNumber,
		ProcessingMode:   claim.ProcessingMode,
		RiskScore:        int(h.Sum32() % 100),
	}
	return json.Marshal(r)
}
