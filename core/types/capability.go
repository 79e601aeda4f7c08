package types

import (
	"context"
	"errors"
	"fmt"

	models "github.com/herald-ai/herald/dbmodels"
)

// Credential is the handle passed down to capability executors.
type Credential struct {
	AccessToken  string
	RefreshToken string
}

// CapabilityResult is the normalized success payload of an executor call.
type CapabilityResult struct {
	// Result is a short natural-language summary suitable for the
	// conversation and for memory ("created CRM contact X").
	Result string
	// Metadata carries structured details of what was done.
	Metadata map[string]interface{}
	// FollowUp, when non-empty, asks the dispatcher to schedule an
	// AgentTask with this description.
	FollowUp string
}

// Capability is an externally executable action exposed through a uniform
// tool schema. Executors are external collaborators; implementations in
// this repo are thin adapters over per-service clients.
type Capability interface {
	Definition() ToolDefinition
	// Provider names the connection the capability needs. The registry
	// hides capabilities whose provider the user has not connected.
	Provider() models.Provider
	Execute(ctx context.Context, cred Credential, params ToolParams) (CapabilityResult, error)
}

// FailureKind classifies typed executor failures.
type FailureKind string

const (
	FailureCredentialExpired FailureKind = "credential-expired"
	FailureRateLimited       FailureKind = "rate-limited"
	FailureNotFound          FailureKind = "not-found"
	FailureTransport         FailureKind = "transport-error"
)

// CapabilityError is a typed failure returned by an executor.
type CapabilityError struct {
	Kind    FailureKind
	Message string
}

func (e *CapabilityError) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// FailureKindOf extracts the failure kind from an executor error, or ""
// for untyped errors.
func FailureKindOf(err error) FailureKind {
	var ce *CapabilityError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// TokenRefresher renews an expired connection credential. Refresh is the
// executor side's responsibility; the dispatcher only triggers it once.
type TokenRefresher interface {
	Refresh(ctx context.Context, conn *models.Connection) (*models.Connection, error)
}
