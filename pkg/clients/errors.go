package clients

import "fmt"

// ClientNotFoundError indicates the requested client does not exist. It is a
// precondition violation: orchestration entry points fail fast on it instead
// of producing a partial result.
type ClientNotFoundError struct {
	ClientID string
}

func (e *ClientNotFoundError) Error() string {
	return fmt.Sprintf("client not found: %s", e.ClientID)
}

// ClientValidationError indicates a client configuration that cannot be
// orchestrated against (no enabled accounts, malformed identifiers).
type ClientValidationError struct {
	ClientID string
	Reason   string
}

func (e *ClientValidationError) Error() string {
	return fmt.Sprintf("client %s failed validation: %s", e.ClientID, e.Reason)
}

// TenantIsolationError indicates an operation attempted to cross client
// boundaries, e.g. a stored record whose client id differs from the
// orchestration's client.
type TenantIsolationError struct {
	ExpectedClientID string
	ActualClientID   string
}

func (e *TenantIsolationError) Error() string {
	return fmt.Sprintf("tenant isolation violation: expected client %s, got %s",
		e.ExpectedClientID, e.ActualClientID)
}
