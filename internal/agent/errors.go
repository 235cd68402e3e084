// Package agent holds the HTTP clients for the two external generation
// agents. Each call settles into a definite outcome at this boundary: either
// usable data or a reason string, never a half-parsed payload.
package agent

import "errors"

var (
	// ErrAgentUnavailable covers transport-level failures: the agent could
	// not be reached or did not answer in time.
	ErrAgentUnavailable = errors.New("generation agent unavailable")
	// ErrAgentDeclined covers logical failures: transport succeeded but the
	// agent reported success=false.
	ErrAgentDeclined = errors.New("generation agent declined")
	// ErrInvalidResponse covers malformed payloads.
	ErrInvalidResponse = errors.New("generation agent returned invalid response")
)
