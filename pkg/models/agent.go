// Package models contains shared data models used across the ramsgen codebase.
package models

import (
	"context"

	"github.com/google/uuid"
)

// AgentRequest is the input to either generation agent.
type AgentRequest struct {
	JobID       uuid.UUID
	Description string
	Scale       string
	ProjectInfo ProjectInfo
}

// RawHazard is one hazard record as the risk agent emits it. Fields are
// pointers where the agents are known to omit or mangle them; the transformer
// applies defaults rather than rejecting the record.
type RawHazard struct {
	ID             string `json:"id"`
	Hazard         string `json:"hazard"`
	Likelihood     *int   `json:"likelihood"`
	Severity       *int   `json:"severity"`
	RiskScore      *int   `json:"riskScore"`
	ControlMeasure string `json:"controlMeasure"`
	ResidualRisk   *int   `json:"residualRisk"`
	LinkedToStep   *int   `json:"linkedToStep"`
	Regulation     string `json:"regulation"`
}

// RawPPE is one PPE record as the risk agent emits it.
type RawPPE struct {
	ItemNumber int    `json:"itemNumber"`
	PPEType    string `json:"ppeType"`
	Standard   string `json:"standard"`
	Mandatory  *bool  `json:"mandatory"`
	Purpose    string `json:"purpose"`
}

// RawRiskData is the data block of a successful risk-agent response. Hazards
// is a pointer so the transformer can distinguish a missing array (a transform
// error) from an empty one (a valid assessment with no hazards).
type RawRiskData struct {
	Hazards               *[]RawHazard `json:"hazards"`
	PPE                   []RawPPE     `json:"ppe"`
	EmergencyProcedures   []string     `json:"emergencyProcedures"`
	ComplianceRegulations []string     `json:"complianceRegulations"`
}

// RiskAgentResponse is the full wire payload of the risk agent. Success false
// with a 200 transport means the agent declined or errored logically.
type RiskAgentResponse struct {
	Success bool         `json:"success"`
	Data    *RawRiskData `json:"data"`
	Error   string       `json:"error,omitempty"`
}

// RawMethodStep is one step record as the method agent emits it.
type RawMethodStep struct {
	StepNumber  int    `json:"stepNumber"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Duration    string `json:"duration"`
}

// RawEmergencyContacts is the method agent's contact sub-object.
type RawEmergencyContacts struct {
	SiteManager   string `json:"siteManager"`
	FirstAider    string `json:"firstAider"`
	SafetyOfficer string `json:"safetyOfficer"`
	AssemblyPoint string `json:"assemblyPoint"`
}

// RawMethodData is the data block of a successful method-agent response.
type RawMethodData struct {
	Steps              []RawMethodStep       `json:"steps"`
	EmergencyContacts  *RawEmergencyContacts `json:"emergencyContacts"`
	OverallRiskLevel   string                `json:"overallRiskLevel"`
	TotalEstimatedTime string                `json:"totalEstimatedTime"`
}

// MethodAgentResponse is the full wire payload of the method agent.
type MethodAgentResponse struct {
	Success bool           `json:"success"`
	Data    *RawMethodData `json:"data"`
	Error   string         `json:"error,omitempty"`
}

// RiskAgent generates hazard and PPE data for a work order.
// Never call a concrete agent endpoint directly — always inject this interface.
type RiskAgent interface {
	GenerateRisk(ctx context.Context, req AgentRequest) (*RawRiskData, error)
	Name() string
}

// MethodAgent generates installation-method data for a work order.
type MethodAgent interface {
	GenerateMethod(ctx context.Context, req AgentRequest) (*RawMethodData, error)
	Name() string
}
