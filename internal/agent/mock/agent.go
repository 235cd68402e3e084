// Package mock provides configurable in-memory agents for testing.
package mock

import (
	"context"

	"github.com/voltio/ramsgen/internal/agent"
	"github.com/voltio/ramsgen/pkg/models"
)

// RiskAgent satisfies models.RiskAgent for testing.
type RiskAgent struct {
	Name_        string
	GenerateFunc func(ctx context.Context, req models.AgentRequest) (*models.RawRiskData, error)
}

func (m *RiskAgent) Name() string { return m.Name_ }

func (m *RiskAgent) GenerateRisk(ctx context.Context, req models.AgentRequest) (*models.RawRiskData, error) {
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	return DefaultRiskData(), nil
}

// MethodAgent satisfies models.MethodAgent for testing.
type MethodAgent struct {
	Name_        string
	GenerateFunc func(ctx context.Context, req models.AgentRequest) (*models.RawMethodData, error)
}

func (m *MethodAgent) Name() string { return m.Name_ }

func (m *MethodAgent) GenerateMethod(ctx context.Context, req models.AgentRequest) (*models.RawMethodData, error) {
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	return DefaultMethodData(), nil
}

// DefaultRiskData returns a small but structurally complete risk payload.
func DefaultRiskData() *models.RawRiskData {
	likelihood, severity := 3, 4
	hazards := []models.RawHazard{
		{
			ID:             "hazard-1",
			Hazard:         "Electric shock from live conductors during isolation",
			Likelihood:     &likelihood,
			Severity:       &severity,
			ControlMeasure: "Prove dead with GS38 voltage indicator before work",
			Regulation:     "EWR 1989 Reg 4(3)",
		},
	}
	mandatory := true
	return &models.RawRiskData{
		Hazards: &hazards,
		PPE: []models.RawPPE{
			{ItemNumber: 1, PPEType: "Insulated gloves", Standard: "BS EN 60903", Mandatory: &mandatory, Purpose: "Protection during isolation"},
		},
		EmergencyProcedures:   []string{"Isolate power supply in emergency", "Call 999 for electric shock incidents"},
		ComplianceRegulations: []string{"BS 7671:2018", "EWR 1989"},
	}
}

// DefaultMethodData returns a small but structurally complete method payload.
func DefaultMethodData() *models.RawMethodData {
	return &models.RawMethodData{
		Steps: []models.RawMethodStep{
			{StepNumber: 1, Title: "Site setup", Description: "Establish safe work area", Duration: "30 min"},
			{StepNumber: 2, Title: "Installation", Description: "Mount and wire the unit", Duration: "2 hours"},
		},
		EmergencyContacts: &models.RawEmergencyContacts{
			SiteManager:   "J. Brennan",
			FirstAider:    "P. Osei",
			SafetyOfficer: "L. Hart",
			AssemblyPoint: "Main car park",
		},
	}
}

// NewFailingRiskAgent returns a RiskAgent that always returns err.
func NewFailingRiskAgent(err error) *RiskAgent {
	return &RiskAgent{
		Name_: "risk-failing",
		GenerateFunc: func(_ context.Context, _ models.AgentRequest) (*models.RawRiskData, error) {
			return nil, err
		},
	}
}

// NewFailingMethodAgent returns a MethodAgent that always returns err.
func NewFailingMethodAgent(err error) *MethodAgent {
	return &MethodAgent{
		Name_: "method-failing",
		GenerateFunc: func(_ context.Context, _ models.AgentRequest) (*models.RawMethodData, error) {
			return nil, err
		},
	}
}

// NewBlockingRiskAgent returns a RiskAgent that blocks until its context is
// cancelled, simulating a hung upstream call.
func NewBlockingRiskAgent() *RiskAgent {
	return &RiskAgent{
		Name_: "risk-blocking",
		GenerateFunc: func(ctx context.Context, _ models.AgentRequest) (*models.RawRiskData, error) {
			<-ctx.Done()
			return nil, agent.ErrAgentUnavailable
		},
	}
}

// NewBlockingMethodAgent returns a MethodAgent that blocks until its context
// is cancelled.
func NewBlockingMethodAgent() *MethodAgent {
	return &MethodAgent{
		Name_: "method-blocking",
		GenerateFunc: func(ctx context.Context, _ models.AgentRequest) (*models.RawMethodData, error) {
			<-ctx.Done()
			return nil, agent.ErrAgentUnavailable
		},
	}
}

var (
	_ models.RiskAgent   = (*RiskAgent)(nil)
	_ models.MethodAgent = (*MethodAgent)(nil)
)
