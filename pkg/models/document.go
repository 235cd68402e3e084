package models

// Risk is one normalized hazard entry in a risk assessment. Ratings use the
// 5x5 matrix: likelihood (1-5) x severity (1-5) = rating (1-25).
type Risk struct {
	ID           string `json:"id"`
	Hazard       string `json:"hazard"`
	Likelihood   int    `json:"likelihood"`
	Severity     int    `json:"severity"`
	RiskRating   int    `json:"risk_rating"`
	Controls     string `json:"controls"`
	ResidualRisk int    `json:"residual_risk"`
	LinkedStep   int    `json:"linked_step"`
	Regulation   string `json:"regulation,omitempty"`
}

// PPEItem is one required piece of personal protective equipment.
type PPEItem struct {
	SequenceNumber int    `json:"sequence_number"`
	PPEType        string `json:"ppe_type"`
	Standard       string `json:"standard"`
	Mandatory      bool   `json:"mandatory"`
	Purpose        string `json:"purpose"`
}

// EmergencyContacts is the cross-cutting contact block spliced into both
// documents so they never disagree on who to call.
type EmergencyContacts struct {
	SiteManager   string `json:"site_manager"`
	FirstAider    string `json:"first_aider"`
	SafetyOfficer string `json:"safety_officer"`
	AssemblyPoint string `json:"assembly_point"`
}

// DocumentHeader is the project metadata stamped onto each document from the
// job's project info, never from agent output.
type DocumentHeader struct {
	ProjectName string `json:"project_name"`
	Location    string `json:"location"`
	Assessor    string `json:"assessor"`
	Contractor  string `json:"contractor"`
	Supervisor  string `json:"supervisor"`
	Date        string `json:"date"`
}

// RiskDocument is the canonical risk assessment produced by the transformer.
type RiskDocument struct {
	Header                DocumentHeader    `json:"header"`
	Risks                 []Risk            `json:"risks"`
	PPE                   []PPEItem         `json:"ppe"`
	EmergencyProcedures   []string          `json:"emergency_procedures"`
	ComplianceRegulations []string          `json:"compliance_regulations"`
	EmergencyContacts     EmergencyContacts `json:"emergency_contacts"`
	OverallRiskLevel      string            `json:"overall_risk_level"`
}

// MethodStep is one sequenced step of a method statement.
type MethodStep struct {
	StepNumber int    `json:"step_number"`
	Title      string `json:"title"`
	Content    string `json:"content"`
	Duration   string `json:"duration,omitempty"`
}

// MethodDocument is the canonical method statement produced by the transformer.
type MethodDocument struct {
	Header             DocumentHeader    `json:"header"`
	Steps              []MethodStep      `json:"steps"`
	EmergencyContacts  EmergencyContacts `json:"emergency_contacts"`
	OverallRiskLevel   string            `json:"overall_risk_level"`
	TotalEstimatedTime string            `json:"total_estimated_time"`
}
