package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusComplete   = "complete"
	JobStatusPartial    = "partial"
	JobStatusFailed     = "failed"
	JobStatusCancelled  = "cancelled"
)

// IsTerminalStatus reports whether a job in the given status can never
// transition again. Terminal rows are immutable.
func IsTerminalStatus(status string) bool {
	switch status {
	case JobStatusComplete, JobStatusPartial, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// ProjectInfo is the caller-supplied project record stamped onto generated
// documents. The pipeline passes these strings through without interpreting them.
type ProjectInfo struct {
	ProjectName string `json:"project_name"`
	Location    string `json:"location"`
	Contractor  string `json:"contractor"`
	Supervisor  string `json:"supervisor"`
	Assessor    string `json:"assessor"`
}

// GenerationMetadata records how a completed job's output was produced.
type GenerationMetadata struct {
	CacheHit   bool    `json:"cache_hit"`
	Similarity float64 `json:"similarity,omitempty"`
	HitCount   int     `json:"hit_count,omitempty"`
}

// Job tracks one risk-assessment + method-statement generation request.
// The API returns a job id on POST /api/v1/jobs; the client polls
// GET /api/v1/jobs/{job_id} until status is terminal.
type Job struct {
	ID          uuid.UUID   `db:"id"           json:"id"`
	Description string      `db:"description"  json:"description"`
	Scale       string      `db:"scale"        json:"scale"`
	WorkType    string      `db:"work_type"    json:"work_type"`
	ProjectInfo ProjectInfo `db:"project_info" json:"project_info"`

	Status      string `db:"status"       json:"status"`
	Progress    int    `db:"progress"     json:"progress"`
	CurrentStep string `db:"current_step" json:"current_step"`

	RiskData           *RiskDocument       `db:"risk_data"           json:"risk_data,omitempty"`
	MethodData         *MethodDocument     `db:"method_data"         json:"method_data,omitempty"`
	ErrorMessage       *string             `db:"error_message"       json:"error_message,omitempty"`
	GenerationMetadata *GenerationMetadata `db:"generation_metadata" json:"generation_metadata,omitempty"`

	CreatedAt   time.Time  `db:"created_at"   json:"created_at"`
	StartedAt   *time.Time `db:"started_at"   json:"started_at,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}
