// Package transform normalizes raw agent payloads into the canonical document
// shapes stored on a job. Agents routinely omit or mangle numeric fields; the
// transformer fills defaults instead of rejecting the payload, and rejects
// only when the payload is structurally unusable.
package transform

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/voltio/ramsgen/pkg/models"
)

const (
	defaultLikelihood = 3
	defaultSeverity   = 3

	// residualFactor models the expected rating after controls are applied.
	residualFactor = 0.3
)

// Error reports a payload the transformer could not normalize.
type Error struct {
	Document string
	Reason   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("transforming %s document: %s", e.Document, e.Reason)
}

// Risk normalizes a raw risk payload. A nil hazards array means the agent
// never produced an assessment and is an error; an empty array is a valid
// assessment that found no hazards.
func Risk(raw *models.RawRiskData, info models.ProjectInfo, now time.Time) (*models.RiskDocument, error) {
	if raw == nil || raw.Hazards == nil {
		return nil, &Error{Document: "risk", Reason: "hazards array missing from agent payload"}
	}

	risks := make([]models.Risk, 0, len(*raw.Hazards))
	for i, h := range *raw.Hazards {
		risks = append(risks, normalizeHazard(h, i))
	}

	ppe := make([]models.PPEItem, 0, len(raw.PPE))
	for i, p := range raw.PPE {
		ppe = append(ppe, normalizePPE(p, i))
	}

	return &models.RiskDocument{
		Header:                header(info, now),
		Risks:                 risks,
		PPE:                   ppe,
		EmergencyProcedures:   orEmpty(raw.EmergencyProcedures),
		ComplianceRegulations: orEmpty(raw.ComplianceRegulations),
		OverallRiskLevel:      OverallRiskLevel(risks),
	}, nil
}

// Method normalizes a raw method payload. Unlike risk, there is no structural
// precondition; an agent that produced a data block produced a usable one.
func Method(raw *models.RawMethodData, info models.ProjectInfo, now time.Time) (*models.MethodDocument, error) {
	if raw == nil {
		return nil, &Error{Document: "method", Reason: "agent payload missing"}
	}

	steps := make([]models.MethodStep, 0, len(raw.Steps))
	for i, s := range raw.Steps {
		num := s.StepNumber
		if num <= 0 {
			num = i + 1
		}
		steps = append(steps, models.MethodStep{
			StepNumber: num,
			Title:      s.Title,
			Content:    s.Description,
			Duration:   s.Duration,
		})
	}

	doc := &models.MethodDocument{
		Header:             header(info, now),
		Steps:              steps,
		OverallRiskLevel:   strings.ToLower(raw.OverallRiskLevel),
		TotalEstimatedTime: raw.TotalEstimatedTime,
	}
	if raw.EmergencyContacts != nil {
		doc.EmergencyContacts = models.EmergencyContacts{
			SiteManager:   raw.EmergencyContacts.SiteManager,
			FirstAider:    raw.EmergencyContacts.FirstAider,
			SafetyOfficer: raw.EmergencyContacts.SafetyOfficer,
			AssemblyPoint: raw.EmergencyContacts.AssemblyPoint,
		}
	}
	if doc.TotalEstimatedTime == "" {
		doc.TotalEstimatedTime = TotalEstimatedTime(steps)
	}
	return doc, nil
}

// Merge reconciles the cross-cutting fields the two documents share. The
// method agent owns emergency contacts; the risk ratings own the overall risk
// level. Both pointers are optional so partial results merge too.
func Merge(risk *models.RiskDocument, method *models.MethodDocument) {
	if risk != nil && method != nil {
		risk.EmergencyContacts = method.EmergencyContacts
		method.OverallRiskLevel = risk.OverallRiskLevel
	}
	if method != nil && method.OverallRiskLevel == "" {
		method.OverallRiskLevel = "low"
	}
}

func normalizeHazard(h models.RawHazard, index int) models.Risk {
	likelihood := intOr(h.Likelihood, defaultLikelihood)
	severity := intOr(h.Severity, defaultSeverity)

	rating := likelihood * severity
	if h.RiskScore != nil && *h.RiskScore > 0 {
		rating = *h.RiskScore
	}

	residual := int(math.Ceil(float64(rating) * residualFactor))
	if h.ResidualRisk != nil && *h.ResidualRisk > 0 {
		residual = *h.ResidualRisk
	}

	id := h.ID
	if id == "" {
		id = fmt.Sprintf("hazard-%d", index+1)
	}

	return models.Risk{
		ID:           id,
		Hazard:       h.Hazard,
		Likelihood:   likelihood,
		Severity:     severity,
		RiskRating:   rating,
		Controls:     h.ControlMeasure,
		ResidualRisk: residual,
		LinkedStep:   intOr(h.LinkedToStep, 0),
		Regulation:   h.Regulation,
	}
}

func normalizePPE(p models.RawPPE, index int) models.PPEItem {
	num := p.ItemNumber
	if num <= 0 {
		num = index + 1
	}
	mandatory := true
	if p.Mandatory != nil {
		mandatory = *p.Mandatory
	}
	return models.PPEItem{
		SequenceNumber: num,
		PPEType:        p.PPEType,
		Standard:       p.Standard,
		Mandatory:      mandatory,
		Purpose:        p.Purpose,
	}
}

// OverallRiskLevel classifies a document from its highest-rated hazards.
// Thresholds follow the 5x5 matrix bands: 15+ high, 9-14 medium, below low.
func OverallRiskLevel(risks []models.Risk) string {
	level := "low"
	for _, r := range risks {
		switch {
		case r.RiskRating >= 15:
			return "high"
		case r.RiskRating >= 9:
			level = "medium"
		}
	}
	return level
}

var durationPattern = regexp.MustCompile(`(?i)(\d+)\s*(min|minute|minutes|hour|hours|hr|hrs)\b`)

// TotalEstimatedTime sums the parseable step durations into a single display
// string. Steps whose durations do not match the known patterns contribute
// nothing; if no step parses the total is unknowable.
func TotalEstimatedTime(steps []models.MethodStep) string {
	total := 0
	parsed := false
	for _, s := range steps {
		for _, m := range durationPattern.FindAllStringSubmatch(s.Duration, -1) {
			n, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			if strings.HasPrefix(strings.ToLower(m[2]), "h") {
				n *= 60
			}
			total += n
			parsed = true
		}
	}
	if !parsed {
		return "Not specified"
	}

	hours, minutes := total/60, total%60
	switch {
	case hours > 0 && minutes > 0:
		return fmt.Sprintf("%dh %dmin", hours, minutes)
	case hours > 0:
		return fmt.Sprintf("%dh", hours)
	default:
		return fmt.Sprintf("%dmin", minutes)
	}
}

func header(info models.ProjectInfo, now time.Time) models.DocumentHeader {
	return models.DocumentHeader{
		ProjectName: info.ProjectName,
		Location:    info.Location,
		Assessor:    info.Assessor,
		Contractor:  info.Contractor,
		Supervisor:  info.Supervisor,
		Date:        now.Format("2006-01-02"),
	}
}

func intOr(v *int, fallback int) int {
	if v != nil && *v > 0 {
		return *v
	}
	return fallback
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
