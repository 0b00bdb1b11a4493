package domain

import "time"

type SkillLevel string

const (
	SkillRookie      SkillLevel = "ROOKIE"
	SkillExperienced SkillLevel = "EXPERIENCED"
	SkillSuper       SkillLevel = "SUPER"
)

// SkillParams is the (base assembly time, defect probability) pair that
// governs a worker's output.
type SkillParams struct {
	AssemblyTime time.Duration
	DefectRate   float64 // probability in [0,1)
}

// Worker operates a station. AssemblyTime and DefectRate are optional
// per-worker overrides; when nil the configured default for the worker's
// skill level applies.
type Worker struct {
	ID           string
	Name         string
	Skill        SkillLevel
	AssemblyTime *time.Duration
	DefectRate   *float64
}

// Effective resolves the worker's parameters against the configured
// per-skill defaults, preferring explicit overrides field by field.
func (w Worker) Effective(defaults map[SkillLevel]SkillParams) SkillParams {
	p := defaults[w.Skill]
	if w.AssemblyTime != nil {
		p.AssemblyTime = *w.AssemblyTime
	}
	if w.DefectRate != nil {
		p.DefectRate = *w.DefectRate
	}
	return p
}
