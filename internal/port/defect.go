package port

// DefectSource supplies the uniform draws in [0,1) that decide defect
// outcomes at assembly completion. Injectable so tests can force exact
// outcomes.
type DefectSource interface {
	Draw() float64
}
