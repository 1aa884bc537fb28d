package models

// PerceptionResult is the normalized answer of the image perception collaborator.
// Category and Priority are only set when the collaborator decided them itself;
// otherwise the engine classifies Features.
type PerceptionResult struct {
	Category   *Category `json:"category,omitempty"`
	Priority   *Priority `json:"priority,omitempty"`
	Confidence float64   `json:"confidence"`
	Labels     []string  `json:"labels"`
	Features   []string  `json:"-"`
}
