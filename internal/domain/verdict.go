package domain

// Verdict is the opaque result of the external voice analysis service.
// The signaling core forwards it; it never computes or interprets it.
type Verdict struct {
	Label      string  `json:"label"` // REAL or FAKE
	Confidence float64 `json:"confidence"`
}

const (
	LabelReal = "REAL"
	LabelFake = "FAKE"
)
