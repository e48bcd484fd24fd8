package analysis

import "strings"

// Decision is the model's verdict on a clip.
type Decision string

const (
	Bonafide Decision = "BONAFIDE"
	Spoof    Decision = "SPOOF"
)

// ParseDecision accepts the two verdicts case-insensitively.
func ParseDecision(raw string) (Decision, bool) {
	switch Decision(strings.ToUpper(strings.TrimSpace(raw))) {
	case Bonafide:
		return Bonafide, true
	case Spoof:
		return Spoof, true
	default:
		return "", false
	}
}

// Label returns the display label for the verdict.
func (d Decision) Label() string {
	switch d {
	case Bonafide:
		return "Authentic speech"
	case Spoof:
		return "Synthetic speech"
	default:
		return string(d)
	}
}

// Report is the validated forensic verdict for one clip.
type Report struct {
	Decision    Decision   `json:"decision" yaml:"decision"`
	Summary     string     `json:"summary" yaml:"summary"`
	Explanation string     `json:"explanation" yaml:"explanation"`
	Scores      Scores     `json:"scores" yaml:"scores"`
	Provenance  Provenance `json:"provenance" yaml:"provenance"`
	Findings    Findings   `json:"technicalDetails" yaml:"technical_details"`
}

// Scores are the model's self-reported authenticity and confidence, each in [0,1].
type Scores struct {
	Authenticity float64 `json:"authenticity_score" yaml:"authenticity_score"`
	Confidence   float64 `json:"confidence" yaml:"confidence"`
}

// Provenance holds independent human/synthetic probabilities. They need not sum to 1.
type Provenance struct {
	HumanProbability     float64 `json:"human_probability" yaml:"human_probability"`
	SyntheticProbability float64 `json:"synthetic_probability" yaml:"synthetic_probability"`
	// Derived is set when the model omitted provenance and it was filled from the authenticity score.
	Derived bool `json:"derived,omitempty" yaml:"derived,omitempty"`
}

// Findings are free-text observations grouped by category. Lists are never nil.
type Findings struct {
	SpectralAnomalies       []string `json:"spectralAnomalies" yaml:"spectral_anomalies"`
	TemporalInconsistencies []string `json:"temporalInconsistencies" yaml:"temporal_inconsistencies"`
	SyntheticArtifacts      []string `json:"syntheticArtifacts" yaml:"synthetic_artifacts"`
}

// Count returns the total number of findings.
func (f Findings) Count() int {
	return len(f.SpectralAnomalies) + len(f.TemporalInconsistencies) + len(f.SyntheticArtifacts)
}
