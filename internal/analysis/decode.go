package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/rbright/trace/internal/fault"
)

// reply mirrors the model's JSON loosely so that absent fields can be told
// apart from zero values.
type reply struct {
	Decision         *string          `json:"decision"`
	Summary          *string          `json:"summary"`
	Explanation      *string          `json:"explanation"`
	Scores           *replyScores     `json:"scores"`
	Provenance       *replyProvenance `json:"provenance"`
	TechnicalDetails *replyFindings   `json:"technicalDetails"`
	Findings         *replyFindings   `json:"findings"`
	Error            json.RawMessage  `json:"error"`
}

type replyScores struct {
	Authenticity *number `json:"authenticity_score"`
	Confidence   *number `json:"confidence"`
}

type replyProvenance struct {
	Human     *number `json:"human_probability"`
	Synthetic *number `json:"synthetic_probability"`
}

type replyFindings struct {
	SpectralAnomalies       stringList `json:"spectralAnomalies"`
	TemporalInconsistencies stringList `json:"temporalInconsistencies"`
	SyntheticArtifacts      stringList `json:"syntheticArtifacts"`
}

// number accepts a JSON number or a numeric string.
type number float64

func (n *number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return fmt.Errorf("score %q is not a number", s)
		}
		*n = number(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*n = number(v)
	return nil
}

// stringList accepts an array of strings, a single string, or null.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*l = nil
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = stringList{s}
		return nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	out := make(stringList, 0, len(items))
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			out = append(out, s)
			continue
		}
		out = append(out, string(bytes.TrimSpace(item)))
	}
	*l = out
	return nil
}

// parseReply turns the model's free text into a validated report.
func parseReply(text string) (Report, error) {
	candidates := objectCandidates(text)
	if len(candidates) == 0 {
		return Report{}, fault.New(fault.MalformedResponse, "model reply contains no JSON object")
	}

	var lastErr error
	for _, c := range candidates {
		var r reply
		if err := decodeCandidate(c, &r); err != nil {
			lastErr = err
			continue
		}
		if r.Decision == nil && len(r.Error) == 0 && r.Scores == nil {
			continue
		}
		return r.validate()
	}
	if lastErr != nil {
		return Report{}, fault.Wrap(fault.MalformedResponse, lastErr, "decode model reply")
	}
	return Report{}, fault.New(fault.MalformedResponse, "model reply is missing decision")
}

func (r reply) validate() (Report, error) {
	if msg, ok := r.errorMessage(); ok {
		return Report{}, fault.New(fault.Upstream, "model reported an error: %s", msg)
	}

	if r.Decision == nil || strings.TrimSpace(*r.Decision) == "" {
		return Report{}, missing("decision")
	}
	decision, ok := ParseDecision(*r.Decision)
	if !ok {
		switch strings.ToUpper(strings.TrimSpace(*r.Decision)) {
		case "INCONCLUSIVE", "UNKNOWN", "UNDETERMINED":
			return Report{}, fault.New(fault.Upstream, "model could not reach a verdict (%s)", *r.Decision)
		}
		return Report{}, fault.New(fault.MalformedResponse, "model reply has unknown decision %q", *r.Decision)
	}

	if r.Summary == nil || strings.TrimSpace(*r.Summary) == "" {
		return Report{}, missing("summary")
	}
	if r.Explanation == nil || strings.TrimSpace(*r.Explanation) == "" {
		return Report{}, missing("explanation")
	}
	if r.Scores == nil || r.Scores.Authenticity == nil {
		return Report{}, missing("scores.authenticity_score")
	}
	if r.Scores.Confidence == nil {
		return Report{}, missing("scores.confidence")
	}

	report := Report{
		Decision:    decision,
		Summary:     strings.TrimSpace(*r.Summary),
		Explanation: strings.TrimSpace(*r.Explanation),
		Scores: Scores{
			Authenticity: float64(*r.Scores.Authenticity),
			Confidence:   float64(*r.Scores.Confidence),
		},
		Provenance: r.provenance(float64(*r.Scores.Authenticity)),
		Findings:   r.findings(),
	}

	checks := []struct {
		field string
		value float64
	}{
		{"scores.authenticity_score", report.Scores.Authenticity},
		{"scores.confidence", report.Scores.Confidence},
		{"provenance.human_probability", report.Provenance.HumanProbability},
		{"provenance.synthetic_probability", report.Provenance.SyntheticProbability},
	}
	for _, check := range checks {
		if math.IsNaN(check.value) || check.value < 0 || check.value > 1 {
			return Report{}, fault.New(fault.MalformedResponse, "%s = %v is outside [0,1]", check.field, check.value)
		}
	}

	return report, nil
}

func (r reply) errorMessage() (string, bool) {
	raw := bytes.TrimSpace(r.Error)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) || bytes.Equal(raw, []byte("false")) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if strings.TrimSpace(s) == "" {
			return "", false
		}
		return s, true
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message, true
	}
	return string(raw), true
}

func (r reply) provenance(authenticity float64) Provenance {
	p := r.Provenance
	switch {
	case p == nil || (p.Human == nil && p.Synthetic == nil):
		return Provenance{HumanProbability: authenticity, SyntheticProbability: 1 - authenticity, Derived: true}
	case p.Human == nil:
		return Provenance{HumanProbability: 1 - float64(*p.Synthetic), SyntheticProbability: float64(*p.Synthetic), Derived: true}
	case p.Synthetic == nil:
		return Provenance{HumanProbability: float64(*p.Human), SyntheticProbability: 1 - float64(*p.Human), Derived: true}
	default:
		return Provenance{HumanProbability: float64(*p.Human), SyntheticProbability: float64(*p.Synthetic)}
	}
}

func (r reply) findings() Findings {
	src := r.TechnicalDetails
	if src == nil {
		src = r.Findings
	}
	if src == nil {
		src = &replyFindings{}
	}
	return Findings{
		SpectralAnomalies:       nonNil(src.SpectralAnomalies),
		TemporalInconsistencies: nonNil(src.TemporalInconsistencies),
		SyntheticArtifacts:      nonNil(src.SyntheticArtifacts),
	}
}

func nonNil(list stringList) []string {
	if list == nil {
		return []string{}
	}
	return []string(list)
}

func missing(field string) error {
	return fault.New(fault.MalformedResponse, "model reply is missing %s", field)
}
