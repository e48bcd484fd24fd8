package analysis

import (
	"encoding/json"

	"github.com/kaptinlin/jsonrepair"
)

// candidate is one JSON object span found in free text.
type candidate struct {
	body     string
	complete bool
}

// objectCandidates returns the brace-balanced spans of text in order. Braces
// inside JSON strings are ignored. A brace that never closes does not hide a
// balanced object after it; the text from the first such brace is returned
// last as an incomplete candidate for repair.
func objectCandidates(text string) []candidate {
	var out []candidate
	unclosed := -1
	for i := 0; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}
		end, ok := matchBrace(text, i)
		if !ok {
			if unclosed < 0 {
				unclosed = i
			}
			continue
		}
		out = append(out, candidate{body: text[i : end+1], complete: true})
		i = end
	}
	if unclosed >= 0 {
		out = append(out, candidate{body: text[unclosed:], complete: false})
	}
	return out
}

// matchBrace returns the index of the brace closing the object opened at start.
func matchBrace(text string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// unmarshalJSON decodes data into v, retrying once through jsonrepair when the
// input is not syntactically valid.
func unmarshalJSON(data []byte, v any) error {
	err := json.Unmarshal(data, v)
	if err == nil {
		return nil
	}
	if _, ok := err.(*json.SyntaxError); ok {
		fixed, err := jsonrepair.JSONRepair(string(data))
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(fixed), v)
	}
	return err
}

// decodeCandidate decodes one span. Truncated spans always go through repair.
func decodeCandidate(c candidate, v any) error {
	if c.complete {
		return unmarshalJSON([]byte(c.body), v)
	}
	fixed, err := jsonrepair.JSONRepair(c.body)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(fixed), v)
}
