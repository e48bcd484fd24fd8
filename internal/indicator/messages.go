package indicator

import (
	"fmt"
	"os"
	"strings"

	"github.com/rbright/trace/internal/analysis"
)

type locale string

const (
	localeEnglish locale = "en"
)

type messages struct {
	recording string
	analyzing string
	errorText string
}

func indicatorMessagesFromEnv() messages {
	return indicatorMessages(resolveLocale(os.Getenv("LANG")))
}

func resolveLocale(raw string) locale {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if strings.HasPrefix(raw, "en") {
		return localeEnglish
	}
	return localeEnglish
}

func indicatorMessages(tag locale) messages {
	switch tag {
	case localeEnglish:
		fallthrough
	default:
		return messages{
			recording: "Recording…",
			analyzing: "Analyzing",
			errorText: "Analysis failed",
		}
	}
}

func (m messages) analyzingText(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return m.analyzing + "…"
	}
	return m.analyzing + " " + name + "…"
}

// verdictText renders a report as a single notification line.
func verdictText(report analysis.Report) string {
	return fmt.Sprintf("%s (%.0f%% confidence)", report.Decision.Label(), report.Scores.Confidence*100)
}
