package config

import (
	"fmt"
	"strings"
	"unicode"
)

// ParseCommand splits raw into argv with POSIX-shell style quoting: single
// and double quotes group words, a backslash escapes the next rune. A raw
// value starting with '#' disables the command.
func ParseCommand(raw string) (CommandConfig, error) {
	argv, err := splitCommand(raw)
	if err != nil {
		return CommandConfig{}, err
	}
	return CommandConfig{Raw: raw, Argv: argv}, nil
}

func mustParseCommand(raw string) CommandConfig {
	cmd, err := ParseCommand(raw)
	if err != nil {
		panic(err)
	}
	return cmd
}

type wordSplitter struct {
	words   []string
	word    strings.Builder
	inWord  bool
	quote   rune
	escaped bool
}

func (s *wordSplitter) emit() {
	if s.inWord {
		s.words = append(s.words, s.word.String())
	}
	s.word.Reset()
	s.inWord = false
}

func (s *wordSplitter) add(r rune) {
	s.word.WriteRune(r)
	s.inWord = true
}

func (s *wordSplitter) feed(r rune) {
	switch {
	case s.escaped:
		s.escaped = false
		s.add(r)
	case r == '\\' && s.quote != '\'':
		s.escaped = true
	case s.quote != 0 && r == s.quote:
		s.quote = 0
	case s.quote != 0:
		s.add(r)
	case r == '"' || r == '\'':
		s.quote = r
		s.inWord = true
	case unicode.IsSpace(r):
		s.emit()
	default:
		s.add(r)
	}
}

func splitCommand(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw[0] == '#' {
		return nil, nil
	}

	var s wordSplitter
	for _, r := range raw {
		s.feed(r)
	}
	switch {
	case s.escaped:
		return nil, fmt.Errorf("command ends in a dangling backslash: %q", raw)
	case s.quote != 0:
		return nil, fmt.Errorf("command has an unclosed %c quote: %q", s.quote, raw)
	}
	s.emit()
	return s.words, nil
}
