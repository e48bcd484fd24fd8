package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		input   string
		want    []string
		wantErr string
	}{
		{input: "", want: nil},
		{input: "   ", want: nil},
		{input: "# wl-copy", want: nil},
		{input: "wl-copy --trim-newline", want: []string{"wl-copy", "--trim-newline"}},
		{input: `xclip  -i   -selection clipboard`, want: []string{"xclip", "-i", "-selection", "clipboard"}},
		{input: `copy --label "two words"`, want: []string{"copy", "--label", "two words"}},
		{input: `copy 'a "quoted" word'`, want: []string{"copy", `a "quoted" word`}},
		{input: `copy 'back\slash'`, want: []string{"copy", `back\slash`}},
		{input: `copy two\ words`, want: []string{"copy", "two words"}},
		{input: `copy ""`, want: []string{"copy", ""}},
		{input: `copy "a"b'c'`, want: []string{"copy", "abc"}},
		{input: `copy "oops`, wantErr: "unclosed \" quote"},
		{input: `copy oops\`, wantErr: "dangling backslash"},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			got, err := splitCommand(tc.input)
			if tc.wantErr != "" {
				require.ErrorContains(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestParseCommandKeepsRaw(t *testing.T) {
	cmd, err := ParseCommand(`xclip -selection 'clip board'`)
	require.NoError(t, err)
	require.Equal(t, `xclip -selection 'clip board'`, cmd.Raw)
	require.Equal(t, []string{"xclip", "-selection", "clip board"}, cmd.Argv)

	require.Panics(t, func() { mustParseCommand(`copy "unterminated`) })
}
