package indicator

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rbright/trace/internal/analysis"
	"github.com/rbright/trace/internal/config"
	"github.com/stretchr/testify/require"
)

func TestDesktopDispatchReplacesNotification(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "busctl-args.log")
	t.Setenv("BUSCTL_ARGS_FILE", argsFile)
	installBusctlStub(t, `
printf '%s\n' "$*" >> "${BUSCTL_ARGS_FILE}"
if [[ "$*" == *" Notify "* ]]; then
  echo "u 42"
fi
`)

	cfg := config.Default().Indicator
	cfg.Enable = true
	cfg.ErrorTimeoutMS = 1600

	notify := NewDesktop(cfg, nil)
	notify.messages = indicatorMessages(localeEnglish)
	notify.ShowRecording(context.Background())
	notify.ShowAnalyzing(context.Background(), "clip.wav")
	notify.ShowReport(context.Background(), analysis.Report{Decision: analysis.Bonafide, Summary: "Natural breathing.", Scores: analysis.Scores{Confidence: 0.5}})
	notify.ShowError(context.Background(), "")
	notify.Hide(context.Background())

	data, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 5)
	require.Contains(t, lines[0], "Notify susssasa{sv}i trace 0  Recording…  0 0 300000")
	require.Contains(t, lines[1], "trace 42  Analyzing clip.wav…  0 0 300000")
	require.Contains(t, lines[2], "trace 42  Authentic speech (50% confidence) Natural breathing. 0 1 urgency y 1 10000")
	require.Contains(t, lines[3], "trace 42  Analysis failed  0 1 urgency y 2 1600")
	require.Contains(t, lines[4], "CloseNotification u 42")
}

func TestDesktopShowErrorDefaultTimeout(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "busctl-args.log")
	t.Setenv("BUSCTL_ARGS_FILE", argsFile)
	installBusctlStub(t, `
printf '%s\n' "$*" >> "${BUSCTL_ARGS_FILE}"
echo "u 7"
`)

	cfg := config.Default().Indicator
	cfg.ErrorTimeoutMS = 0

	notify := NewDesktop(cfg, nil)
	notify.ShowError(context.Background(), "custom error")

	data, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	require.Contains(t, string(data), "custom error  0 1 urgency y 2 1200")
}

func TestDesktopDisabledSkipsDispatch(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "busctl-args.log")
	t.Setenv("BUSCTL_ARGS_FILE", argsFile)
	installBusctlStub(t, `
printf '%s\n' "$*" >> "${BUSCTL_ARGS_FILE}"
`)

	cfg := config.Default().Indicator
	cfg.Enable = false

	notify := NewDesktop(cfg, nil)
	notify.ShowRecording(context.Background())
	notify.ShowAnalyzing(context.Background(), "clip.wav")
	notify.ShowError(context.Background(), "ignored")
	notify.Hide(context.Background())

	_, err := os.Stat(argsFile)
	require.Error(t, err)
	require.True(t, os.IsNotExist(err))
}

func TestDesktopNotifyRejectsMalformedReply(t *testing.T) {
	installBusctlStub(t, `
echo "garbage"
`)

	_, err := desktopNotify(context.Background(), notification{app: "trace", summary: "hello", timeoutMS: 1000})
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid response")
}

func TestDesktopNotifySurfacesBusctlOutput(t *testing.T) {
	installBusctlStub(t, `
echo "Call failed: no notification daemon" >&2
exit 1
`)

	_, err := desktopNotify(context.Background(), notification{app: "trace", summary: "hello"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "busctl Notify")
	require.Contains(t, err.Error(), "no notification daemon")
}

func TestNotificationArgs(t *testing.T) {
	args := notification{app: "trace", summary: "s", timeoutMS: 5, urgency: urgencyCritical}.args()
	require.Equal(t, []string{"Notify", "susssasa{sv}i", "trace", "0", "", "s", "", "0", "1", "urgency", "y", "2", "5"}, args)

	plain := notification{app: "trace", replaceID: 9, summary: "s", body: "b", timeoutMS: 5}.args()
	require.Equal(t, []string{"Notify", "susssasa{sv}i", "trace", "9", "", "s", "b", "0", "0", "5"}, plain)
}

func TestHideWithoutNotificationIsNoop(t *testing.T) {
	installBusctlStub(t, `
exit 1
`)

	notify := NewDesktop(config.Default().Indicator, nil)
	require.NoError(t, notify.dismiss(context.Background()))
}

func installBusctlStub(t *testing.T, body string) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "busctl")
	script := "#!/usr/bin/env bash\nset -euo pipefail\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	t.Setenv("PATH", dir+":"+os.Getenv("PATH"))
}
