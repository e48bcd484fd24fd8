package indicator

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Freedesktop urgency levels.
const (
	urgencyNormal   byte = 1
	urgencyCritical byte = 2
)

// notification is one org.freedesktop.Notifications.Notify call.
type notification struct {
	app       string
	replaceID uint32
	summary   string
	body      string
	timeoutMS int
	urgency   byte
}

// args renders n as busctl arguments for the susssasa{sv}i signature.
func (n notification) args() []string {
	args := []string{
		"Notify", "susssasa{sv}i",
		n.app,
		strconv.FormatUint(uint64(n.replaceID), 10),
		"", // icon
		n.summary,
		n.body,
		"0", // actions
	}
	if n.urgency == 0 {
		args = append(args, "0")
	} else {
		args = append(args, "1", "urgency", "y", strconv.Itoa(int(n.urgency)))
	}
	return append(args, strconv.Itoa(n.timeoutMS))
}

// callNotifications invokes a method on the session notification service via busctl.
func callNotifications(ctx context.Context, method []string) (string, error) {
	args := append([]string{
		"--user", "call",
		"org.freedesktop.Notifications",
		"/org/freedesktop/Notifications",
		"org.freedesktop.Notifications",
	}, method...)

	out, err := exec.CommandContext(ctx, "busctl", args...).CombinedOutput()
	text := strings.TrimSpace(string(out))
	if err != nil {
		if text == "" {
			return "", fmt.Errorf("busctl %s: %w", method[0], err)
		}
		return "", fmt.Errorf("busctl %s: %w (%s)", method[0], err, text)
	}
	return text, nil
}

// desktopNotify shows n and returns the id assigned by the notification server.
func desktopNotify(ctx context.Context, n notification) (uint32, error) {
	reply, err := callNotifications(ctx, n.args())
	if err != nil {
		return 0, err
	}

	// busctl prints the reply as "u <id>".
	kind, value, ok := strings.Cut(reply, " ")
	if !ok || kind != "u" {
		return 0, fmt.Errorf("desktop notify invalid response: %q", reply)
	}
	id, err := strconv.ParseUint(strings.TrimSpace(value), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("desktop notify parse id %q: %w", value, err)
	}
	return uint32(id), nil
}

func desktopDismiss(ctx context.Context, id uint32) error {
	_, err := callNotifications(ctx, []string{"CloseNotification", "u", strconv.FormatUint(uint64(id), 10)})
	return err
}
