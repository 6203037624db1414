package oauth

import (
	"errors"
	"os/exec"
	"runtime"
	"strings"
)

// openBrowser opens the target URL with the platform opener. Fire and
// forget: the command is started, not awaited.
func openBrowser(target string) error {
	target = strings.TrimSpace(target)
	if target == "" {
		return errors.New("empty url")
	}
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", target)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", target)
	default:
		cmd = exec.Command("xdg-open", target)
	}
	return cmd.Start()
}
