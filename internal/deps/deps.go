// Package deps checks that the external programs skylink drives are installed.
package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"skylink/internal/config"
)

// Requirement defines an external program skylink relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a requirement.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Path        string
	Detail      string
}

// HostRequirements lists the programs needed for the configured host and
// transport.
func HostRequirements(cfg *config.Config) []Requirement {
	reqs := []Requirement{{
		Name:        "Host application",
		Command:     cfg.Host.Executable,
		Description: "launched by `skylink host start`",
	}}
	if cfg.Client.Transport == config.TransportDBus && !cfg.DBus.UseSystemBus {
		reqs = append(reqs, Requirement{
			Name:        "Session bus",
			Command:     "dbus-daemon",
			Description: "provides the session bus when none is running",
			Optional:    true,
		})
	}
	return reqs
}

// CheckBinaries resolves each requirement against PATH.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		status := Status{
			Name:        req.Name,
			Command:     strings.TrimSpace(req.Command),
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		switch path, err := exec.LookPath(status.Command); {
		case status.Command == "":
			status.Detail = "command not configured"
		case err != nil:
			status.Detail = fmt.Sprintf("binary %q not found", status.Command)
		default:
			status.Available = true
			status.Path = path
		}
		results = append(results, status)
	}
	return results
}

// Missing returns the required statuses that are unavailable.
func Missing(statuses []Status) []Status {
	var missing []Status
	for _, s := range statuses {
		if !s.Available && !s.Optional {
			missing = append(missing, s)
		}
	}
	return missing
}
