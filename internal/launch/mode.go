package launch

import (
	"fmt"
	"strings"
)

// Mode is the runtime flavour a launch targets.
type Mode int

const (
	ModeWine Mode = iota
	ModeProton
)

func (m Mode) String() string {
	if m == ModeProton {
		return "proton"
	}
	return "wine"
}

// protonAliases are source identifiers that select Proton without naming it
// in a repository path.
var protonAliases = []string{"GE-PROTON", "CACHY-PROTON"}

// DetectMode infers the mode from a configured source identifier.
func DetectMode(repo string) Mode {
	if strings.Contains(strings.ToLower(repo), "proton") {
		return ModeProton
	}
	for _, alias := range protonAliases {
		if strings.EqualFold(repo, alias) {
			return ModeProton
		}
	}
	return ModeWine
}

// ModeMismatchError reports an installed runtime whose layout disagrees
// with the mode selected by the configured source. The caller decides which
// one wins; nothing is launched.
type ModeMismatchError struct {
	Repo       string
	Root       string
	Configured Mode
	Installed  Mode
}

func (e *ModeMismatchError) Error() string {
	return fmt.Sprintf("runtime %s is a %s build but source %q selects %s", e.Root, e.Installed, e.Repo, e.Configured)
}
