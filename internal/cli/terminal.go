package cli

import (
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/ralt/extmgr/internal/messages"
	"github.com/ralt/extmgr/internal/orchestrator"
	"golang.org/x/term"
)

var isInteractive = func() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

var runForm = func(form *huh.Form) error { return form.Run() }

// confirmDependencies asks whether the dependencies listed in check should
// be resolved. A failed prompt counts as declined.
func confirmDependencies(key string) func(orchestrator.DependencyCheck) bool {
	return func(check orchestrator.DependencyCheck) bool {
		accepted := true
		form := huh.NewForm(huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf(messages.InstallConfirmTitleFmt, key)).
				Description(check.Message).
				Affirmative(messages.InstallConfirmAffirmative).
				Negative(messages.InstallConfirmNegative).
				Value(&accepted),
		))
		if err := runForm(form); err != nil {
			return false
		}
		return accepted
	}
}
