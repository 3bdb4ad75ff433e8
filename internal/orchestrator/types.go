package orchestrator

import (
	"net/url"

	"github.com/ralt/extmgr/internal/models"
)

// Action names a follow-up operation of the orchestrator
type Action string

const (
	ActionInstallFromRepository         Action = "installFromRepository"
	ActionInstallWithoutDependencyCheck Action = "installWithoutDependencyCheck"
	ActionUpdateExtension               Action = "updateExtension"
)

// ActionRef is a follow-up operation together with its arguments
type ActionRef struct {
	Action Action            `json:"action"`
	Params map[string]string `json:"params,omitempty"`
}

// String renders the reference as "action?key=value&..." with sorted keys
func (a ActionRef) String() string {
	if len(a.Params) == 0 {
		return string(a.Action)
	}
	values := url.Values{}
	for k, v := range a.Params {
		values.Set(k, v)
	}
	return string(a.Action) + "?" + values.Encode()
}

// Phase is a state of a single install attempt
type Phase string

const (
	PhaseStart          Phase = "START"
	PhaseCheckingDeps   Phase = "CHECKING_DEPS"
	PhaseNoDeps         Phase = "NO_DEPS"
	PhaseHasDepsAuto    Phase = "HAS_DEPS_AUTO"
	PhaseHasDepsConfirm Phase = "HAS_DEPS_CONFIRM"
	PhaseResolveError   Phase = "RESOLVE_ERROR"
	PhaseInstalling     Phase = "INSTALLING"
	PhaseSuccess        Phase = "SUCCESS"
	PhasePartialFailure Phase = "PARTIAL_FAILURE"
	PhaseEnd            Phase = "END"
)

// DependencyCheck is the outcome of CheckDependencies
type DependencyCheck struct {
	HasDependencies bool                          `json:"hasDependencies"`
	HasErrors       bool                          `json:"hasErrors"`
	Dependencies    models.ClassifiedDependencies `json:"dependencies,omitempty"`
	Title           string                        `json:"title,omitempty"`
	Message         string                        `json:"message,omitempty"`
	Next            ActionRef                     `json:"next"`
}

// VersionComment is the update comment of one version
type VersionComment struct {
	Version string `json:"version"`
	Comment string `json:"comment"`
}

// UpdateComments lists the update comments of a version range, highest
// version first
type UpdateComments struct {
	Key            string            `json:"key"`
	Comments       []VersionComment  `json:"comments"`
	ByVersion      map[string]string `json:"byVersion"`
	HighestVersion string            `json:"highestVersion,omitempty"`
	Next           ActionRef         `json:"next"`
}

// Attempt is the outcome of a full install attempt through Run
type Attempt struct {
	Phase    Phase                `json:"phase"`
	Check    DependencyCheck      `json:"check"`
	Declined bool                 `json:"declined,omitempty"`
	Result   models.InstallResult `json:"result"`
	Errors   models.ErrorMap      `json:"errors"`
}
