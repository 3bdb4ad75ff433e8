package messages

// Extension workflow messages shown to users through notifications and
// dependency checks.
const (
	// DependenciesHeadline introduces the dependency list of a check.
	DependenciesHeadline             = "The following dependencies have to be resolved before installation:"
	DependenciesTypeHeadlineFmt      = "%s:"
	DependenciesExtensionFmt         = "  %s (%s)"
	DependenciesResolveAutomatically = "Resolve dependencies automatically?"
	DependenciesErrorTitle           = "Dependency error"
	DependenciesDownloadOnlyTitle    = "Download only"
	DependencyTypeRequires           = "Required extensions"
	DependencyTypeSuggests           = "Suggested extensions"
	DependencyTypeConflicts          = "Conflicting extensions"
	DependencyConstraintAny          = "any"

	// UpdateTitle is the title of the notification sent after an update.
	UpdateTitle   = "Extension updated"
	UpdateBodyFmt = "Extension %q was updated."

	DistributionErrorTitleFmt      = "Could not install distribution %q"
	DistributionWelcomeTitle       = "Welcome to your new distribution"
	DistributionWelcomeBodyFmt     = "The distribution is installed and ready to use: %s"
	DistributionImporterMissingFmt = "distribution import requires the %q extension to be active"
)

// Resolver messages used in ErrorRecord entries.
const (
	ResolverInvalidConstraintFmt  = "invalid version constraint %q for %s: %v"
	ResolverSystemRequirementFmt  = "%s %s is installed, but %s requires %s"
	ResolverMissingDependencyFmt  = "extension %s required by %s is not available"
	ResolverNoSatisfyingFmt       = "no version of %s satisfies %s"
	ResolverConstraintMismatchFmt = "%s requires %s %s, but %s %s is selected"
	ResolverConflictFmt           = "%s conflicts with %s %s"
)

// Manager and state messages.
const (
	ManagerDownloadFailedFmt = "failed to download %s: %v"
	ManagerExtractFailedFmt  = "failed to extract %s into %s: %v"
	ManagerStateFailedFmt    = "failed to record %s: %v"
	ManagerLockFailedFmt     = "failed to lock %s: %v"

	LockOpenFmt         = "failed to open lock file %s: %w"
	LockAcquireFmt      = "failed to lock %s: %w"
	LockTimeoutFmt      = "timed out after %s waiting for lock"
	StateReadFmt        = "failed to read state file %s: %w"
	StateDecodeFmt      = "invalid state file %s: %w"
	StateWriteFmt       = "failed to write state file %s: %w"
	StateNotRecordedFmt = "extension %s is not downloaded"

	RepositoryNotFoundFmt        = "extension %s not found"
	RepositoryVersionNotFoundFmt = "extension %s version %s not found"
	RepositoryFetchFmt           = "failed to fetch %s: %w"
	RepositoryStatusFmt          = "unexpected status %d fetching %s"
	RepositorySignatureFmt       = "index signature verification failed: %w"
)
