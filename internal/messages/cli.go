package messages

// CLI messages for user-facing commands and prompts.
const (
	// RootUse is the CLI command name.
	RootUse   = "extmgr"
	RootShort = "Download, resolve and install CMS extensions"
	RootLong  = `extmgr installs extensions from a static extension repository,
resolving required, suggested and conflicting dependencies first.

Use "extmgr index" to build such a repository from a directory of
extension archives.`

	FlagVerbose = "Enable verbose logging"
	FlagConfig  = "Path to the configuration file"

	CheckShort        = "Show the dependencies an installation would resolve"
	InstallShort      = "Install an extension and its dependencies"
	UpdateShort       = "Update an extension to a version or the highest available one"
	CommentsShort     = "Show update comments for a version range"
	DistributionShort = "Install a distribution extension"
	IndexShort        = "Generate an extension repository index"
	KeygenShort       = "Generate a key pair for signing repository indexes"
	ListShort         = "List downloaded extensions"

	InstallFlagPath      = "Download path (Local, Global or System)"
	InstallFlagSkipCheck = "Download without resolving dependencies"
	InstallFlagYes       = "Resolve dependencies without asking"

	InstallConfirmTitleFmt      = "Install %s?"
	InstallConfirmAffirmative   = "Install"
	InstallConfirmNegative      = "Cancel"
	InstallCancelled            = "installation cancelled"
	InstallRequiresConfirmation = "dependencies need confirmation; re-run with --yes or in an interactive terminal"

	ExtensionArgRequired = "extension key is required"
	VersionArgInvalidFmt = "version %q: %v"
)
