package sprout

import (
	_ "embed"
	"strings"
)

// Short messages (one-liners)
const (
	// Command descriptions
	MsgRootShort            = "Build your tools and track your dotfiles from one manifest"
	MsgInitShort            = "Create a sprout root"
	MsgModulesShort         = "Fetch, build and inspect modules"
	MsgModulesFetchShort    = "Fetch module sources"
	MsgModulesBuildShort    = "Fetch and build modules"
	MsgModulesInstallShort  = "Fetch, build and install modules"
	MsgModulesUpdateShort   = "Bring modules up to date and run their update stage"
	MsgModulesStatusShort   = "Show which modules are out of date"
	MsgModulesHashShort     = "Print or accept module fingerprints"
	MsgModulesCleanShort    = "Remove outputs of undeclared or changed modules"
	MsgModulesRemoveShort   = "Remove a module from the manifest and its build output"
	MsgSymlinksShort        = "Track files as managed symlinks"
	MsgSymlinksAddShort     = "Start tracking a file or directory"
	MsgSymlinksStatusShort  = "Show the state of tracked files"
	MsgSymlinksRestoreShort = "Recreate missing or misdirected links"
	MsgSymlinksRehashShort  = "Accept the current content of tracked files"
	MsgSymlinksUndoShort    = "Stop tracking a file and move it back"
	MsgEnvShort             = "Manage environments and generate shell exports"
	MsgEnvGenerateShort     = "Print export statements for an environment"
	MsgEnvListShort         = "List environments"
	MsgEnvAddShort          = "Add a module to an environment"
	MsgEnvRemoveShort       = "Remove a module from an environment"
	MsgManifestShort        = "Validate or reformat the manifest"
	MsgManifestCheckShort   = "Validate the manifest"
	MsgManifestFormatShort  = "Rewrite the manifest canonically"
	MsgStatusShort          = "Summarize modules and tracked files"
	MsgCommitShort          = "Commit the sprout root"
	MsgPushShort            = "Push the sprout root"
	MsgPullShort            = "Pull the sprout root"
	MsgVersionShort         = "Print version information"
	MsgCompletionShort      = "Generate shell completion script"

	// Status messages
	MsgDryRunNotice      = "DRY RUN MODE - No changes were made"
	MsgInitialized       = "Initialized sprout root at [path]%s[/path]"
	MsgWouldInitialize   = "Would initialize sprout root at [path]%s[/path]"
	MsgCreatedFile       = "  created [path]%s[/path]"
	MsgKeptFile          = "  kept existing [path]%s[/path]"
	MsgGitInitialized    = "  initialized git repository"
	MsgTracked           = "Tracking [path]%s[/path]"
	MsgWouldTrack        = "Would track [path]%s[/path]"
	MsgUntracked         = "Stopped tracking [path]%s[/path]"
	MsgWouldUntrack      = "Would stop tracking [path]%s[/path]"
	MsgDiscovered        = "Discovered [path]%s[/path]"
	MsgModuleRemoved     = "Removed module [module]%s[/module]"
	MsgWouldRemoveModule = "Would remove module [module]%s[/module]"
	MsgEnvUpdated        = "Environment [module]%s[/module]: %s"
	MsgEnvUnchanged      = "Environment [module]%s[/module] unchanged"
	MsgManifestOK        = "Manifest OK: %d modules, %d environments"
	MsgManifestFormatted = "Formatted [path]%s[/path]"
	MsgManifestUnchanged = "[path]%s[/path] is already formatted"
	MsgPinned            = "Pinned [module]%s[/module] to sha256 %s"
	MsgCommitted         = "Committed: %s"
	MsgNothingToCommit   = "Nothing to commit"
	MsgPushed            = "Pushed"
	MsgPulled            = "Pulled"
	MsgAccepted          = "Accepted %d modules"
	MsgDefaultCommit     = "Update sprout state"

	// Error messages
	MsgErrNoTargets       = "no modules given; name modules or pass --all"
	MsgErrAlreadyInit     = "%s already exists"
	MsgErrModuleFailures  = "%d of %d modules did not complete"
	MsgErrEntityFailures  = "%d entries failed"
	MsgErrNoSuchEnv       = "environment %q does not contain %q"
	MsgErrNoEnvironment   = "no environment given and the manifest declares %d"
	MsgErrInvalidOutput   = "invalid --output: %w"
	MsgWarnGitUnavailable = "git is unavailable, skipping repository setup"

	// Flag descriptions
	MsgFlagVerbose        = "Increase verbosity (-v INFO, -vv DEBUG, -vvv TRACE)"
	MsgFlagDryRun         = "Preview changes without executing them"
	MsgFlagSproutPath     = "Sprout root directory (default $SPROUT_PATH or the XDG data dir)"
	MsgFlagTrackingPath   = "Root that tracked symlinks live under (default $HOME)"
	MsgFlagConfig         = "Config file (default $XDG_CONFIG_HOME/sprout/config.toml)"
	MsgFlagOutput         = "Output format: text, yaml or json"
	MsgFlagAll            = "Select every declared module"
	MsgFlagWithDeps       = "Include the dependencies of the named modules"
	MsgFlagWithDependents = "Include the modules depending on the named modules"
	MsgFlagRebuild        = "Run modules even when they are up to date"
	MsgFlagJobs           = "Modules to run concurrently (default build.jobs)"
	MsgFlagInPlace        = "Write fingerprints to the lockfile"
	MsgFlagEmpty          = "Write an empty manifest instead of the commented sample"
	MsgFlagNoGit          = "Do not initialize a git repository"
	MsgFlagRecursive      = "Track a directory and everything below it"
	MsgFlagStatusAll      = "Also list up-to-date entries"
	MsgFlagForce          = "Replace regular files that are in the way"
	MsgFlagDiscover       = "Track entries under symlinks/ that are linked but missing from the lockfile"
	MsgFlagPin            = "Fill in missing sha256 digests of http and archive modules"
	MsgFlagMessage        = "Commit message"
)

// Long messages and examples, embedded from files
var (
	//go:embed msgs/root-long.txt
	msgRootLongRaw string
	MsgRootLong    = strings.TrimSpace(msgRootLongRaw)

	//go:embed msgs/init-long.txt
	msgInitLongRaw string
	MsgInitLong    = strings.TrimSpace(msgInitLongRaw)

	//go:embed msgs/init-example.txt
	msgInitExampleRaw string
	MsgInitExample    = strings.TrimRight(msgInitExampleRaw, "\n")

	//go:embed msgs/modules-long.txt
	msgModulesLongRaw string
	MsgModulesLong    = strings.TrimSpace(msgModulesLongRaw)

	//go:embed msgs/modules-run-example.txt
	msgModulesRunExampleRaw string
	MsgModulesRunExample    = strings.TrimRight(msgModulesRunExampleRaw, "\n")

	//go:embed msgs/modules-status-long.txt
	msgModulesStatusLongRaw string
	MsgModulesStatusLong    = strings.TrimSpace(msgModulesStatusLongRaw)

	//go:embed msgs/modules-hash-long.txt
	msgModulesHashLongRaw string
	MsgModulesHashLong    = strings.TrimSpace(msgModulesHashLongRaw)

	//go:embed msgs/modules-clean-long.txt
	msgModulesCleanLongRaw string
	MsgModulesCleanLong    = strings.TrimSpace(msgModulesCleanLongRaw)

	//go:embed msgs/symlinks-long.txt
	msgSymlinksLongRaw string
	MsgSymlinksLong    = strings.TrimSpace(msgSymlinksLongRaw)

	//go:embed msgs/symlinks-example.txt
	msgSymlinksExampleRaw string
	MsgSymlinksExample    = strings.TrimRight(msgSymlinksExampleRaw, "\n")

	//go:embed msgs/env-long.txt
	msgEnvLongRaw string
	MsgEnvLong    = strings.TrimSpace(msgEnvLongRaw)

	//go:embed msgs/manifest-long.txt
	msgManifestLongRaw string
	MsgManifestLong    = strings.TrimSpace(msgManifestLongRaw)

	//go:embed msgs/completion-long.txt
	msgCompletionLongRaw string
	MsgCompletionLong    = strings.TrimSpace(msgCompletionLongRaw)

	//go:embed msgs/manifest-template.txt
	MsgManifestTemplate string

	//go:embed msgs/usage-template.txt
	msgUsageTemplateRaw string
	MsgUsageTemplate    = strings.TrimSpace(msgUsageTemplateRaw) + "\n"
)
