package runner

import "time"

type cliConfig struct {
	configFile string
	envFile    string
	binary     string
	interval   time.Duration
	shell      string
	useExec    bool
	dryRun     bool
	outputFile string
	outputJSON bool
	outputCSV  bool
	verbose    bool
}

type launcherKind int

const (
	clientLauncher launcherKind = iota + 1
	serverLauncher
)

func (k launcherKind) String() string {
	switch k {
	case clientLauncher:
		return "client"
	case serverLauncher:
		return "server"
	default:
		return "unknown"
	}
}
