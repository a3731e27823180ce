// Copyright 2022 Praetorian Security, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/praetorian-inc/fanout/pkg/config"
	"github.com/praetorian-inc/fanout/pkg/fanout"
	"github.com/praetorian-inc/fanout/pkg/logging"
	"github.com/spf13/cobra"
)

const (
	clientUsage = "usage: %s <host> <begin port> <end port> <conn count> <process count> <heartbeat interval>\n"
	serverUsage = "usage: %s <begin port> <port count> <process count>\n"
)

type spawnerFactory func(cliConfig, config.Config) fanout.Spawner

type launcherCommand struct {
	prog       string
	kind       launcherKind
	config     cliConfig
	stdout     io.Writer
	stderr     io.Writer
	newSpawner spawnerFactory
}

func defaultSpawner(cli cliConfig, cfg config.Config) fanout.Spawner {
	if cli.useExec {
		return &fanout.ExecSpawner{}
	}
	return &fanout.ShellSpawner{Shell: cfg.Shell}
}

func newLauncherCommand(prog string, kind launcherKind, stdout, stderr io.Writer, newSpawner spawnerFactory) *cobra.Command {
	lc := &launcherCommand{
		prog:       prog,
		kind:       kind,
		stdout:     stdout,
		stderr:     stderr,
		newSpawner: newSpawner,
	}

	short := "Spawn 1kw client workers across a connection count"
	if kind == serverLauncher {
		short = "Spawn 1kw server workers across a port range"
	}

	cmd := &cobra.Command{
		Use:           prog + " [flags] " + lc.positional(),
		Short:         short,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return lc.run(cmd.Context(), cmd, args)
		},
	}
	cmd.CompletionOptions.DisableDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	// negative numbers after the first positional argument are not flags
	cmd.Flags().SetInterspersed(false)

	cmd.Flags().StringVarP(&lc.config.configFile, "config", "c", "", "YAML or JSON config file")
	cmd.Flags().StringVarP(&lc.config.envFile, "env-file", "", "", "dotenv file (default .env when present)")
	cmd.Flags().StringVarP(&lc.config.binary, "binary", "b", "", "worker binary to spawn")
	cmd.Flags().DurationVarP(&lc.config.interval, "interval", "i", 0, "pause between spawn calls")
	cmd.Flags().StringVarP(&lc.config.shell, "shell", "", "", "shell used to background workers")
	cmd.Flags().BoolVarP(&lc.config.useExec, "exec", "e", false, "start workers directly instead of through a shell")
	cmd.Flags().BoolVarP(&lc.config.dryRun, "dry-run", "n", false, "print the planned commands without spawning")
	cmd.Flags().StringVarP(&lc.config.outputFile, "output", "o", "", "write the plan to a file")
	cmd.Flags().BoolVarP(&lc.config.outputJSON, "json", "", false, "plan output format in json")
	cmd.Flags().BoolVarP(&lc.config.outputCSV, "csv", "", false, "plan output format in csv")
	cmd.Flags().BoolVarP(&lc.config.verbose, "verbose", "v", false, "verbose mode")
	return cmd
}

func (lc *launcherCommand) positional() string {
	if lc.kind == serverLauncher {
		return "<begin port> <port count> <process count>"
	}
	return "<host> <begin port> <end port> <conn count> <process count> <heartbeat interval>"
}

func (lc *launcherCommand) printUsage() {
	usage := clientUsage
	if lc.kind == serverLauncher {
		usage = serverUsage
	}
	fmt.Fprintf(lc.stdout, usage, lc.prog)
}

func (lc *launcherCommand) run(ctx context.Context, cmd *cobra.Command, args []string) error {
	launch, err := buildPlan(lc.kind, args)
	if err != nil {
		var usageErr *fanout.UsageError
		if errors.As(err, &usageErr) {
			lc.printUsage()
		}
		return err
	}

	if configErr := checkConfig(lc.config); configErr != nil {
		return configErr
	}
	cfg, err := resolveConfig(lc.config, cmd.Flags().Changed("interval"))
	if err != nil {
		return err
	}

	log, err := logging.New(lc.stderr, cfg.LogLevel)
	if err != nil {
		return err
	}
	if launch.processes <= 0 {
		log.Warnf("process count %d, no workers will be spawned", launch.processes)
	}
	if remainder := launch.remainder; remainder > 0 {
		log.Warnf("%d %s not assigned to any worker (%d does not divide evenly)",
			remainder, launch.unit, launch.processes)
	}

	settings := launcherSettings(lc.kind, cfg)
	commands := launch.commands(settings.Binary)

	if lc.config.dryRun {
		return Report(lc.stdout, lc.config, launch.entries(commands))
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	launcher := &fanout.Launcher{
		Spawner:  lc.newSpawner(lc.config, cfg),
		Interval: settings.Interval,
		Log:      log.WithField("launcher", lc.kind.String()),
	}
	if _, err := launcher.Launch(ctx, commands); err != nil {
		return fmt.Errorf("Launch interrupted (%w)", err)
	}
	return nil
}

func execute(kind launcherKind) {
	cmd := newLauncherCommand(os.Args[0], kind, os.Stdout, os.Stderr, defaultSpawner)
	if err := cmd.Execute(); err != nil {
		var usageErr *fanout.UsageError
		if !errors.As(err, &usageErr) {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

// ExecuteClientLauncher runs the client launcher against os.Args.
func ExecuteClientLauncher() {
	execute(clientLauncher)
}

// ExecuteServerLauncher runs the server launcher against os.Args.
func ExecuteServerLauncher() {
	execute(serverLauncher)
}
