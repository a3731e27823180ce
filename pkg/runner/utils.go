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
	"errors"
	"fmt"

	"github.com/praetorian-inc/fanout/pkg/config"
	"github.com/praetorian-inc/fanout/pkg/fanout"
)

func checkConfig(config cliConfig) error {
	if config.outputJSON && config.outputCSV {
		return errors.New("Only one output format can be specified (JSON or CSV)")
	}
	if !config.dryRun && (config.outputJSON || config.outputCSV || len(config.outputFile) > 0) {
		return errors.New("Plan output options require --dry-run")
	}
	if config.useExec && len(config.shell) > 0 {
		return errors.New("--shell has no effect with --exec")
	}
	return nil
}

// resolveConfig layers defaults, config file, environment and flags.
func resolveConfig(cli cliConfig, intervalSet bool) (config.Config, error) {
	cfg := config.Default()

	if err := config.LoadEnv(cli.envFile); err != nil {
		return cfg, err
	}
	if len(cli.configFile) > 0 {
		fileConfig, err := config.LoadFile(cli.configFile)
		if err != nil {
			return cfg, fmt.Errorf("Failed loading config (%w)", err)
		}
		if err := fileConfig.Apply(&cfg); err != nil {
			return cfg, fmt.Errorf("Failed applying config (%w)", err)
		}
	}
	if err := config.ApplyEnv(&cfg, nil); err != nil {
		return cfg, err
	}

	if len(cli.shell) > 0 {
		cfg.Shell = cli.shell
	}
	if cli.verbose {
		cfg.LogLevel = "debug"
	}
	// flags only know which launcher they were given to, so they touch both
	if len(cli.binary) > 0 {
		cfg.Client.Binary = cli.binary
		cfg.Server.Binary = cli.binary
	}
	if intervalSet {
		cfg.Client.Interval = cli.interval
		cfg.Server.Interval = cli.interval
	}

	return cfg, cfg.Validate()
}

func launcherSettings(kind launcherKind, cfg config.Config) config.Launcher {
	if kind == serverLauncher {
		return cfg.Server
	}
	return cfg.Client
}

// plan is the parsed launcher input, ready to be turned into commands.
type plan struct {
	kind      launcherKind
	client    fanout.ClientArgs
	server    fanout.ServerArgs
	processes int
	remainder int
	unit      string
}

func buildPlan(kind launcherKind, args []string) (plan, error) {
	p := plan{kind: kind}
	switch kind {
	case clientLauncher:
		client, err := fanout.ParseClientArgs(args)
		if err != nil {
			return p, err
		}
		p.client = client
		p.processes = client.Processes
		p.remainder = fanout.Remainder(client.ConnCount, client.Processes)
		p.unit = "connections"
	case serverLauncher:
		server, err := fanout.ParseServerArgs(args)
		if err != nil {
			return p, err
		}
		p.server = server
		p.processes = server.Processes
		p.remainder = fanout.Remainder(server.PortCount, server.Processes)
		p.unit = "ports"
	default:
		return p, fmt.Errorf("unknown launcher %d", kind)
	}
	return p, nil
}

func (p plan) commands(binary string) []string {
	if p.kind == serverLauncher {
		return p.server.Commands(binary)
	}
	return p.client.Commands(binary)
}

func (p plan) entries(commands []string) []dataEntry {
	entries := make([]dataEntry, 0, len(commands))
	ranges := p.server.PortRanges()
	for i, command := range commands {
		entry := dataEntry{Worker: i, Command: command}
		if p.kind == serverLauncher {
			entry.BeginPort = ranges[i].Begin
			entry.EndPort = ranges[i].End
		} else {
			entry.Host = p.client.Host
			entry.BeginPort = p.client.BeginPort
			entry.EndPort = p.client.EndPort
			entry.Conns = p.client.ConnsPerProcess()
			entry.Heartbeat = p.client.Heartbeat
		}
		entries = append(entries, entry)
	}
	return entries
}
