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
	"strconv"
	"syscall"
	"time"

	"github.com/praetorian-inc/fanout/pkg/fanout"
	"github.com/praetorian-inc/fanout/pkg/kwclient"
	"github.com/praetorian-inc/fanout/pkg/kwserver"
	"github.com/praetorian-inc/fanout/pkg/logging"
	"github.com/spf13/cobra"
)

const (
	clientWorkerUsage = "usage: %s <host> <begin port> <end port> <conn count> [heartbeat interval] [send size]\n"
	serverWorkerUsage = "usage: %s <begin port> <end port>\n"
)

type workerConfig struct {
	host        string
	connectRate int
	verbose     bool
}

func newWorkerCommand(prog string, kind launcherKind, stdout, stderr io.Writer) *cobra.Command {
	var config workerConfig

	cmd := &cobra.Command{
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			level := "info"
			if config.verbose {
				level = "debug"
			}
			log := logging.Must(stderr, level)

			if kind == serverLauncher {
				if len(args) <= 1 {
					fmt.Fprintf(stdout, serverWorkerUsage, prog)
					return &fanout.UsageError{Usage: "not enough arguments"}
				}
				server, err := parseServerWorker(config, args)
				if err != nil {
					return err
				}
				s, err := kwserver.New(server, log)
				if err != nil {
					return err
				}
				return s.Run(ctx)
			}

			if len(args) < 4 {
				fmt.Fprintf(stdout, clientWorkerUsage, prog)
				return &fanout.UsageError{Usage: "not enough arguments"}
			}
			client, err := parseClientWorker(config, args)
			if err != nil {
				return err
			}
			c, err := kwclient.New(client, log)
			if err != nil {
				return err
			}
			return c.Run(ctx)
		},
	}
	if kind == serverLauncher {
		cmd.Use = prog + " [flags] <begin port> <end port>"
		cmd.Short = "Echo server listening on a port range"
		cmd.Flags().StringVarP(&config.host, "host", "", "", "listen address (default all interfaces)")
	} else {
		cmd.Use = prog + " [flags] <host> <begin port> <end port> <conn count> [heartbeat interval] [send size]"
		cmd.Short = "Hold many TCP connections against a port range"
		cmd.Flags().IntVarP(&config.connectRate, "connect-rate", "r", 0, "connections dialed per second (0 for no limit)")
	}
	cmd.CompletionOptions.DisableDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.Flags().SetInterspersed(false)
	cmd.Flags().BoolVarP(&config.verbose, "verbose", "v", false, "verbose mode")
	return cmd
}

func atoi(name, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, &fanout.ArgumentError{Name: name, Value: value, WrappedError: err}
	}
	return n, nil
}

func parseClientWorker(config workerConfig, args []string) (kwclient.Config, error) {
	names := []string{"begin port", "end port", "conn count", "heartbeat interval", "send size"}
	values := make([]int, len(names))
	for i, name := range names {
		if i+1 >= len(args) {
			break
		}
		n, err := atoi(name, args[i+1])
		if err != nil {
			return kwclient.Config{}, err
		}
		values[i] = n
	}
	return kwclient.Config{
		Host:              args[0],
		BeginPort:         values[0],
		EndPort:           values[1],
		Conns:             values[2],
		HeartbeatInterval: time.Duration(values[3]) * time.Second,
		SendSize:          values[4],
		ConnectRate:       config.connectRate,
	}, nil
}

func parseServerWorker(config workerConfig, args []string) (kwserver.Config, error) {
	begin, err := atoi("begin port", args[0])
	if err != nil {
		return kwserver.Config{}, err
	}
	end, err := atoi("end port", args[1])
	if err != nil {
		return kwserver.Config{}, err
	}
	return kwserver.Config{Host: config.host, BeginPort: begin, EndPort: end}, nil
}

func executeWorker(kind launcherKind) {
	cmd := newWorkerCommand(os.Args[0], kind, os.Stdout, os.Stderr)
	if err := cmd.Execute(); err != nil {
		var usageErr *fanout.UsageError
		if !errors.As(err, &usageErr) {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

// ExecuteClientWorker runs the 1kw client workload against os.Args.
func ExecuteClientWorker() {
	executeWorker(clientLauncher)
}

// ExecuteServerWorker runs the 1kw server workload against os.Args.
func ExecuteServerWorker() {
	executeWorker(serverLauncher)
}
