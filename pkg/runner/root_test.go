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
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/praetorian-inc/fanout/pkg/config"
	"github.com/praetorian-inc/fanout/pkg/fanout"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSpawner struct {
	mu       sync.Mutex
	commands []string
	times    []time.Time
}

func (f *fakeSpawner) Spawn(_ context.Context, command string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, command)
	f.times = append(f.times, time.Now())
	return nil
}

type harness struct {
	stdout  bytes.Buffer
	stderr  bytes.Buffer
	spawner fakeSpawner
}

func (h *harness) run(kind launcherKind, args ...string) error {
	cmd := newLauncherCommand("launch", kind, &h.stdout, &h.stderr,
		func(cliConfig, config.Config) fanout.Spawner { return &h.spawner })
	cmd.SetArgs(args)
	return cmd.Execute()
}

func TestUsageOnMissingArguments(t *testing.T) {
	clientArgs := []string{"h", "1", "2", "100", "3", "5"}
	for n := 0; n < len(clientArgs); n++ {
		h := &harness{}
		err := h.run(clientLauncher, clientArgs[:n]...)

		var usageErr *fanout.UsageError
		require.ErrorAs(t, err, &usageErr, "client with %d args", n)
		assert.Equal(t,
			"usage: launch <host> <begin port> <end port> <conn count> <process count> <heartbeat interval>\n",
			h.stdout.String())
		assert.Empty(t, h.spawner.commands)
	}

	serverArgs := []string{"9000", "100", "4"}
	for n := 0; n < len(serverArgs); n++ {
		h := &harness{}
		err := h.run(serverLauncher, serverArgs[:n]...)

		var usageErr *fanout.UsageError
		require.ErrorAs(t, err, &usageErr, "server with %d args", n)
		assert.Equal(t, "usage: launch <begin port> <port count> <process count>\n", h.stdout.String())
		assert.Empty(t, h.spawner.commands)
	}
}

func TestServerLauncher(t *testing.T) {
	h := &harness{}
	require.NoError(t, h.run(serverLauncher, "9000", "100", "4"))

	assert.Equal(t, []string{
		"./1kw-svr 9000 9025",
		"./1kw-svr 9025 9050",
		"./1kw-svr 9050 9075",
		"./1kw-svr 9075 9100",
	}, h.spawner.commands)
}

func TestClientLauncher(t *testing.T) {
	h := &harness{}
	require.NoError(t, h.run(clientLauncher, "h", "1", "2", "100", "3", "5"))

	require.Len(t, h.spawner.commands, 3)
	for _, command := range h.spawner.commands {
		assert.Equal(t, "./1kw-cli h 1 2 33 5", command)
	}
	for i := 1; i < len(h.spawner.times); i++ {
		assert.GreaterOrEqual(t, h.spawner.times[i].Sub(h.spawner.times[i-1]), 500*time.Millisecond)
	}
	assert.Contains(t, h.stderr.String(), "1 connections not assigned to any worker")
}

func TestClientLauncherFlags(t *testing.T) {
	h := &harness{}
	err := h.run(clientLauncher, "--binary", "/opt/1kw-cli", "--interval", "0s",
		"example.com", "20000", "20100", "10", "2", "0")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"/opt/1kw-cli example.com 20000 20100 5 0",
		"/opt/1kw-cli example.com 20000 20100 5 0",
	}, h.spawner.commands)
}

func TestNegativeProcessCountSpawnsNothing(t *testing.T) {
	h := &harness{}
	require.NoError(t, h.run(serverLauncher, "9000", "100", "-4"))
	assert.Empty(t, h.spawner.commands)
	assert.Contains(t, h.stderr.String(), "no workers will be spawned")
}

func TestNonNumericArgument(t *testing.T) {
	h := &harness{}
	err := h.run(serverLauncher, "9000", "lots", "4")

	var argErr *fanout.ArgumentError
	require.ErrorAs(t, err, &argErr)
	assert.Equal(t, "port count", argErr.Name)
	assert.Empty(t, h.stdout.String())
	assert.Empty(t, h.spawner.commands)
}

func TestDryRunReports(t *testing.T) {
	h := &harness{}
	require.NoError(t, h.run(serverLauncher, "--dry-run", "9000", "100", "4"))
	assert.Empty(t, h.spawner.commands)
	assert.Equal(t,
		"0: ./1kw-svr 9000 9025\n1: ./1kw-svr 9025 9050\n2: ./1kw-svr 9050 9075\n3: ./1kw-svr 9075 9100\n",
		h.stdout.String())

	h = &harness{}
	require.NoError(t, h.run(clientLauncher, "--dry-run", "--json", "h", "1", "2", "100", "3", "5"))
	lines := strings.Split(strings.TrimSpace(h.stdout.String()), "\n")
	require.Len(t, lines, 3)
	var entry dataEntry
	require.NoError(t, json.Unmarshal([]byte(lines[2]), &entry))
	assert.Equal(t, dataEntry{
		Worker:    2,
		Command:   "./1kw-cli h 1 2 33 5",
		Host:      "h",
		BeginPort: 1,
		EndPort:   2,
		Conns:     33,
		Heartbeat: 5,
	}, entry)

	h = &harness{}
	require.NoError(t, h.run(serverLauncher, "--dry-run", "--csv", "9000", "10", "2"))
	assert.Equal(t,
		"Worker,Host,BeginPort,EndPort,Conns,Heartbeat,Command\n"+
			"0,,9000,9005,0,0,./1kw-svr 9000 9005\n"+
			"1,,9005,9010,0,0,./1kw-svr 9005 9010\n",
		h.stdout.String())
}

func TestDryRunOutputFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "plan.txt")
	h := &harness{}
	require.NoError(t, h.run(serverLauncher, "-n", "-o", out, "9000", "2", "2"))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "0: ./1kw-svr 9000 9001\n1: ./1kw-svr 9001 9002\n", string(data))
	assert.Empty(t, h.stdout.String())
}

func TestConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "fanout.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("server:\n  binary: /cfg/1kw-svr\n"), 0o600))

	h := &harness{}
	require.NoError(t, h.run(serverLauncher, "--config", cfgPath, "9000", "2", "1"))
	assert.Equal(t, []string{"/cfg/1kw-svr 9000 9002"}, h.spawner.commands)

	t.Setenv(config.EnvServerBinary, "/env/1kw-svr")
	h = &harness{}
	require.NoError(t, h.run(serverLauncher, "--config", cfgPath, "9000", "2", "1"))
	assert.Equal(t, []string{"/env/1kw-svr 9000 9002"}, h.spawner.commands)
}

func TestCheckConfig(t *testing.T) {
	assert.Error(t, checkConfig(cliConfig{dryRun: true, outputJSON: true, outputCSV: true}))
	assert.Error(t, checkConfig(cliConfig{outputJSON: true}))
	assert.Error(t, checkConfig(cliConfig{useExec: true, shell: "/bin/bash"}))
	assert.NoError(t, checkConfig(cliConfig{dryRun: true, outputCSV: true}))
	assert.NoError(t, checkConfig(cliConfig{}))
}

func TestDefaultSpawner(t *testing.T) {
	cfg := config.Default()
	cfg.Shell = "/bin/bash"

	shell, ok := defaultSpawner(cliConfig{}, cfg).(*fanout.ShellSpawner)
	require.True(t, ok)
	assert.Equal(t, "/bin/bash", shell.Shell)

	_, ok = defaultSpawner(cliConfig{useExec: true}, cfg).(*fanout.ExecSpawner)
	assert.True(t, ok)
}
