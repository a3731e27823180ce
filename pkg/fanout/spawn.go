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

package fanout

import (
	"context"
	"errors"
	"os"
	"os/exec"

	"github.com/google/shlex"
)

const DefaultShell = "/bin/sh"

// ShellSpawner hands "<command> &" to a shell, so the worker is backgrounded
// by the shell and the call returns as soon as the shell exits.
//
// Stdout and Stderr are inherited by the worker. They must be files: exec
// would otherwise wait for the backgrounded worker to close its pipes.
type ShellSpawner struct {
	Shell  string
	Stdout *os.File
	Stderr *os.File
}

func (s *ShellSpawner) Spawn(ctx context.Context, command string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	shell := s.Shell
	if shell == "" {
		shell = DefaultShell
	}

	cmd := exec.Command(shell, "-c", command+" &")
	cmd.Stdout = orStd(s.Stdout, os.Stdout)
	cmd.Stderr = orStd(s.Stderr, os.Stderr)
	if err := cmd.Run(); err != nil {
		return &SpawnError{Command: command, WrappedError: err}
	}
	return nil
}

// ExecSpawner starts the worker binary directly, without a shell, in a
// process group of its own, and releases it immediately.
type ExecSpawner struct {
	Stdout *os.File
	Stderr *os.File
}

func (s *ExecSpawner) Spawn(ctx context.Context, command string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	argv, err := shlex.Split(command)
	if err != nil {
		return &SpawnError{Command: command, WrappedError: err}
	}
	if len(argv) == 0 {
		return &SpawnError{Command: command, WrappedError: errors.New("empty command")}
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdout = orStd(s.Stdout, os.Stdout)
	cmd.Stderr = orStd(s.Stderr, os.Stderr)
	detach(cmd)
	if err := cmd.Start(); err != nil {
		return &SpawnError{Command: command, WrappedError: err}
	}
	if err := cmd.Process.Release(); err != nil {
		return &SpawnError{Command: command, WrappedError: err}
	}
	return nil
}

func orStd(f, std *os.File) *os.File {
	if f != nil {
		return f
	}
	return std
}
