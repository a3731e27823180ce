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
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSpawner struct {
	mu       sync.Mutex
	commands []string
	times    []time.Time
	fail     map[int]bool
}

func (r *recordingSpawner) Spawn(_ context.Context, command string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := len(r.commands)
	r.commands = append(r.commands, command)
	r.times = append(r.times, time.Now())
	if r.fail[idx] {
		return &SpawnError{Command: command, WrappedError: errors.New("exec format error")}
	}
	return nil
}

func quietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestLaunchServerNoPause(t *testing.T) {
	spawner := &recordingSpawner{}
	l := &Launcher{Spawner: spawner, Interval: DefaultServerInterval, Log: quietLogger()}

	args := ServerArgs{BeginPort: 9000, PortCount: 100, Processes: 4}
	result, err := l.Launch(context.Background(), args.Commands("./1kw-svr"))
	require.NoError(t, err)

	assert.Equal(t, Result{Issued: 4, Failed: 0}, result)
	assert.Equal(t, args.Commands("./1kw-svr"), spawner.commands)
}

func TestLaunchClientStaggered(t *testing.T) {
	spawner := &recordingSpawner{}
	l := &Launcher{Spawner: spawner, Interval: DefaultClientInterval, Log: quietLogger()}

	args := ClientArgs{Host: "h", BeginPort: 1, EndPort: 2, ConnCount: 100, Processes: 3, Heartbeat: 5}
	result, err := l.Launch(context.Background(), args.Commands("./1kw-cli"))
	require.NoError(t, err)

	assert.Equal(t, 3, result.Issued)
	require.Len(t, spawner.times, 3)
	for i := 1; i < len(spawner.times); i++ {
		gap := spawner.times[i].Sub(spawner.times[i-1])
		assert.GreaterOrEqual(t, gap, 500*time.Millisecond, "gap before spawn %d", i)
	}
	for _, command := range spawner.commands {
		assert.Equal(t, "./1kw-cli h 1 2 33 5", command)
	}
}

func TestLaunchContinuesAfterFailure(t *testing.T) {
	spawner := &recordingSpawner{fail: map[int]bool{1: true}}
	l := &Launcher{Spawner: spawner, Log: quietLogger()}

	result, err := l.Launch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, Result{Issued: 3, Failed: 1}, result)
	assert.Equal(t, []string{"a", "b", "c"}, spawner.commands)
}

func TestLaunchNothing(t *testing.T) {
	spawner := &recordingSpawner{}
	l := &Launcher{Spawner: spawner, Interval: time.Hour, Log: quietLogger()}

	result, err := l.Launch(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, result.Issued)
	assert.Empty(t, spawner.commands)
}

func TestLaunchCancelled(t *testing.T) {
	spawner := &recordingSpawner{}
	l := &Launcher{Spawner: spawner, Interval: time.Hour, Log: quietLogger()}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	result, err := l.Launch(ctx, []string{"a", "b"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, result.Issued)
	assert.Equal(t, []string{"a"}, spawner.commands)
}
