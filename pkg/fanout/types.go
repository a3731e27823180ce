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
	"fmt"
)

const (
	ClientArgCount = 6
	ServerArgCount = 3
)

// ClientArgs are the positional arguments of the client launcher.
type ClientArgs struct {
	Host      string
	BeginPort int
	EndPort   int
	ConnCount int

	// Number of worker processes to spawn
	Processes int

	// Seconds between heartbeats, forwarded to the worker untouched
	Heartbeat int
}

// ServerArgs are the positional arguments of the server launcher.
type ServerArgs struct {
	BeginPort int
	PortCount int
	Processes int
}

// PortRange is the half-open range [Begin, End).
type PortRange struct {
	Begin int
	End   int
}

func (r PortRange) Size() int {
	return r.End - r.Begin
}

func (r PortRange) String() string {
	return fmt.Sprintf("[%d,%d)", r.Begin, r.End)
}

// Spawner starts a single worker from a command line. Implementations must
// not wait for the worker to exit.
type Spawner interface {
	Spawn(ctx context.Context, command string) error
}

// Result counts the spawn calls issued by a Launcher.
type Result struct {
	Issued int
	Failed int
}
