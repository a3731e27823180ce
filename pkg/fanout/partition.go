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
	"fmt"
	"strconv"
)

// PerProcess splits total evenly across processes. The remainder is not
// assigned to any process. A non-positive process count yields zero.
func PerProcess(total, processes int) int {
	if processes <= 0 {
		return 0
	}
	return total / processes
}

// Remainder reports the units PerProcess leaves unassigned.
func Remainder(total, processes int) int {
	if processes <= 0 {
		return 0
	}
	return total - PerProcess(total, processes)*processes
}

// ConnsPerProcess is the connection count handed to every client worker.
func (a ClientArgs) ConnsPerProcess() int {
	return PerProcess(a.ConnCount, a.Processes)
}

// PortsPerProcess is the width of every server worker's port range.
func (a ServerArgs) PortsPerProcess() int {
	return PerProcess(a.PortCount, a.Processes)
}

// PortRanges returns one contiguous port range per server worker.
func (a ServerArgs) PortRanges() []PortRange {
	if a.Processes <= 0 {
		return nil
	}
	per := a.PortsPerProcess()
	ranges := make([]PortRange, 0, a.Processes)
	for i := 0; i < a.Processes; i++ {
		ranges = append(ranges, PortRange{
			Begin: a.BeginPort + i*per,
			End:   a.BeginPort + (i+1)*per,
		})
	}
	return ranges
}

// Commands returns the command line of every client worker. All workers get
// the same host, port range and heartbeat.
func (a ClientArgs) Commands(binary string) []string {
	if a.Processes <= 0 {
		return nil
	}
	command := fmt.Sprintf("%s %s %d %d %d %d",
		binary, a.Host, a.BeginPort, a.EndPort, a.ConnsPerProcess(), a.Heartbeat)
	commands := make([]string, a.Processes)
	for i := range commands {
		commands[i] = command
	}
	return commands
}

// Commands returns the command line of every server worker.
func (a ServerArgs) Commands(binary string) []string {
	ranges := a.PortRanges()
	commands := make([]string, 0, len(ranges))
	for _, r := range ranges {
		commands = append(commands, fmt.Sprintf("%s %d %d", binary, r.Begin, r.End))
	}
	return commands
}

// ParseClientArgs parses <host> <begin port> <end port> <conn count>
// <process count> <heartbeat interval>. Extra arguments are ignored.
func ParseClientArgs(args []string) (ClientArgs, error) {
	if len(args) < ClientArgCount {
		return ClientArgs{}, &UsageError{Usage: "not enough arguments"}
	}
	ints, err := parseInts(args[1:ClientArgCount],
		"begin port", "end port", "conn count", "process count", "heartbeat interval")
	if err != nil {
		return ClientArgs{}, err
	}
	return ClientArgs{
		Host:      args[0],
		BeginPort: ints[0],
		EndPort:   ints[1],
		ConnCount: ints[2],
		Processes: ints[3],
		Heartbeat: ints[4],
	}, nil
}

// ParseServerArgs parses <begin port> <port count> <process count>.
func ParseServerArgs(args []string) (ServerArgs, error) {
	if len(args) < ServerArgCount {
		return ServerArgs{}, &UsageError{Usage: "not enough arguments"}
	}
	ints, err := parseInts(args[:ServerArgCount], "begin port", "port count", "process count")
	if err != nil {
		return ServerArgs{}, err
	}
	return ServerArgs{
		BeginPort: ints[0],
		PortCount: ints[1],
		Processes: ints[2],
	}, nil
}

func parseInts(values []string, names ...string) ([]int, error) {
	ints := make([]int, len(values))
	for i, value := range values {
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, &ArgumentError{Name: names[i], Value: value, WrappedError: err}
		}
		ints[i] = n
	}
	return ints, nil
}
