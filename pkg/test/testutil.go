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

package test

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/praetorian-inc/fanout/pkg/kwclient"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type Testcase struct {
	// Testcase description
	Description string

	// Container port the echo service listens on
	Port int

	// Client settings; Host and port range are filled in from the container
	Client kwclient.Config

	// Function used to determine whether testcase succeeded or not
	Expected func(kwclient.Stats) bool

	// Docker containers to run
	RunConfig dockertest.RunOptions
}

// EchoContainer runs socat as a TCP echo service on port.
func EchoContainer(port int) dockertest.RunOptions {
	p := strconv.Itoa(port)
	return dockertest.RunOptions{
		Repository:   "alpine/socat",
		Tag:          "latest",
		Cmd:          []string{"TCP-LISTEN:" + p + ",fork,reuseaddr", "EXEC:cat"},
		ExposedPorts: []string{p + "/tcp"},
	}
}

var dockerPool *dockertest.Pool

// RunTest starts the testcase container and runs a client worker against it
// until Expected holds. It skips when no docker daemon is reachable.
func RunTest(t *testing.T, tc Testcase) error {
	var err error
	if dockerPool == nil {
		pool, poolErr := dockertest.NewPool("")
		if poolErr != nil {
			t.Skipf("could not connect to docker: %s", poolErr)
		}
		if pingErr := pool.Client.Ping(); pingErr != nil {
			t.Skipf("could not connect to docker: %s", pingErr)
		}
		dockerPool = pool
	}
	resource, err := dockerPool.RunWithOptions(&tc.RunConfig)
	require.NoError(t, err, "could not start resource")
	defer dockerPool.Purge(resource) //nolint:errcheck

	targetAddr := resource.GetHostPort(fmt.Sprintf("%d/tcp", tc.Port))
	fmt.Printf("trying to connect to: %s\n", targetAddr)
	err = dockerPool.Retry(func() error {
		conn, dialErr := net.DialTimeout("tcp", targetAddr, time.Second)
		if dialErr != nil {
			return dialErr
		}
		conn.Close()
		return nil
	})
	require.NoError(t, err, "failed to connect to test container")

	host, portStr, err := net.SplitHostPort(targetAddr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	config := tc.Client
	config.Host = host
	config.BeginPort = port
	config.EndPort = port + 1

	log := logrus.New()
	log.SetOutput(io.Discard)
	client, err := kwclient.New(config, log)
	require.NoError(t, err, "failed to create client")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- client.Run(ctx) }()

	require.Eventually(t, func() bool {
		return tc.Expected(client.Stats())
	}, 30*time.Second, 100*time.Millisecond, "failed client testcase")

	cancel()
	return <-done
}
