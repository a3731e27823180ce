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
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultClientInterval = 500 * time.Millisecond
	DefaultServerInterval = time.Duration(0)
)

// Launcher issues one spawn call per command, pausing Interval between
// consecutive calls. It never tracks the spawned workers.
type Launcher struct {
	Spawner  Spawner
	Interval time.Duration
	Log      logrus.FieldLogger
}

// Launch spawns every command in order. A failed spawn is logged and counted
// but does not stop the loop. Cancelling ctx stops the loop before the next
// spawn and returns ctx.Err().
func (l *Launcher) Launch(ctx context.Context, commands []string) (Result, error) {
	log := l.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	var result Result
	for i, command := range commands {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		log.WithField("worker", i).Debugf("spawning %s", command)
		result.Issued++
		if err := l.Spawner.Spawn(ctx, command); err != nil {
			result.Failed++
			log.WithField("worker", i).Warn(err)
		}

		if i < len(commands)-1 && l.Interval > 0 {
			timer := time.NewTimer(l.Interval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return result, ctx.Err()
			case <-timer.C:
			}
		}
	}

	log.WithFields(logrus.Fields{
		"issued": result.Issued,
		"failed": result.Failed,
	}).Info("launch finished")
	return result, nil
}
