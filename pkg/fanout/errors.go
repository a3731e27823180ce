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

import "fmt"

type UsageError struct {
	Usage string
}

type ArgumentError struct {
	Name         string
	Value        string
	WrappedError error
}

type SpawnError struct {
	Command      string
	WrappedError error
}

func (e *UsageError) Error() string {
	return e.Usage
}

func (e *ArgumentError) Error() string {
	errString := fmt.Sprintf("invalid %s %q", e.Name, e.Value)
	if e.WrappedError != nil {
		errString = fmt.Sprintf("%s (Error: %s)", errString, e.WrappedError.Error())
	}
	return errString
}

func (e *ArgumentError) Unwrap() error {
	return e.WrappedError
}

func (e *SpawnError) Error() string {
	errString := fmt.Sprintf("failed to spawn %q", e.Command)
	if e.WrappedError != nil {
		errString = fmt.Sprintf("%s (Error: %s)", errString, e.WrappedError.Error())
	}
	return errString
}

func (e *SpawnError) Unwrap() error {
	return e.WrappedError
}
