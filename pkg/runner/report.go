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
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
)

type outputFormat string

const (
	JSON    outputFormat = "JSON"
	CSV     outputFormat = "CSV"
	DEFAULT outputFormat = "DEFAULT"
)

type dataEntry struct {
	Worker    int    `json:"worker"`
	Command   string `json:"command"`
	Host      string `json:"host,omitempty"`
	BeginPort int    `json:"begin_port"`
	EndPort   int    `json:"end_port"`
	Conns     int    `json:"conns,omitempty"`
	Heartbeat int    `json:"heartbeat,omitempty"`
}

// Report writes the planned spawns to stdout, or to config.outputFile when set.
func Report(stdout io.Writer, config cliConfig, entries []dataEntry) error {
	var out = stdout
	var outputFormat = DEFAULT

	if len(config.outputFile) > 0 {
		writeFile, err := os.Create(config.outputFile)
		if err != nil {
			return err
		}
		defer writeFile.Close()
		out = writeFile
	}

	if config.outputJSON {
		outputFormat = JSON
	} else if config.outputCSV {
		outputFormat = CSV
	}

	switch outputFormat {
	case JSON:
		encoder := json.NewEncoder(out)
		for _, entry := range entries {
			if err := encoder.Encode(entry); err != nil {
				return err
			}
		}
	case CSV:
		csvWriter := csv.NewWriter(out)
		err := csvWriter.Write([]string{"Worker", "Host", "BeginPort", "EndPort", "Conns", "Heartbeat", "Command"})
		if err != nil {
			return err
		}
		for _, entry := range entries {
			err = csvWriter.Write([]string{
				strconv.Itoa(entry.Worker),
				entry.Host,
				strconv.Itoa(entry.BeginPort),
				strconv.Itoa(entry.EndPort),
				strconv.Itoa(entry.Conns),
				strconv.Itoa(entry.Heartbeat),
				entry.Command,
			})
			if err != nil {
				return err
			}
		}
		csvWriter.Flush()
		return csvWriter.Error()
	default:
		for _, entry := range entries {
			if _, err := fmt.Fprintf(out, "%d: %s\n", entry.Worker, entry.Command); err != nil {
				return err
			}
		}
	}
	return nil
}
