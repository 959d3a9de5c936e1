// Copyright 2022 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command sld links relocatable objects into a Linux ELF64 executable or
// a Windows PE32+ image.
package main

import (
	"bytes"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/secwest/small-c-x64-arm/internal/diag"
	"github.com/secwest/small-c-x64-arm/internal/linker"
	"github.com/secwest/small-c-x64-arm/internal/objfmt"
)

var verbose bool

var command = &cobra.Command{
	Use:  "sld object... -o output",
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		output, _ := cmd.PersistentFlags().GetString("output")
		if output == "" {
			diag.Die(fmt.Errorf("sld: -o output is required"))
		}
		targetOS, _ := cmd.PersistentFlags().GetString("target-os")

		var inputs []linker.Input
		for _, name := range args {
			obj, err := readObject(name)
			if err != nil {
				diag.Die(err)
			}
			if verbose {
				fmt.Fprintf(os.Stderr, "linking %s\n", name)
			}
			inputs = append(inputs, linker.Input{Name: name, Object: obj})
		}

		img, err := linker.Link(inputs, linker.Options{TargetOS: targetOS})
		if err != nil {
			diag.Die(err)
		}

		perm := os.FileMode(0644)
		if targetOS != "windows" {
			perm = 0755
		}
		if err := os.WriteFile(output, img, perm); err != nil {
			diag.Die(err)
		}
	},
}

// readObject sniffs the object's magic to pick SAS or ELF decoding: this
// linker's own assembler only ever produces one of the two.
func readObject(name string) (*objfmt.Object, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, err
	}
	switch {
	case bytes.HasPrefix(data, []byte("SAS\x00")):
		return objfmt.ReadSAS(bytes.NewReader(data))
	case len(data) >= 4 && bytes.Equal(data[:4], []byte("\x7fELF")):
		return objfmt.ReadELF(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("sld: %s: unrecognized object format", name)
	}
}

func init() {
	command.PersistentFlags().StringP("output", "o", "", "output executable path")
	command.PersistentFlags().String("target-os", runtime.GOOS, "target operating system (linux, windows)")
	command.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "if set, increase verbosity level")
}

func main() {
	if err := command.Execute(); err != nil {
		diag.Die(err)
	}
}
