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

// Command sas assembles target assembly into a relocatable object file,
// written either as the simplified SAS format or as an ELF64 ET_REL.
package main

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/secwest/small-c-x64-arm/internal/assembler"
	"github.com/secwest/small-c-x64-arm/internal/diag"
	"github.com/secwest/small-c-x64-arm/internal/objfmt"
)

var verbose bool

var command = &cobra.Command{
	Use:  "sas source.s [-o output.o]",
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		target, _ := cmd.PersistentFlags().GetString("target")
		arch, err := parseArch(target)
		if err != nil {
			diag.Die(err)
		}

		src, err := os.ReadFile(args[0])
		if err != nil {
			diag.Die(err)
		}
		if verbose {
			fmt.Fprintf(os.Stderr, "assembling %s for %s\n", args[0], target)
		}

		a := assembler.New(args[0], arch)
		obj, err := a.Assemble(string(src))
		if err != nil {
			diag.Die(err)
		}

		output, _ := cmd.PersistentFlags().GetString("output")
		if output == "" {
			output = strings.TrimSuffix(args[0], ".s") + ".o"
		}
		out, err := os.Create(output)
		if err != nil {
			diag.Die(err)
		}
		defer out.Close()

		format, _ := cmd.PersistentFlags().GetString("format")
		switch format {
		case "sas":
			err = objfmt.WriteSAS(out, obj)
		default:
			err = objfmt.WriteELF(out, obj)
		}
		if err != nil {
			diag.Die(err)
		}
	},
}

func parseArch(target string) (objfmt.Arch, error) {
	switch target {
	case "arm64", "aarch64":
		return objfmt.ArchARM64, nil
	case "amd64", "x64", "x86_64":
		return objfmt.ArchX64, nil
	default:
		return 0, fmt.Errorf("sas: unsupported target architecture %q", target)
	}
}

func init() {
	command.PersistentFlags().StringP("output", "o", "", "output object file (default: input with .o suffix)")
	command.PersistentFlags().StringP("target", "t", runtime.GOARCH, "target architecture (amd64, arm64)")
	command.PersistentFlags().String("format", "elf", "output object format: elf or sas")
	command.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "if set, increase verbosity level")
}

func main() {
	if err := command.Execute(); err != nil {
		diag.Die(err)
	}
}
