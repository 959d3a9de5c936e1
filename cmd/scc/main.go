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

// Command scc compiles preprocessed Small-C source into target assembly.
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/secwest/small-c-x64-arm/internal/compiler/codegen"
	"github.com/secwest/small-c-x64-arm/internal/compiler/parser"
	"github.com/secwest/small-c-x64-arm/internal/diag"
)

var verbose bool

var command = &cobra.Command{
	Use:  "scc source.c [-o output.s]",
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		target, _ := cmd.PersistentFlags().GetString("target")
		emitter, ok := codegen.Get(emitterName(target))
		if !ok {
			diag.Die(fmt.Errorf("scc: unsupported target architecture %q", target))
		}

		src, err := os.ReadFile(args[0])
		if err != nil {
			diag.Die(err)
		}
		if verbose {
			fmt.Fprintf(os.Stderr, "compiling %s for %s\n", args[0], target)
		}

		p, err := parser.New(args[0], string(src))
		if err != nil {
			diag.Die(err)
		}
		prog, err := p.Parse()
		if err != nil {
			diag.Die(err)
		}
		gen := codegen.New(emitter, p.Symbols())
		asm, err := gen.Generate(prog)
		if err != nil {
			diag.Die(err)
		}

		output, _ := cmd.PersistentFlags().GetString("output")
		var out *os.File
		if output == "" || output == "-" {
			out = os.Stdout
		} else {
			if out, err = os.Create(output); err != nil {
				diag.Die(err)
			}
			defer out.Close()
		}
		if _, err := out.WriteString(asm); err != nil {
			diag.Die(err)
		}
	},
}

func emitterName(target string) string {
	switch target {
	case "arm64", "aarch64":
		return "arm64"
	case "amd64", "x64", "x86_64":
		return "x64"
	default:
		return target
	}
}

func init() {
	command.PersistentFlags().StringP("output", "o", "", "output assembly file (default stdout)")
	command.PersistentFlags().StringP("target", "t", runtime.GOARCH, "target architecture (amd64, arm64)")
	command.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "if set, increase verbosity level")
}

func main() {
	if err := command.Execute(); err != nil {
		diag.Die(err)
	}
}
