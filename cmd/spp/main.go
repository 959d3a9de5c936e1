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

// Command spp runs the Small-C preprocessor over a source file.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/secwest/small-c-x64-arm/internal/diag"
	"github.com/secwest/small-c-x64-arm/internal/preprocessor"
)

var verbose bool

var command = &cobra.Command{
	Use:  "spp source [-o output]",
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		output, _ := cmd.PersistentFlags().GetString("output")
		var out *os.File
		if output == "" || output == "-" {
			out = os.Stdout
		} else {
			var err error
			out, err = os.Create(output)
			if err != nil {
				diag.Die(err)
			}
			defer out.Close()
		}
		if verbose {
			fmt.Fprintf(os.Stderr, "preprocessing %s\n", args[0])
		}
		p := preprocessor.New(out)
		if err := p.Run(args[0]); err != nil {
			diag.Die(err)
		}
	},
}

func init() {
	command.PersistentFlags().StringP("output", "o", "", "output file (default stdout)")
	command.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "if set, increase verbosity level")
}

func main() {
	if err := command.Execute(); err != nil {
		diag.Die(err)
	}
}
