// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/bcem/mailaudit/internal/server"
)

// version is set at build time via ldflags.
var version = server.Version

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "mailaudit %s\n", version)
			fmt.Fprintf(out, "  go:   %s\n", runtime.Version())
			fmt.Fprintf(out, "  os:   %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}
