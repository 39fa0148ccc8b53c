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

	"github.com/spf13/cobra"

	"github.com/bcem/mailaudit/internal/rules"
)

func newRulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "List the registered quality rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := rules.Default()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Loaded %d rules:\n\n", reg.Len())
			for _, r := range reg.Rules() {
				fmt.Fprintf(out, "  %-16s %4.1f  %s\n", r.Name(), r.Weight(), r.Description())
			}
			return nil
		},
	}
}
