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
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/bcem/mailaudit/internal/batch"
)

func newBatchCmd() *cobra.Command {
	var recursive, asJSON bool

	cmd := &cobra.Command{
		Use:   "batch DIR",
		Short: "Audit every .eml file in a directory",
		Example: `  mailaudit batch ./samples
  mailaudit batch --recursive --json ./archive`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := batch.NewRunner(a.Pipeline).Run(cmd.Context(), batch.Request{
				Dir:       args[0],
				Recursive: recursive,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"files":   res.Files,
					"audited": res.TotalAudited,
					"cached":  res.TotalCached,
					"failed":  res.TotalFailed,
				})
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "FILE\tSCORE\tSTATUS")
			for _, f := range res.Files {
				status := "audited"
				switch {
				case f.Error != "":
					status = "error: " + f.Error
				case f.Cached:
					status = "cached"
				}
				fmt.Fprintf(tw, "%s\t%.2f\t%s\n", f.Path, f.OverallScore, status)
			}
			tw.Flush()

			fmt.Fprintf(out, "\n%d audited, %d cached, %d failed in %s\n",
				res.TotalAudited, res.TotalCached, res.TotalFailed, res.Elapsed.Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "descend into subdirectories")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")
	return cmd
}
