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
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/bcem/mailaudit/internal/history"
)

func newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent audits from the history store",
		Example: `  mailaudit history --db audits.db
  mailaudit history --limit 50`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 {
				return fmt.Errorf("--limit must be positive, got %d", limit)
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := history.Open(cmd.Context(), cfg.HistoryDriver, cfg.HistoryDSN)
			if err != nil {
				return err
			}
			if store == nil {
				return errors.New("audit history is disabled; pass --db or set HISTORY_DRIVER")
			}
			defer store.Close()

			records, err := store.ListRecent(cmd.Context(), limit)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tWHEN\tSCORE\tPASSED\tSUBJECT")
			for _, r := range records {
				fmt.Fprintf(tw, "%s\t%s\t%.2f\t%d/%d\t%s\n",
					r.ID, r.CreatedAt.Format(time.RFC3339), r.OverallScore,
					r.PassedRules, r.PassedRules+r.FailedRules, r.Subject)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of audits to show")
	return cmd
}
