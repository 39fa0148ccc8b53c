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
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bcem/mailaudit/internal/extract"
)

func newAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit FILE...",
		Short: "Audit one or more .eml files and print their reports",
		Example: `  mailaudit audit message.eml
  mailaudit audit --db audits.db inbox/*.eml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			malformed := 0
			for _, path := range args {
				raw, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}

				res, err := a.Pipeline.Process(cmd.Context(), "file:"+path, raw)
				var bad *extract.MalformedMessageError
				if errors.As(err, &bad) {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: Failed to parse EML: %v\n", path, err)
					malformed++
					continue
				}
				if err != nil {
					return fmt.Errorf("audit %s: %w", path, err)
				}

				var pretty bytes.Buffer
				if err := json.Indent(&pretty, res.Report, "", "  "); err != nil {
					return fmt.Errorf("format report for %s: %w", path, err)
				}
				fmt.Fprintln(out, pretty.String())
			}

			if malformed > 0 {
				return fmt.Errorf("%d of %d file(s) could not be parsed", malformed, len(args))
			}
			return nil
		},
	}
	return cmd
}
