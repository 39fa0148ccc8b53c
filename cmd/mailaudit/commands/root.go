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
	"context"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bcem/mailaudit/internal/app"
	"github.com/bcem/mailaudit/internal/config"
)

var (
	cfgFile string
	dbPath  string
	verbose bool
)

func NewRoot() *cobra.Command {
	root := &cobra.Command{
		Use:           "mailaudit",
		Short:         "Audit email quality from .eml files",
		Long:          "mailaudit extracts .eml messages, runs the quality rules against them and prints a scored JSON report.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			level := "warn"
			if verbose {
				level = "debug"
			}
			return app.SetupLogging(cmd.ErrOrStderr(), level)
		},
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", envOr("CONFIG_PATH", "config.yaml"), "config file path")
	root.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite history database (overrides history settings)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output to stderr")

	root.AddCommand(
		newAuditCmd(),
		newBatchCmd(),
		newRulesCmd(),
		newHistoryCmd(),
		newVersionCmd(),
	)

	return root
}

// loadConfig reads the configuration selected by the global flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFile(cfgFile)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.HistoryDriver = config.DriverSQLite
		cfg.HistoryDSN = dbPath
	}
	return cfg, cfg.Validate()
}

// loadApp assembles the pipeline for one command invocation.
func loadApp(ctx context.Context) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
