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

// Package batch audits a directory of saved .eml files through the
// pipeline, one file at a time.
package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bcem/mailaudit/internal/pipeline"
)

// Request defines the scope of a batch run.
type Request struct {
	Dir       string
	Recursive bool // descend into subdirectories
}

// Result summarises a completed batch run.
type Result struct {
	Files        []FileResult
	TotalAudited int
	TotalCached  int
	TotalFailed  int
	Elapsed      time.Duration
}

// FileResult tracks the outcome for a single message file.
type FileResult struct {
	Path         string  `json:"path"`
	AuditID      string  `json:"audit_id,omitempty"`
	OverallScore float64 `json:"overall_score"`
	Cached       bool    `json:"cached"`
	Error        string  `json:"error,omitempty"`
}

// Processor is the part of the pipeline the runner needs.
type Processor interface {
	Process(ctx context.Context, source string, raw []byte) (*pipeline.Outcome, error)
}

// Runner audits message files found on disk.
type Runner struct {
	proc Processor
}

// NewRunner creates a batch runner.
func NewRunner(proc Processor) *Runner {
	return &Runner{proc: proc}
}

// Run audits every .eml file under req.Dir. A file that cannot be read or
// parsed is recorded as failed and the run continues. Cancellation is
// checked between files; the partial result is returned with ctx.Err().
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	paths, err := listMessages(req.Dir, req.Recursive)
	if err != nil {
		return nil, err
	}

	slog.Info("starting batch audit",
		"dir", req.Dir,
		"recursive", req.Recursive,
		"files", len(paths),
	)

	result := &Result{Files: make([]FileResult, 0, len(paths))}

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			result.Elapsed = time.Since(start)
			return result, err
		}

		fr := r.auditFile(ctx, path)
		switch {
		case fr.Error != "":
			result.TotalFailed++
		case fr.Cached:
			result.TotalCached++
		default:
			result.TotalAudited++
		}
		result.Files = append(result.Files, fr)
	}

	result.Elapsed = time.Since(start)

	slog.Info("batch audit complete",
		"dir", req.Dir,
		"audited", result.TotalAudited,
		"cached", result.TotalCached,
		"failed", result.TotalFailed,
		"elapsed", result.Elapsed,
	)

	return result, nil
}

func (r *Runner) auditFile(ctx context.Context, path string) FileResult {
	fr := FileResult{Path: path}

	raw, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("batch: read failed", "path", path, "error", err)
		fr.Error = err.Error()
		return fr
	}

	out, err := r.proc.Process(ctx, path, raw)
	if err != nil {
		slog.Warn("batch: audit failed", "path", path, "error", err)
		fr.Error = err.Error()
		return fr
	}

	fr.AuditID = out.ID
	fr.Cached = out.Cached
	fr.OverallScore = scoreOf(out)
	return fr
}

// listMessages returns the .eml files under dir in lexical order.
func listMessages(dir string, recursive bool) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("open batch directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	var paths []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && !recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(d.Name(), ".eml") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk batch directory: %w", err)
	}

	sort.Strings(paths)
	return paths, nil
}

// scoreOf reads the overall score from the result, or from the rendered
// report when the outcome came from cache.
func scoreOf(out *pipeline.Outcome) float64 {
	if out.Result != nil {
		return out.Result.OverallScore
	}
	var doc struct {
		OverallScore float64 `json:"overall_score"`
	}
	if err := json.Unmarshal(out.Report, &doc); err != nil {
		return 0
	}
	return doc.OverallScore
}
