// Copyright (c) 2025, WSO2 LLC. (https://www.wso2.com).
//
// WSO2 LLC. licenses this file to you under the Apache License,
// Version 2.0 (the "License"); you may not use this file except
// in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied. See the License for the
// specific language governing permissions and limitations
// under the License.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/wso2/api-platform/policy-engine/internal/schema"
	"github.com/wso2/api-platform/policy-engine/internal/tools"
	"github.com/wso2/api-platform/policy-engine/internal/validator"
	"github.com/wso2/api-platform/policy-engine/pkg/blocks"
	"github.com/wso2/api-platform/policy-engine/pkg/config"
	"github.com/wso2/api-platform/policy-engine/pkg/core"
)

type validateOptions struct {
	schemasDir     string
	toolsDir       string
	noReachability bool
	noFallback     bool
	asJSON         bool
	verbose        bool
}

func validateCmd() *cobra.Command {
	var opts validateOptions

	cmd := &cobra.Command{
		Use:   "validate <policy-file>...",
		Short: "Validate policy documents",
		Long: `Validate one or more policy documents and print their diagnostics.

Examples:
  policyctl validate policy.yaml
  policyctl validate --schemas ./schemas --tools ./tools policies/*.yaml
  policyctl validate --json policy.json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, args, opts)
		},
	}

	cmd.Flags().StringVar(&opts.schemasDir, "schemas", "", "directory of JSON schema documents")
	cmd.Flags().StringVar(&opts.toolsDir, "tools", "", "directory of published tool definitions")
	cmd.Flags().BoolVar(&opts.noReachability, "no-reachability", false, "skip reachability analysis")
	cmd.Flags().BoolVar(&opts.noFallback, "no-structural-fallback", false, "do not add parent to child edges for unwired blocks")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print full results as JSON")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "print warnings and infos")

	return cmd
}

func runValidate(cmd *cobra.Command, paths []string, opts validateOptions) error {
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))

	registry := blocks.NewRegistry(logger)
	blocks.RegisterBuiltins(registry)

	schemas := schema.NewResolver(logger)
	if opts.schemasDir != "" {
		if _, err := schemas.LoadDir(opts.schemasDir); err != nil {
			return fmt.Errorf("load schemas: %w", err)
		}
	}
	toolRegistry := tools.NewRegistry(logger)
	if opts.toolsDir != "" {
		if _, err := toolRegistry.LoadDir(opts.toolsDir); err != nil {
			return fmt.Errorf("load tools: %w", err)
		}
	}

	v := validator.New(registry, schemas, toolRegistry, validator.Options{
		Reachability:       !opts.noReachability,
		StructuralFallback: !opts.noFallback,
	}, logger)

	policies := make([]*core.PolicyConfig, 0, len(paths))
	for _, path := range paths {
		p, err := config.LoadPolicy(path)
		if err != nil {
			return err
		}
		policies = append(policies, p)
	}

	results, err := v.ValidateAll(cmd.Context(), policies)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return err
		}
	} else {
		for i, res := range results {
			printResult(out, paths[i], res, opts.verbose)
		}
	}

	invalid := 0
	for _, res := range results {
		if !res.IsValid {
			invalid++
		}
	}
	if invalid > 0 {
		return fmt.Errorf("%d of %d policies are not valid", invalid, len(results))
	}
	return nil
}

func printResult(w io.Writer, path string, res *core.ValidationResult, verbose bool) {
	status := "valid"
	if !res.IsValid {
		status = "INVALID"
	}
	fmt.Fprintf(w, "%s (%s): %s, %d errors, %d warnings\n", path, res.PolicyID, status, len(res.Errors), len(res.Warnings))
	for _, d := range res.Errors {
		printDiagnostic(w, d)
	}
	if !verbose {
		return
	}
	for _, d := range res.Warnings {
		printDiagnostic(w, d)
	}
	for _, d := range res.Infos {
		printDiagnostic(w, d)
	}
}

func printDiagnostic(w io.Writer, d core.Diagnostic) {
	loc := d.BlockID
	if loc == "" {
		loc = "policy"
	}
	if d.Code != "" {
		fmt.Fprintf(w, "  %-7s %s [%s] %s\n", d.Severity, loc, d.Code, d.Message)
		return
	}
	fmt.Fprintf(w, "  %-7s %s %s\n", d.Severity, loc, d.Message)
}
