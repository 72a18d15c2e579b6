// Copyright 2024 The Wasm Component Trampoline Authors
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

// Command trampoline-demo is the Go analogue of tests/runner: it loads a
// small fixed catalogue of components from a directory of compiled Wasm
// binaries, composes them with CompositionGraph, and drives the
// application's set_name/hello exports through the installed shims.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/andyl-technologies/wasm-component-trampoline/cmd/trampoline-demo/internal/demo"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var wasmDir string
	var verbose bool

	cmd := &cobra.Command{
		Use:   "trampoline-demo",
		Short: "compose and run the logger/kvstore/application demo components",
		RunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

			return demo.Run(context.Background(), logger, wasmDir)
		},
	}

	cmd.Flags().StringVarP(&wasmDir, "wasm-dir", "w", "", "directory containing the compiled Wasm component artifacts")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show verbose logging")
	cmd.MarkFlagRequired("wasm-dir")

	return cmd
}
