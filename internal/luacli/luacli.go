// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

// Package luacli provides the Cobra command for the decrypt tool.
// Its shape mirrors the teacher's cmd/zb-luac: a thin main delegates to a
// command constructor here, and all the actual work (batching, logging,
// scratch-directory bookkeeping) lives in this package rather than main.
package luacli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"
	"zombiezen.com/go/log"

	"shadowluac.dev/pkg/internal/seedoracle"
)

type options struct {
	inputPath  string
	outputPath string
	scratchDir string
	jobs       int
	debug      bool
	strict     bool
	list       bool
}

// New returns the luadecrypt root command.
func New() *cobra.Command {
	c := &cobra.Command{
		Use:                   "luadecrypt <input> <output>",
		Short:                 "decrypt the game's customised Lua 5.4 bytecode into standard Lua 5.4 bytecode",
		Args:                  cobra.ExactArgs(2),
		DisableFlagsInUseLine: true,
		SilenceErrors:         true,
		SilenceUsage:          true,
	}
	opts := new(options)
	c.Flags().StringVar(&opts.scratchDir, "scratch", "", "`directory` to receive verbatim copies of inputs that failed to decrypt (default <output>/.failed)")
	c.Flags().IntVar(&opts.jobs, "jobs", runtime.GOMAXPROCS(0), "number of files to decrypt concurrently in directory mode")
	c.Flags().BoolVar(&opts.debug, "debug", false, "show debugging output, including each file's discovered seed")
	c.Flags().BoolVar(&opts.strict, "strict-plausibility", false, "require a stronger majority of sampled instructions to look valid before accepting a candidate seed")
	c.Flags().BoolVar(&opts.list, "list", false, "print a disassembly listing of each decrypted prototype to stderr")
	c.RunE = func(cmd *cobra.Command, args []string) error {
		opts.inputPath = args[0]
		opts.outputPath = args[1]
		initLogging(opts.debug)
		return run(cmd.Context(), opts)
	}
	return c
}

func run(ctx context.Context, opts *options) error {
	if opts.jobs < 1 {
		opts.jobs = 1
	}

	var predicate seedoracle.Predicate
	if opts.strict {
		predicate = seedoracle.WithMinFraction(0.6)
	}

	info, err := os.Stat(opts.inputPath)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		out := opts.outputPath
		if outInfo, err := os.Stat(out); err == nil && outInfo.IsDir() {
			out = filepath.Join(out, outputName(filepath.Base(opts.inputPath)))
		}
		if err := decryptOneFile(ctx, opts.inputPath, out, predicate, opts.list); err != nil {
			log.Errorf(ctx, "%s: %v", opts.inputPath, err)
			if err := copyFailedInput(opts.inputPath, scratchPath(opts, opts.inputPath)); err != nil {
				log.Errorf(ctx, "copy to scratch: %v", err)
			}
			return fmt.Errorf("%s: %w", opts.inputPath, err)
		}
		return nil
	}

	summary, err := runBatch(ctx, opts, predicate)
	if err != nil {
		return err
	}
	log.Infof(ctx, "%d ok, %d failed", summary.Succeeded, len(summary.Failed))
	if len(summary.Failed) > 0 {
		return fmt.Errorf("%d of %d files failed to decrypt", len(summary.Failed), summary.Succeeded+len(summary.Failed))
	}
	return nil
}

func scratchPath(opts *options, inputPath string) string {
	dir := opts.scratchDir
	if dir == "" {
		dir = filepath.Join(opts.outputPath, ".failed")
	}
	return filepath.Join(dir, filepath.Base(inputPath))
}
