// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

package luacli

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"zombiezen.com/go/log"

	"shadowluac.dev/pkg/internal/chunk"
	"shadowluac.dev/pkg/internal/seedoracle"
)

// bytecodeExtensions lists the file extensions the batch driver recognizes
// as chunks to decrypt; everything else under the input tree is left alone.
var bytecodeExtensions = []string{".lua.bytes", ".luac"}

// outputName rewrites name's bytecode extension (if any) to ".luac",
// leaving names with no recognized extension untouched.
func outputName(name string) string {
	for _, ext := range bytecodeExtensions {
		if strings.HasSuffix(name, ext) {
			return strings.TrimSuffix(name, ext) + ".luac"
		}
	}
	return name
}

func hasBytecodeExtension(name string) bool {
	for _, ext := range bytecodeExtensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// FailedFile records one input that the batch driver could not decrypt.
type FailedFile struct {
	Path string
	Err  error
}

// Summary aggregates a batch run's results across every file the driver
// dispatched.
type Summary struct {
	Succeeded int
	Failed    []FailedFile
}

// runBatch walks opts.inputPath, decrypting every recognized bytecode file
// into the mirrored location under opts.outputPath, bounded to opts.jobs
// concurrent files. Each worker gets its own [walker.State] by way of a
// fresh call into chunk.DecryptWithPredicate per file — no seed cache is
// ever shared across files, per the format's per-file key derivation.
func runBatch(ctx context.Context, opts *options, predicate seedoracle.Predicate) (Summary, error) {
	var paths []string
	err := filepath.WalkDir(opts.inputPath, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || !hasBytecodeExtension(entry.Name()) {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return Summary{}, fmt.Errorf("walk %s: %w", opts.inputPath, err)
	}

	var summary Summary
	var mu sync.Mutex
	grp, grpCtx := errgroup.WithContext(ctx)
	grp.SetLimit(opts.jobs)
	for _, path := range paths {
		path := path
		grp.Go(func() error {
			rel, err := filepath.Rel(opts.inputPath, path)
			if err != nil {
				return err
			}
			out := filepath.Join(opts.outputPath, filepath.Dir(rel), outputName(filepath.Base(rel)))

			log.Debugf(grpCtx, "%s: decrypting", rel)
			fileErr := decryptOneFile(grpCtx, path, out, predicate, opts.list)

			mu.Lock()
			defer mu.Unlock()
			if fileErr != nil {
				log.Errorf(grpCtx, "%s: %v", rel, fileErr)
				summary.Failed = append(summary.Failed, FailedFile{Path: rel, Err: fileErr})
				if err := copyFailedInput(path, scratchPath(opts, rel)); err != nil {
					log.Errorf(grpCtx, "%s: copy to scratch: %v", rel, err)
				}
			} else {
				summary.Succeeded++
			}
			return nil
		})
	}
	// grp's own error is always nil: per-file failures are recorded in
	// summary rather than aborting the rest of the batch.
	_ = grp.Wait()
	return summary, nil
}

// decryptOneFile reads path, decrypts it, and writes the result to out,
// creating out's parent directories as needed. It prints a disassembly
// listing to stderr first when list is true.
func decryptOneFile(ctx context.Context, path, out string, predicate seedoracle.Predicate, list bool) error {
	input, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	result, err := chunk.DecryptWithPredicate(input, predicate)
	if err != nil {
		return err
	}
	if result.Decrypted {
		log.Debugf(ctx, "%s: seed16=%#04x", path, result.FileSeed)
	}
	if list {
		if err := printListing(out, result.Output); err != nil {
			log.Errorf(ctx, "%s: listing: %v", path, err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o777); err != nil {
		return err
	}
	return os.WriteFile(out, result.Output, 0o666)
}

// copyFailedInput copies src verbatim to dst, creating dst's parent
// directories as needed. It never touches src, so a caller can always point
// whatever read src after a failed decrypt at the original bytes.
func copyFailedInput(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o777); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	outFile, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o666)
	if err != nil {
		return err
	}
	defer outFile.Close()
	_, err = io.Copy(outFile, in)
	return err
}
