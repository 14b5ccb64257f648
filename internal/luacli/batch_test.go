// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

package luacli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"shadowluac.dev/pkg/internal/luacode"
)

func TestOutputName(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"script.lua.bytes", "script.luac"},
		{"script.luac", "script.luac"},
		{"readme.txt", "readme.txt"},
	}
	for _, test := range tests {
		if got := outputName(test.name); got != test.want {
			t.Errorf("outputName(%q) = %q; want %q", test.name, got, test.want)
		}
	}
}

func TestHasBytecodeExtension(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"script.lua.bytes", true},
		{"script.luac", true},
		{"readme.txt", false},
		{"noext", false},
	}
	for _, test := range tests {
		if got := hasBytecodeExtension(test.name); got != test.want {
			t.Errorf("hasBytecodeExtension(%q) = %v; want %v", test.name, got, test.want)
		}
	}
}

func TestRunBatchDecryptsTreeAndCopiesFailures(t *testing.T) {
	inputDir := t.TempDir()
	outputDir := t.TempDir()

	ok := &luacode.Prototype{MaxStackSize: 2, Code: []luacode.Instruction{luacode.Instruction(0)}}
	okBytes, err := ok.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary() = %v", err)
	}
	if err := os.MkdirAll(filepath.Join(inputDir, "sub"), 0o777); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(inputDir, "sub", "a.lua.bytes"), okBytes, 0o666); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(inputDir, "bad.luac"), []byte("not a chunk"), 0o666); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(inputDir, "ignored.txt"), []byte("hello"), 0o666); err != nil {
		t.Fatal(err)
	}

	opts := &options{inputPath: inputDir, outputPath: outputDir, jobs: 2}
	summary, err := runBatch(context.Background(), opts, nil)
	if err != nil {
		t.Fatalf("runBatch() = %v", err)
	}
	if summary.Succeeded != 1 {
		t.Errorf("Succeeded = %d; want 1", summary.Succeeded)
	}
	if len(summary.Failed) != 1 || summary.Failed[0].Path != "bad.luac" {
		t.Errorf("Failed = %+v; want one entry for bad.luac", summary.Failed)
	}

	if _, err := os.Stat(filepath.Join(outputDir, "sub", "a.luac")); err != nil {
		t.Errorf("decrypted output missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(outputDir, ".failed", "bad.luac")); err != nil {
		t.Errorf("scratch copy of failed input missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(outputDir, "ignored.txt")); err == nil {
		t.Error("ignored.txt should not have been processed into the output tree")
	}
}
