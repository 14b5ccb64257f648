// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

package luacli

import (
	"os"
	"sync"

	"zombiezen.com/go/log"
)

var initLogOnce sync.Once

// initLogging configures the default logger to write to stderr, raising the
// minimum level to debug when showDebug is set.
func initLogging(showDebug bool) {
	initLogOnce.Do(func() {
		minLogLevel := log.Info
		if showDebug {
			minLogLevel = log.Debug
		}
		log.SetDefault(&log.LevelFilter{
			Min:    minLogLevel,
			Output: log.New(os.Stderr, "luadecrypt: ", log.StdFlags, nil),
		})
	})
}
