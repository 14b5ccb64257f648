// Copyright 2025 The zb Authors
// SPDX-License-Identifier: MIT

package chunkerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestSentinelsWrapWithErrorsIs(t *testing.T) {
	sentinels := []error{
		ErrMalformedHeader,
		ErrVarintExhausted,
		ErrBruteForceFailed,
		ErrUnreasonableCount,
		ErrNoForwardProgress,
		ErrUnknownConstTag,
		ErrLoaderRejected,
	}
	for _, sentinel := range sentinels {
		wrapped := fmt.Errorf("some context: %w", sentinel)
		if !errors.Is(wrapped, sentinel) {
			t.Errorf("errors.Is(wrapped, %v) = false; want true", sentinel)
		}
	}
}
