// Package main provides the vong CLI, which maintains a Helm umbrella chart
// from a service version registry kept in a key-value store.
package main

import (
	"fmt"
	"os"

	"github.com/nathantilsley/vongform/internal/umbrella/domain"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch domain.KindOf(err) {
	case domain.KindInvalidMutation, domain.KindInvalidConfig:
		return 2
	case domain.KindStoreUnavailable:
		return 3
	case domain.KindCorruptEntry:
		return 4
	case domain.KindWriteFailure:
		return 5
	case domain.KindDependencyUpdate:
		return 6
	default:
		return 1
	}
}
