//go:build tools

// Package pheme pins the code generators run by go generate,
// mockgen for the mocks/ package.
package pheme

import (
	_ "go.uber.org/mock/mockgen"
)
