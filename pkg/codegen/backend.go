package codegen

import (
	"bytes"
	"fmt"

	"github.com/xplshn/chibicc/pkg/ast"
	"github.com/xplshn/chibicc/pkg/config"
)

// Backend is the interface that all code generation backends must implement.
type Backend interface {
	// Generate takes a parsed translation unit and a configuration, and
	// produces the target assembly as a byte buffer.
	Generate(prog *ast.Program, cfg *config.Config) (*bytes.Buffer, error)
}

// NewBackend returns the backend for cfg.Target.
func NewBackend(cfg *config.Config) (Backend, error) {
	switch cfg.Target {
	case "amd64_sysv":
		return NewX86Backend(), nil
	}
	return nil, fmt.Errorf("no code generator for target '%s'", cfg.Target)
}
