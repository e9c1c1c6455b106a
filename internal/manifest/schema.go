package manifest

import (
	_ "embed"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	cueyaml "cuelang.org/go/encoding/yaml"
)

//go:embed schema.cue
var schemaSrc string

// SchemaError is a manifest validation failure. CUE keeps source
// positions, so a bad manifest names the offending line.
type SchemaError struct {
	Message string
	Pos     token.Pos
}

func (e *SchemaError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: invalid manifest: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return fmt.Sprintf("invalid manifest: %s", e.Message)
}

// validateSchema checks raw manifest YAML against the embedded CUE
// schema before anything decodes it.
func validateSchema(data []byte) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSrc).LookupPath(cue.ParsePath("#Manifest"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile manifest schema: %w", err)
	}

	file, err := cueyaml.Extract(FileName, data)
	if err != nil {
		return schemaError(err)
	}
	doc := ctx.BuildFile(file)
	if err := doc.Err(); err != nil {
		return schemaError(err)
	}
	if err := schema.Unify(doc).Validate(cue.Concrete(true)); err != nil {
		return schemaError(err)
	}
	return nil
}

// schemaError converts a CUE error into a SchemaError carrying the
// first reported position. CUE errors may bundle several failures.
func schemaError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &SchemaError{Message: err.Error()}
	}
	first := errs[0]
	se := &SchemaError{Message: first.Error()}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		se.Pos = positions[0]
	}
	return se
}
