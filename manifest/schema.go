package manifest

import (
	_ "embed"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

//go:embed schema.cue
var schemaSource string

var (
	schemaOnce sync.Once
	schemaCtx  *cue.Context
	schemaDef  cue.Value
	schemaErr  error

	// cue.Context is not safe for concurrent use.
	validateMu sync.Mutex
)

func loadSchema() (*cue.Context, cue.Value, error) {
	schemaOnce.Do(func() {
		schemaCtx = cuecontext.New()
		v := schemaCtx.CompileString(schemaSource, cue.Filename(FileName+".cue"))
		if err := v.Err(); err != nil {
			schemaErr = fmt.Errorf("manifest schema: %w", err)
			return
		}
		schemaDef = v.LookupPath(cue.ParsePath("#Manifest"))
		schemaErr = schemaDef.Err()
	})
	return schemaCtx, schemaDef, schemaErr
}

// Validate checks the manifest's shape against the embedded CUE schema.
// Cross-field rules (descriptor consistency) are checked by Build.
func (m *Manifest) Validate() error {
	ctx, def, err := loadSchema()
	if err != nil {
		return err
	}
	validateMu.Lock()
	defer validateMu.Unlock()
	v := ctx.Encode(m)
	if err := v.Err(); err != nil {
		return fmt.Errorf("invalid manifest: %w", err)
	}
	if err := def.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid manifest: %w", err)
	}
	return nil
}
