package store

import (
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// documentSchema constrains the shape and types of the store document
// before struct decoding. Every field is optional and every struct is open
// so partial documents and foreign keys pass; only wrong-typed values are
// rejected.
const documentSchema = `
#Document: {
	networking?: {
		hostname?:       string
		wifi_enabled?:   bool
		country_code?:   string
		wifi_interface?: string
		wifi?: [...{
			ssid: string
			psk?: string
			...
		}]
		...
	}
	services?: [string]: {
		enabled?: bool
		running?: bool
		...
	}
	hardware?: {
		led?: [string]: {
			mode?: string
			...
		}
		bus?: [string]: {
			enabled?: bool
			speed?: int
			...
		}
		...
	}
	...
}
`

var (
	schemaOnce  sync.Once
	schemaCtx   *cue.Context
	schemaValue cue.Value
)

func compiledSchema() (*cue.Context, cue.Value) {
	schemaOnce.Do(func() {
		schemaCtx = cuecontext.New()
		schemaValue = schemaCtx.CompileString(documentSchema).LookupPath(cue.ParsePath("#Document"))
	})
	return schemaCtx, schemaValue
}

// vetDocument checks a decoded document tree against the schema. The
// returned error message names the offending path and expected type.
func vetDocument(data map[string]interface{}) error {
	ctx, schema := compiledSchema()
	val := ctx.Encode(data)
	if err := val.Err(); err != nil {
		return err
	}
	return schema.Unify(val).Validate()
}
