package dispatch

import (
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/AltairaLabs/discovery-agent/internal/registry"
)

// ArgValidator canonicalizes tool arguments to plain JSON values and checks
// them against the tool's input schema
type ArgValidator struct {
	schemas sync.Map // schema text -> *jsonschema.Schema
}

// Validate returns the canonical arguments or an error describing why they are unusable
func (v *ArgValidator) Validate(d registry.Descriptor, args map[string]any) (map[string]any, error) {
	if args == nil {
		args = map[string]any{}
	}
	st, err := structpb.NewStruct(args)
	if err != nil {
		return nil, fmt.Errorf("arguments are not JSON values: %w", err)
	}
	canonical := st.AsMap()

	if len(d.InputSchema) == 0 {
		return canonical, nil
	}
	schema, err := v.compile(d)
	if err != nil {
		// A host publishing a broken schema should not block the call
		return canonical, nil
	}
	if err := schema.Validate(canonical); err != nil {
		return nil, err
	}
	return canonical, nil
}

func (v *ArgValidator) compile(d registry.Descriptor) (*jsonschema.Schema, error) {
	key := string(d.InputSchema)
	if cached, ok := v.schemas.Load(key); ok {
		if compiled, ok := cached.(*jsonschema.Schema); ok {
			return compiled, nil
		}
	}

	compiled, err := jsonschema.CompileString(fmt.Sprintf("%s.%s.schema.json", d.Service, d.Name), key)
	if err != nil {
		return nil, err
	}
	v.schemas.Store(key, compiled)
	return compiled, nil
}
