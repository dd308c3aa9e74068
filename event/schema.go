package event

import (
	"github.com/invopop/jsonschema"
)

// Schema describes the flat JSON encoding of a record kind. Every field is
// required; extra properties are allowed because decoding ignores them.
// It returns nil for an unknown kind.
func Schema(k Kind) *jsonschema.Schema {
	r, err := zero(k)
	if err != nil {
		return nil
	}
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: true,
		DoNotReference:            true,
		ExpandedStruct:            true,
	}
	s := reflector.Reflect(r)
	s.Title = string(k)
	return s
}
