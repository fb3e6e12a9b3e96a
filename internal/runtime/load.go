package runtime

import (
	"github.com/conneroisu/burrow/internal/errors"
	"github.com/conneroisu/burrow/internal/ir"
)

// Load decodes compiled code and links it against the runtime layer
// followed by layers, in precedence order. Failures are evaluation errors
// carrying the decode or link error as cause.
func Load(code string, layers ...Layer) (*Module, error) {
	p, err := ir.Decode(code)
	if err != nil {
		return nil, errors.WrapEvaluation(err, errors.CodeDecodeFailed, "compiled code could not be decoded")
	}

	env := NewEnvironment(append([]Layer{Bindings()}, layers...)...)
	mod, err := Link(p, env)
	if err != nil {
		return nil, errors.WrapEvaluation(err, errors.CodeLinkFailed, "compiled code could not be linked")
	}
	return mod, nil
}

// ScopeLayer converts a sanitized scope into an environment layer.
func ScopeLayer(scope map[string]any) Layer {
	return Layer{Name: LayerScope, Bindings: scope}
}
