package job

import "context"

// Definition is a typed processor for one job kind. In is decoded from the
// job payload; Out is encoded into the job result.
type Definition[In, Out any] struct {
	Kind    Kind
	Handler func(ctx context.Context, input In) (Out, error)
	// Opts are the kind defaults applied to every job of Kind.
	Opts    []Option
}

// NewDefinition creates a typed processor definition.
func NewDefinition[In, Out any](kind Kind, handler func(ctx context.Context, input In) (Out, error), opts ...Option) *Definition[In, Out] {
	return &Definition[In, Out]{
		Kind:    kind,
		Handler: handler,
		Opts:    opts,
	}
}
