package job

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// HandlerFunc is the type-erased processor signature stored in the
// registry.
type HandlerFunc func(ctx context.Context, payload []byte) ([]byte, error)

type registration struct {
	handler HandlerFunc
	opts    []Option
}

// Registry maps job kinds to their processors.
type Registry struct {
	mu       sync.RWMutex
	handlers map[Kind]registration
}

// NewRegistry creates an empty processor registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[Kind]registration)}
}

// Register stores a raw processor for kind, replacing any previous one.
// opts become the defaults for jobs of that kind.
func (r *Registry) Register(kind Kind, h HandlerFunc, opts ...Option) {
	r.mu.Lock()
	r.handlers[kind] = registration{handler: h, opts: opts}
	r.mu.Unlock()
}

// RegisterDefinition registers a typed definition. The wrapper decodes the
// payload into In and encodes Out as the result. Decode and encode
// failures are permanent since no retry can change the bytes involved.
func RegisterDefinition[In, Out any](r *Registry, def *Definition[In, Out]) {
	h := func(ctx context.Context, payload []byte) ([]byte, error) {
		var input In
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &input); err != nil {
				return nil, &PermanentError{
					Reason: fmt.Sprintf("decode %q payload", def.Kind),
					Err:    err,
				}
			}
		}
		out, err := def.Handler(ctx, input)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(out)
		if err != nil {
			return nil, &PermanentError{
				Reason: fmt.Sprintf("encode %q result", def.Kind),
				Err:    err,
			}
		}
		return data, nil
	}

	r.mu.Lock()
	r.handlers[def.Kind] = registration{handler: h, opts: def.Opts}
	r.mu.Unlock()
}

// Get returns the processor for kind.
func (r *Registry) Get(kind Kind) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.handlers[kind]
	return reg.handler, ok
}

// Defaults returns the job options registered alongside kind.
func (r *Registry) Defaults(kind Kind) ([]Option, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.handlers[kind]
	return reg.opts, ok
}

// Kinds returns every registered kind in sorted order.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]Kind, 0, len(r.handlers))
	for k := range r.handlers {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
