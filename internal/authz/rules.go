package authz

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Params carries caller-supplied context for a rule evaluation, e.g. the
// resource being acted on.
type Params map[string]any

// Evaluator is the pluggable predicate behind a named rule. Execute must be
// side-effect-free with respect to the authorization graph; it may read
// external state such as time or the supplied params. ruleData is the stored
// rule's opaque payload.
type Evaluator interface {
	Execute(ctx context.Context, userID string, item Item, ruleData []byte, params Params) (bool, error)
}

// EvaluatorFunc adapts a function to the Evaluator interface.
type EvaluatorFunc func(ctx context.Context, userID string, item Item, ruleData []byte, params Params) (bool, error)

// Execute implements Evaluator.
func (f EvaluatorFunc) Execute(ctx context.Context, userID string, item Item, ruleData []byte, params Params) (bool, error) {
	return f(ctx, userID, item, ruleData, params)
}

// AllowAll passes unconditionally. Useful for wiring and tests.
var AllowAll = EvaluatorFunc(func(context.Context, string, Item, []byte, Params) (bool, error) {
	return true, nil
})

// OwnerMatch allows when the check params carry the user's own ID under the
// parameter named by the stored rule data's owner_param ("owner" when the
// data is empty or does not set it). The param value is compared after %v
// formatting, so string and numeric IDs both work.
var OwnerMatch = EvaluatorFunc(func(_ context.Context, userID string, _ Item, ruleData []byte, params Params) (bool, error) {
	ownerParam := "owner"
	if len(ruleData) > 0 {
		var data struct {
			OwnerParam string `json:"owner_param"`
		}
		if err := json.Unmarshal(ruleData, &data); err != nil {
			return false, fmt.Errorf("owner rule data: %w", err)
		}
		if data.OwnerParam != "" {
			ownerParam = data.OwnerParam
		}
	}
	raw, ok := params[ownerParam]
	if !ok {
		return false, nil
	}
	return fmt.Sprintf("%v", raw) == userID, nil
})

// Registry maps rule names to evaluators. Registration happens at startup;
// lookups are safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	evaluators map[string]Evaluator
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{evaluators: make(map[string]Evaluator)}
}

// Register binds an evaluator to a rule name, replacing any previous binding.
func (r *Registry) Register(name string, ev Evaluator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evaluators[name] = ev
}

// Lookup returns the evaluator bound to name.
func (r *Registry) Lookup(name string) (Evaluator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ev, ok := r.evaluators[name]
	return ev, ok
}

// Evaluate resolves and runs the named rule. ErrUnknownRule if no evaluator
// is registered under that name.
func (r *Registry) Evaluate(ctx context.Context, name, userID string, item Item, ruleData []byte, params Params) (bool, error) {
	ev, ok := r.Lookup(name)
	if !ok {
		return false, ErrUnknownRule
	}
	return ev.Execute(ctx, userID, item, ruleData, params)
}
