// Package capability implements the tools agents may invoke during a reply: descriptors used
// to render the capability prompt, executors, and a name-keyed registry that dispatches
// parsed invocations.
package capability

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"discussion-agent/internal/discussion"
)

var (
	// ErrUnknownCapability is returned when an invocation names no registered capability.
	ErrUnknownCapability = errors.New("capability: unknown capability")
	// ErrDuplicate is returned when a name is registered twice.
	ErrDuplicate = errors.New("capability: duplicate registration")
)

// Descriptor describes a capability for prompt rendering.
type Descriptor struct {
	Name        string
	Description string
	// Parameters maps parameter names to a short description.
	Parameters map[string]string
	// Roles restricts availability; empty means every role.
	Roles []discussion.AgentRole
}

// AvailableTo reports whether agents with the role may use the capability.
func (d Descriptor) AvailableTo(role discussion.AgentRole) bool {
	return len(d.Roles) == 0 || slices.Contains(d.Roles, role)
}

// ActionContext is the read-only view of the discussion handed to executors.
type ActionContext struct {
	Agent   discussion.AgentProfile
	Agents  []discussion.AgentProfile
	History []discussion.Message
	Now     time.Time
}

// Capability is a named action an agent may invoke.
type Capability interface {
	Descriptor() Descriptor
	Execute(ctx context.Context, actx ActionContext, params map[string]any) (string, error)
}

// Invocation is one parsed request from an agent reply.
type Invocation struct {
	Name   string         `json:"name"`
	Params map[string]any `json:"params,omitempty"`
}

// Registry dispatches invocations by capability name. Safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	caps map[string]Capability
}

// NewRegistry creates a registry pre-populated with caps.
func NewRegistry(caps ...Capability) (*Registry, error) {
	r := &Registry{caps: make(map[string]Capability, len(caps))}
	for _, c := range caps {
		if err := r.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a capability.
func (r *Registry) Register(c Capability) error {
	name := c.Descriptor().Name
	if name == "" {
		return errors.New("capability: name must be provided")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.caps[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicate, name)
	}
	r.caps[name] = c
	return nil
}

// Lookup returns the capability registered under name.
func (r *Registry) Lookup(name string) (Capability, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.caps[name]
	return c, ok
}

// Descriptors lists the capabilities available to role, sorted by name.
func (r *Registry) Descriptors(role discussion.AgentRole) []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.caps))
	for _, c := range r.caps {
		if d := c.Descriptor(); d.AvailableTo(role) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Execute runs one invocation. Failures are reported in the result rather than returned,
// so one bad action never aborts a turn.
func (r *Registry) Execute(ctx context.Context, actx ActionContext, inv Invocation) discussion.ActionResult {
	result := discussion.ActionResult{Capability: inv.Name, Params: inv.Params}

	c, ok := r.Lookup(inv.Name)
	if !ok || !c.Descriptor().AvailableTo(actx.Agent.Role) {
		result.Status = discussion.ActionError
		result.Error = fmt.Errorf("%w: %s", ErrUnknownCapability, inv.Name).Error()
		return result
	}

	output, err := c.Execute(ctx, actx, inv.Params)
	if err != nil {
		result.Status = discussion.ActionError
		result.Error = err.Error()
		return result
	}
	result.Status = discussion.ActionSuccess
	result.Output = output
	return result
}

// ExecuteAll runs invocations in order.
func (r *Registry) ExecuteAll(ctx context.Context, actx ActionContext, invs []Invocation) []discussion.ActionResult {
	results := make([]discussion.ActionResult, 0, len(invs))
	for _, inv := range invs {
		results = append(results, r.Execute(ctx, actx, inv))
	}
	return results
}
