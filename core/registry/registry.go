// Package registry enumerates the callable capabilities available to a
// user. The registry holds no mutable state of its own: availability is
// derived from the user's connections at call time, and a user with no
// connected providers simply gets an empty tool list.
package registry

import (
	"github.com/herald-ai/herald/core/types"
	models "github.com/herald-ai/herald/dbmodels"
)

type Registry struct {
	capabilities map[string]types.Capability
	order        []string
}

func New(capabilities ...types.Capability) *Registry {
	r := &Registry{
		capabilities: map[string]types.Capability{},
	}
	for _, c := range capabilities {
		r.Register(c)
	}
	return r
}

// Register adds a capability under its stable tool name. Re-registering a
// name replaces the previous capability.
func (r *Registry) Register(c types.Capability) {
	name := c.Definition().Name.String()
	if _, exists := r.capabilities[name]; !exists {
		r.order = append(r.order, name)
	}
	r.capabilities[name] = c
}

// Resolve looks a capability up by tool name. The lookup is total: an
// unknown name yields (nil, false), never a panic.
func (r *Registry) Resolve(name string) (types.Capability, bool) {
	c, ok := r.capabilities[name]
	return c, ok
}

// CapabilitiesFor returns the capabilities the user can actually invoke,
// in registration order, skipping any whose provider is not connected.
func (r *Registry) CapabilitiesFor(user *models.User) []types.Capability {
	out := []types.Capability{}
	if user == nil {
		return out
	}
	for _, name := range r.order {
		c := r.capabilities[name]
		if user.Connected(c.Provider()) {
			out = append(out, c)
		}
	}
	return out
}

// ToolsFor returns tool descriptors for the user's available
// capabilities. It never fails; callers must tolerate an empty list.
func (r *Registry) ToolsFor(user *models.User) types.ToolDefinitions {
	defs := types.ToolDefinitions{}
	for _, c := range r.CapabilitiesFor(user) {
		defs = append(defs, c.Definition())
	}
	return defs
}
