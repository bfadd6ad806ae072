package domain

// ProviderKind identifies which provisioning API shape a component uses.
// It is also the join key for transform-table lookups.
type ProviderKind string

// ComponentIdentity is the handle assigned to a component instance for
// the duration of a run. All gateway calls are keyed by it.
type ComponentIdentity string

// Values is a field-name to value mapping used for component inputs and
// outputs.
type Values map[string]any

// Clone returns a shallow copy of v. A nil map clones to an empty one.
func (v Values) Clone() Values {
	out := make(Values, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// ComponentStatus is the last observed remote status of a component.
type ComponentStatus string

const (
	ComponentStatusUnknown  ComponentStatus = "unknown"
	ComponentStatusBuilding ComponentStatus = "building"
	ComponentStatusSuccess  ComponentStatus = "success"
	ComponentStatusError    ComponentStatus = "error"
)

// Terminal reports whether the status ends the lifecycle. Error is
// terminal like Success: both yield an output.
func (s ComponentStatus) Terminal() bool {
	return s == ComponentStatusSuccess || s == ComponentStatusError
}

// Component is one independently deployable unit of a request. Only
// Identity changes once a run starts.
type Component struct {
	Name         string            `json:"name,omitempty"`
	ProviderKind ProviderKind      `json:"provider_kind" validate:"required"`
	Order        int               `json:"order"`
	Input        Values            `json:"input"`
	Identity     ComponentIdentity `json:"identity,omitempty"`
}

// ComponentRef addresses a component on the provisioning backend.
type ComponentRef struct {
	Identity     ComponentIdentity `json:"identity"`
	ProviderKind ProviderKind      `json:"provider_kind"`
}

// ComponentState is the working state of one component during a run.
// Output is non-nil only once a terminal status has been observed and
// its output fetched. Failure is set when the component ended fatally.
type ComponentState struct {
	ProviderKind ProviderKind      `json:"provider_kind"`
	Identity     ComponentIdentity `json:"identity"`
	Status       ComponentStatus   `json:"status"`
	Input        Values            `json:"input"`
	Output       Values            `json:"output,omitempty"`
	Failure      *ComponentFailure `json:"failure,omitempty"`
}

// Ref returns the gateway address of the component.
func (s ComponentState) Ref() ComponentRef {
	return ComponentRef{Identity: s.Identity, ProviderKind: s.ProviderKind}
}

// Done reports whether the component has either produced output or
// failed.
func (s ComponentState) Done() bool {
	return s.Output != nil || s.Failure != nil
}

// DeployState is the ordered working state of a run, one entry per
// requested component in declaration order.
type DeployState struct {
	Components []ComponentState `json:"components"`
}

// Failed returns the components that ended with a fatal failure.
func (s DeployState) Failed() []ComponentState {
	var out []ComponentState
	for _, c := range s.Components {
		if c.Failure != nil {
			out = append(out, c)
		}
	}
	return out
}

// Identities returns the identity of each component keyed by provider
// kind.
func (s DeployState) Identities() map[ProviderKind]ComponentIdentity {
	ids := make(map[ProviderKind]ComponentIdentity, len(s.Components))
	for _, c := range s.Components {
		ids[c.ProviderKind] = c.Identity
	}
	return ids
}

// siblingOutputs returns the outputs of every component other than skip
// that has produced output, in state order.
func (s DeployState) siblingOutputs(skip int) []SourceOutput {
	var out []SourceOutput
	for i, c := range s.Components {
		if i == skip || c.Output == nil {
			continue
		}
		out = append(out, SourceOutput{ProviderKind: c.ProviderKind, Output: c.Output})
	}
	return out
}
