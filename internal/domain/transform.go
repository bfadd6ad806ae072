package domain

import "sort"

// TransformTable renames fields from a source component's output to a
// destination component's input. It is keyed by destination provider
// kind, then source provider kind, then source field name; the value is
// the destination field name.
type TransformTable map[ProviderKind]map[ProviderKind]map[string]string

// SourceOutput is the output of one already-deployed component.
type SourceOutput struct {
	ProviderKind ProviderKind `json:"provider_kind"`
	Output       Values       `json:"output"`
}

// Apply copies every field of every source output into input, renamed
// through the mapping scoped to (dest, source). Fields without a mapping
// keep their name. Sources are applied in slice order and later sources
// overwrite earlier ones on collision. Apply mutates and returns input;
// a nil input is allocated.
func (t TransformTable) Apply(dest ProviderKind, sources []SourceOutput, input Values) Values {
	if input == nil {
		input = Values{}
	}
	for _, src := range sources {
		mapping := t[dest][src.ProviderKind]
		for _, field := range sortedKeys(src.Output) {
			destField, ok := mapping[field]
			if !ok {
				destField = field
			}
			input[destField] = src.Output[field]
		}
	}
	return input
}

// DependsOn reports whether dest consumes fields renamed from source.
func (t TransformTable) DependsOn(dest, source ProviderKind) bool {
	_, ok := t[dest][source]
	return ok
}

func sortedKeys(v Values) []string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
