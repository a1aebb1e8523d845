package sigbridge

import (
	"maps"
	"slices"
	"strings"
)

// ParamData is reactive data computed from parameters: Params is watched in
// the store and every new value rebinds the key to Update(params).
type ParamData struct {
	Params func() any
	Update func(params any) (any, error)
	// Deep compares parameters structurally.
	Deep bool
}

// Declarations describe the reactive data and subscriptions of a scope.
type Declarations struct {
	Data      map[string]DataFunc
	ParamData map[string]ParamData
	Computed  map[string]DataFunc
	Subscribe map[string]Params

	// Lazy waits for Start instead of launching on creation.
	Lazy bool
	// NoSSR skips launching on the server.
	NoSSR bool
}

// Merge returns d with the entries of other added, other winning on
// conflicting keys. Flags are or-ed.
func (d Declarations) Merge(other Declarations) Declarations {
	return Declarations{
		Data:      mergeMaps(d.Data, other.Data),
		ParamData: mergeMaps(d.ParamData, other.ParamData),
		Computed:  mergeMaps(d.Computed, other.Computed),
		Subscribe: mergeMaps(d.Subscribe, other.Subscribe),
		Lazy:      d.Lazy || other.Lazy,
		NoSSR:     d.NoSSR || other.NoSSR,
	}
}

func mergeMaps[V any](a, b map[string]V) map[string]V {
	if a == nil && b == nil {
		return nil
	}

	out := make(map[string]V, len(a)+len(b))
	maps.Copy(out, a)
	maps.Copy(out, b)
	return out
}

// Validate checks functions are set and that no key is declared twice.
func (d Declarations) Validate() error {
	seen := map[string]string{}
	claim := func(key, kind string) error {
		if key == "" {
			return newConfigError(ErrCodeMissingName, "", "%s declared without a name", kind)
		}
		if strings.HasPrefix(key, "$") {
			return newConfigError(ErrCodeReservedKey, key, "keys starting with $ are reserved")
		}
		if other, ok := seen[key]; ok {
			return newConfigError(ErrCodeDuplicateKey, key, "%s already declared as %s", kind, other)
		}
		seen[key] = kind
		return nil
	}

	for _, key := range sortedKeys(d.Data) {
		if err := claim(key, "data"); err != nil {
			return err
		}
		if d.Data[key] == nil {
			return newConfigError(ErrCodeMissingFunction, key, "data declared without a function")
		}
	}

	for _, key := range sortedKeys(d.ParamData) {
		if err := claim(key, "param data"); err != nil {
			return err
		}
		if d.ParamData[key].Update == nil {
			return newConfigError(ErrCodeMissingFunction, key, "param data declared without an update function")
		}
		if d.ParamData[key].Deep && d.ParamData[key].Params == nil {
			return newConfigError(ErrCodeInvalidDeclaration, key, "deep comparison needs a params function")
		}
	}

	for _, key := range sortedKeys(d.Computed) {
		if err := claim(key, "computed"); err != nil {
			return err
		}
		if d.Computed[key] == nil {
			return newConfigError(ErrCodeMissingFunction, key, "computed declared without a function")
		}
	}

	// subscriptions live in their own namespace
	for _, key := range sortedKeys(d.Subscribe) {
		if key == "" {
			return newConfigError(ErrCodeMissingName, "", "subscription declared without a name")
		}
	}

	return nil
}

// dataKeys returns the keys published in the data map, sorted.
func (d Declarations) dataKeys() []string {
	keys := slices.Collect(maps.Keys(d.Data))
	keys = slices.AppendSeq(keys, maps.Keys(d.ParamData))
	slices.Sort(keys)
	return keys
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
