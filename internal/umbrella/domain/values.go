package domain

import "strings"

// GlobalScope is the values block Helm shares with every sub-chart.
const GlobalScope = "global"

// Values is a tree of override values. Leaves are strings, inner nodes are Values.
type Values map[string]any

// ValuesOverrides holds extra values for the global block and per service.
type ValuesOverrides struct {
	Global   Values
	Services map[string]Values
}

// Empty reports whether there are no overrides at all.
func (o ValuesOverrides) Empty() bool {
	return len(o.Global) == 0 && len(o.Services) == 0
}

// For returns the override tree for a service (nil when none).
func (o ValuesOverrides) For(name string) Values {
	if o.Services == nil {
		return nil
	}
	return o.Services[name]
}

// Set stores value at path inside scope ("global" or a service name). A leaf
// met on the way down is replaced by a node; the final segment always
// becomes a leaf. Paths with empty segments are ignored.
func (o *ValuesOverrides) Set(scope string, path []string, value string) {
	if len(path) == 0 {
		return
	}
	for _, seg := range path {
		if seg == "" {
			return
		}
	}

	var root Values
	if scope == GlobalScope {
		if o.Global == nil {
			o.Global = Values{}
		}
		root = o.Global
	} else {
		if o.Services == nil {
			o.Services = make(map[string]Values)
		}
		root = o.Services[scope]
		if root == nil {
			root = Values{}
			o.Services[scope] = root
		}
	}

	current := root
	for _, seg := range path[:len(path)-1] {
		next, ok := current[seg].(Values)
		if !ok {
			next = Values{}
			current[seg] = next
		}
		current = next
	}
	current[path[len(path)-1]] = value
}

// SplitValuesKey splits "scope/a/b" into ("scope", ["a", "b"]).
func SplitValuesKey(rel string) (string, []string) {
	parts := strings.Split(rel, "/")
	return parts[0], parts[1:]
}
