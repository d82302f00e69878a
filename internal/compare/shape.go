package compare

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/roach88/epsync/internal/ir"
)

// shape reduces a normalized nested value to the fields epsync writes.
// The server echoes nested objects back with its own ids and type tags,
// and returns id lists in whatever order it stores them.
type shape func(any) any

// fields keeps only the named keys of a map, shaping each kept value.
// A nil shape keeps the value as is.
func fields(keep map[string]shape) shape {
	return func(v any) any {
		m, ok := v.(map[string]any)
		if !ok {
			return v
		}
		out := make(map[string]any, len(keep))
		for k, s := range keep {
			fv, ok := m[k]
			if !ok {
				continue
			}
			if s != nil {
				fv = s(fv)
			}
			out[k] = fv
		}
		return out
	}
}

// each shapes every element of a list.
func each(s shape) shape {
	return func(v any) any {
		list, ok := v.([]any)
		if !ok {
			return v
		}
		out := make([]any, len(list))
		for i, el := range list {
			out[i] = s(el)
		}
		return out
	}
}

// sortedStrings orders a list of ids. Lists holding anything other than
// strings are left alone.
func sortedStrings(v any) any {
	list, ok := v.([]any)
	if !ok {
		return v
	}
	ids := make([]string, 0, len(list))
	for _, el := range list {
		s, ok := el.(string)
		if !ok {
			return v
		}
		ids = append(ids, s)
	}
	slices.Sort(ids)
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

// sortedBy orders a list of maps by the string form of one field.
func sortedBy(field string) shape {
	return func(v any) any {
		list, ok := v.([]any)
		if !ok {
			return v
		}
		out := slices.Clone(list)
		slices.SortStableFunc(out, func(a, b any) int {
			return cmp.Compare(sortKey(a, field), sortKey(b, field))
		})
		return out
	}
}

func sortKey(v any, field string) string {
	if m, ok := v.(map[string]any); ok {
		if f, ok := m[field]; ok {
			return fmt.Sprint(f)
		}
	}
	return ""
}

// then applies shapes left to right.
func then(shapes ...shape) shape {
	return func(v any) any {
		for _, s := range shapes {
			v = s(v)
		}
		return v
	}
}

var (
	enumValues = each(fields(map[string]shape{"label": nil, "value": nil}))

	deliveryDescriptor = fields(map[string]shape{
		"brokerType": nil,
		"address": fields(map[string]shape{
			"addressType": nil,
			"addressLevels": each(fields(map[string]shape{
				"name":             nil,
				"addressLevelType": nil,
				"enumVersionId":    nil,
			})),
		}),
	})

	// Delimiter and enum domain ids are inputs for building address
	// levels; the server only hands back the levels themselves.
	topicDomains = then(
		each(fields(map[string]shape{"brokerType": nil, "topicString": nil})),
		sortedBy("topicString"),
	)
)

var shapes = map[ir.EntityType]map[string]shape{
	ir.TypeApplicationDomain: {"topicDomains": topicDomains},
	ir.TypeEnumVersion:       {"values": enumValues},
	ir.TypeEventVersion:      {"deliveryDescriptor": deliveryDescriptor},
	ir.TypeApplicationVersion: {
		"declaredProducedEventVersionIds": sortedStrings,
		"declaredConsumedEventVersionIds": sortedStrings,
	},
	ir.TypeEventAPIVersion: {
		"producedEventVersionIds": sortedStrings,
		"consumedEventVersionIds": sortedStrings,
	},
}

// shaped returns the form of a normalized value Diff compares.
func (c Comparator) shaped(key string, v any) any {
	if s, ok := shapes[c.Type][key]; ok && v != nil {
		return s(v)
	}
	return v
}
