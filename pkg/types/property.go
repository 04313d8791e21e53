package types

// PropertyBag is the vocabulary-keyed metadata map carried by content
// resources: term key → list of value records. Three key families exist:
// vocabulary terms of the form prefix:localName (dcterms:title), reserved
// relational keys prefixed o: (o:item_set), and JSON-LD keywords prefixed @.
type PropertyBag map[string]any

// PropertyRefKey is the wire field naming a value's property reference.
const PropertyRefKey = "property_id"

// PropertyRefAuto marks a property reference to be resolved from the term
// key at write time.
const PropertyRefAuto = "auto"

// IsReservedKey reports whether a bag key is outside the vocabulary-term
// namespace: JSON-LD keywords, o:-prefixed relational keys, and keys with
// no prefix separator at all.
func IsReservedKey(key string) bool {
	if key == "" {
		return true
	}
	if key[0] == '@' {
		return true
	}
	if len(key) >= 2 && key[0] == 'o' && key[1] == ':' {
		return true
	}
	for i := 0; i < len(key); i++ {
		if key[i] == ':' {
			return false
		}
	}
	return true
}

// Normalize returns a copy of the bag where every vocabulary-term value
// record carries a property reference, defaulting to PropertyRefAuto.
// Reserved keys, non-list values, non-record list elements, and records
// that already declare a reference pass through untouched. The input is
// never mutated; the function is idempotent.
func (b PropertyBag) Normalize() PropertyBag {
	out := make(PropertyBag, len(b))
	for key, value := range b {
		if IsReservedKey(key) {
			out[key] = value
			continue
		}
		list, ok := value.([]any)
		if !ok {
			out[key] = value
			continue
		}
		normalized := make([]any, len(list))
		for i, element := range list {
			record, ok := element.(map[string]any)
			if !ok {
				normalized[i] = element
				continue
			}
			if _, has := record[PropertyRefKey]; has {
				normalized[i] = element
				continue
			}
			withRef := make(map[string]any, len(record)+1)
			withRef[PropertyRefKey] = PropertyRefAuto
			for k, v := range record {
				withRef[k] = v
			}
			normalized[i] = withRef
		}
		out[key] = normalized
	}
	return out
}
