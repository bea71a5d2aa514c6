package event

import (
	"encoding/json"
	"sort"
)

// Canonicalize takes arbitrary JSON bytes and returns a deterministic
// re-encoding: map keys sorted, arrays order-preserved, no insignificant
// whitespace. Applied to every free-form payload (game_parameters,
// move_data, final_state) before it is embedded in a signed event, so two
// parties hashing the same logical content always get the same bytes.
func Canonicalize(raw []byte) ([]byte, error) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return json.Marshal(canonicalizeValue(v))
}

func canonicalizeValue(v interface{}) interface{} {
	switch vv := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(vv))
		for k := range vv {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ordered := make(orderedMap, 0, len(vv))
		for _, k := range keys {
			ordered = append(ordered, orderedEntry{key: k, value: canonicalizeValue(vv[k])})
		}
		return ordered
	case []interface{}:
		out := make([]interface{}, len(vv))
		for i, e := range vv {
			out[i] = canonicalizeValue(e)
		}
		return out
	default:
		return vv
	}
}

// orderedMap preserves the sorted key order produced above through
// json.Marshal — a plain map[string]interface{} would let
// encoding/json re-sort (harmlessly, since Go already sorts map keys on
// marshal) but we make the ordering an explicit invariant here rather
// than an implementation detail of encoding/json.
type orderedEntry struct {
	key   string
	value interface{}
}

type orderedMap []orderedEntry

func (m orderedMap) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, e := range m {
		if i > 0 {
			buf = append(buf, ',')
		}
		keyJSON, err := json.Marshal(e.key)
		if err != nil {
			return nil, err
		}
		buf = append(buf, keyJSON...)
		buf = append(buf, ':')
		valJSON, err := json.Marshal(e.value)
		if err != nil {
			return nil, err
		}
		buf = append(buf, valJSON...)
	}
	buf = append(buf, '}')
	return buf, nil
}
