package event

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// setMarker tags set-valued objects in the snapshot format. JSON has no native
// set type, so a set is encoded as an object with this sentinel key and each
// member as a null-valued key.
const setMarker = "__set__"

// FlagSet is an unordered set of flag tags.
type FlagSet map[string]struct{}

// NewFlagSet builds a FlagSet from the given tags.
func NewFlagSet(flags ...string) FlagSet {
	s := make(FlagSet, len(flags))
	for _, f := range flags {
		s[f] = struct{}{}
	}
	return s
}

func (s FlagSet) Has(flag string) bool {
	_, ok := s[flag]
	return ok
}

// Equal reports whether both sets hold the same members. A nil set equals an
// empty one.
func (s FlagSet) Equal(other FlagSet) bool {
	if len(s) != len(other) {
		return false
	}
	for f := range s {
		if _, ok := other[f]; !ok {
			return false
		}
	}
	return true
}

func (s FlagSet) Clone() FlagSet {
	if s == nil {
		return nil
	}
	out := make(FlagSet, len(s))
	for f := range s {
		out[f] = struct{}{}
	}
	return out
}

// MarshalJSON encodes the set in sentinel form with sorted members.
func (s FlagSet) MarshalJSON() ([]byte, error) {
	members := make([]string, 0, len(s))
	for f := range s {
		members = append(members, f)
	}
	sort.Strings(members)

	obj := make(map[string]any, len(members)+1)
	obj[setMarker] = true
	for _, f := range members {
		obj[f] = nil
	}
	return json.Marshal(obj)
}

func (s *FlagSet) UnmarshalJSON(data []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("flag set: %w", err)
	}
	if _, ok := obj[setMarker]; !ok {
		return fmt.Errorf("flag set: missing %q marker", setMarker)
	}
	out := make(FlagSet, len(obj)-1)
	for key := range obj {
		if key != setMarker {
			out[key] = struct{}{}
		}
	}
	*s = out
	return nil
}

// IDSet is an unordered set of int64 identifiers (users or channels).
type IDSet map[int64]struct{}

func NewIDSet(ids ...int64) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s IDSet) Has(id int64) bool {
	_, ok := s[id]
	return ok
}

func (s IDSet) Add(id int64) {
	s[id] = struct{}{}
}

func (s IDSet) Remove(id int64) {
	delete(s, id)
}

func (s IDSet) Clone() IDSet {
	if s == nil {
		return nil
	}
	out := make(IDSet, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

// MarshalJSON encodes the set in sentinel form. Members become string keys,
// sorted numerically for deterministic output.
func (s IDSet) MarshalJSON() ([]byte, error) {
	members := make([]int64, 0, len(s))
	for id := range s {
		members = append(members, id)
	}
	sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })

	obj := make(map[string]any, len(members)+1)
	obj[setMarker] = true
	for _, id := range members {
		obj[strconv.FormatInt(id, 10)] = nil
	}
	return json.Marshal(obj)
}

// UnmarshalJSON decodes sentinel form, coercing member keys back from their
// JSON string representation.
func (s *IDSet) UnmarshalJSON(data []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("id set: %w", err)
	}
	if _, ok := obj[setMarker]; !ok {
		return fmt.Errorf("id set: missing %q marker", setMarker)
	}
	out := make(IDSet, len(obj)-1)
	for key := range obj {
		if key == setMarker {
			continue
		}
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return fmt.Errorf("id set: member %q: %w", key, err)
		}
		out[id] = struct{}{}
	}
	*s = out
	return nil
}
