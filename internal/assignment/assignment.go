// Package assignment models the coordinator-issued document that tells a
// consumer group member which channels it owns, and the TTL'd Redis-backed
// store that holds it.
package assignment

import (
	"encoding/json"
	"sort"

	"gopkg.in/yaml.v3"
)

// Assignment carries the set of channels owned by one group member, and
// optionally a partition count per channel. The core compares assignments
// only through Equal, which compares the sorted channel list and the
// partition map.
type Assignment struct {
	Channels   []string       `json:"channels" yaml:"channels"`
	Partitions map[string]int `json:"partitions,omitempty" yaml:"partitions,omitempty"`
}

// Equal reports whether a and other carry the same channel set and
// partition map. Channel order is not significant.
func (a Assignment) Equal(other Assignment) bool {
	ac, oc := a.canonicalChannels(), other.canonicalChannels()
	if len(ac) != len(oc) {
		return false
	}
	for i := range ac {
		if ac[i] != oc[i] {
			return false
		}
	}
	if len(a.Partitions) != len(other.Partitions) {
		return false
	}
	for ch, n := range a.Partitions {
		if other.Partitions[ch] != n {
			return false
		}
	}
	return true
}

func (a Assignment) canonicalChannels() []string {
	out := make([]string, len(a.Channels))
	copy(out, a.Channels)
	sort.Strings(out)
	return out
}

// ChannelSet returns the assignment's channels as a set for diffing.
func (a Assignment) ChannelSet() map[string]struct{} {
	set := make(map[string]struct{}, len(a.Channels))
	for _, ch := range a.Channels {
		set[ch] = struct{}{}
	}
	return set
}

// Encode serializes the assignment for storage. JSON is the wire format
// the store and the external coordinator share.
func Encode(a Assignment) ([]byte, error) {
	return json.Marshal(a)
}

// Decode deserializes an assignment previously produced by Encode.
// Errors here are fatal to the caller: a present key that fails to decode
// indicates corrupt state, not an absent assignment.
func Decode(data []byte) (Assignment, error) {
	var a Assignment
	err := json.Unmarshal(data, &a)
	return a, err
}

// DecodeYAML reads an assignment document from a YAML fixture. The CLI
// does not call it; only tests use it.
func DecodeYAML(data []byte) (Assignment, error) {
	var a Assignment
	err := yaml.Unmarshal(data, &a)
	return a, err
}

// EncodeYAML is the YAML counterpart to Encode, for fixture generation.
func EncodeYAML(a Assignment) ([]byte, error) {
	return yaml.Marshal(a)
}
