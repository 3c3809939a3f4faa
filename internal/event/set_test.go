package event

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlagSet_SentinelEncoding(t *testing.T) {
	s := NewFlagSet(FlagAFK, FlagMuteUser)

	data, err := json.Marshal(s)
	require.NoError(t, err)

	// The wire form is a keyed object tagged with the set marker.
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, true, raw["__set__"])
	assert.Contains(t, raw, "afk")
	assert.Contains(t, raw, "mute.user")

	var back FlagSet
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, s.Equal(back))
}

func TestFlagSet_RejectsPlainObject(t *testing.T) {
	var s FlagSet
	err := json.Unmarshal([]byte(`{"afk": null}`), &s)
	assert.Error(t, err)
}

func TestIDSet_CoercesStringKeys(t *testing.T) {
	var s IDSet
	require.NoError(t, json.Unmarshal([]byte(`{"__set__": true, "42": null, "7": null}`), &s))
	assert.True(t, s.Has(42))
	assert.True(t, s.Has(7))
	assert.Len(t, s, 2)

	data, err := json.Marshal(s)
	require.NoError(t, err)
	var back IDSet
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, s, back)
}

func TestFlagSet_EqualTreatsNilAsEmpty(t *testing.T) {
	assert.True(t, FlagSet(nil).Equal(FlagSet{}))
	assert.False(t, NewFlagSet(FlagStream).Equal(nil))
}
