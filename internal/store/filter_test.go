package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFilter_ExactAndSubstringOps(t *testing.T) {
	f, err := ParseFilter("node_name=train")
	require.NoError(t, err)
	assert.Equal(t, Filter{Field: "node_name", Op: "=", Value: "train"}, f)

	f, err = ParseFilter("command~python")
	require.NoError(t, err)
	assert.Equal(t, Filter{Field: "command", Op: "~", Value: "python"}, f)
}

func TestParseFilter_FirstOperatorWins(t *testing.T) {
	// "=" occurs before "~" in the value here; the field name itself
	// never contains either operator character.
	f, err := ParseFilter("command=a~b")
	require.NoError(t, err)
	assert.Equal(t, "=", f.Op)
	assert.Equal(t, "a~b", f.Value)
}

func TestParseFilter_RejectsUnknownField(t *testing.T) {
	_, err := ParseFilter("bogus=value")
	require.Error(t, err)
}

func TestParseFilter_RejectsMissingOperator(t *testing.T) {
	_, err := ParseFilter("node_name")
	require.Error(t, err)
}

func TestParseFilter_AcceptsStatusField(t *testing.T) {
	f, err := ParseFilter("status=RUNNING")
	require.NoError(t, err)
	assert.Equal(t, "status", f.Field)
}
