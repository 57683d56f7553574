package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCardinality(t *testing.T) {
	cases := []struct {
		in   string
		want Cardinality
		ok   bool
	}{
		{"", CardinalityMany, true},
		{"many", CardinalityMany, true},
		{"MANY", CardinalityMany, true},
		{"one", CardinalityOne, true},
		{" One ", CardinalityOne, true},
		{"batch", CardinalityMany, false},
	}

	for _, c := range cases {
		got, ok := ParseCardinality(c.in)
		assert.Equal(t, c.want, got, "input %q", c.in)
		assert.Equal(t, c.ok, ok, "input %q", c.in)
	}
}

func TestParseOnErrorPolicy(t *testing.T) {
	cases := []struct {
		in   string
		want OnErrorPolicy
		ok   bool
	}{
		{"", OnErrorSkip, true},
		{"skip", OnErrorSkip, true},
		{"halt", OnErrorHalt, true},
		{"HALT", OnErrorHalt, true},
		{"retry-forever", OnErrorSkip, false},
	}

	for _, c := range cases {
		got, ok := ParseOnErrorPolicy(c.in)
		assert.Equal(t, c.want, got, "input %q", c.in)
		assert.Equal(t, c.ok, ok, "input %q", c.in)
	}
}

func TestParseStartPosition(t *testing.T) {
	cases := []struct {
		in   string
		want StartPosition
		ok   bool
	}{
		{"", StartEarliest, true},
		{"earliest", StartEarliest, true},
		{"latest", StartLatest, true},
		{"Latest", StartLatest, true},
		{"yesterday", StartEarliest, false},
	}

	for _, c := range cases {
		got, ok := ParseStartPosition(c.in)
		assert.Equal(t, c.want, got, "input %q", c.in)
		assert.Equal(t, c.ok, ok, "input %q", c.in)
	}
}

func TestEnumValidity(t *testing.T) {
	assert.True(t, CardinalityOne.Valid())
	assert.True(t, CardinalityMany.Valid())
	assert.False(t, Cardinality("batch").Valid())

	assert.True(t, OnErrorSkip.Valid())
	assert.True(t, OnErrorHalt.Valid())
	assert.False(t, OnErrorPolicy("panic").Valid())

	assert.True(t, InvocationSucceeded.Valid())
	assert.True(t, InvocationFailed.Valid())
	assert.True(t, InvocationSkipped.Valid())
	assert.False(t, InvocationStatus("partial").Valid())
}
