package sitemask

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartitionSites(t *testing.T) {
	known := map[string]Status{
		"A": Active,
		"B": Banned,
		"P": Probing,
		"C": Active,
	}
	p := PartitionSites([]string{"X", "C", "B", "A", "P", "A"}, known)
	assert.Equal(t, Partition{
		Active:  []string{"A", "C"},
		Banned:  []string{"B"},
		Invalid: []string{"P", "X"},
	}, p)
}

func TestPartitionSites_CoversInputExactly(t *testing.T) {
	known := map[string]Status{"A": Active, "B": Banned, "P": Probing}
	inputs := [][]string{
		{},
		{"A"},
		{"Z", "Z"},
		{"A", "B", "P", "Q", "R"},
	}
	for _, input := range inputs {
		p := PartitionSites(input, known)
		seen := map[string]int{}
		for _, set := range [][]string{p.Active, p.Banned, p.Invalid} {
			for _, s := range set {
				seen[s]++
			}
		}
		expected := map[string]int{}
		for _, s := range input {
			expected[s] = 1
		}
		assert.Equal(t, expected, seen, "input %v", input)
	}
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus(" banned ")
	require.NoError(t, err)
	assert.Equal(t, Banned, s)

	_, err = ParseStatus("Offline")
	assert.Error(t, err)
}

func TestParseFilter(t *testing.T) {
	f, err := ParseFilter("")
	require.NoError(t, err)
	assert.Equal(t, All, f)

	f, err = ParseFilter("probing")
	require.NoError(t, err)
	assert.True(t, f.Matches(Probing))
	assert.False(t, f.Matches(Active))
	assert.True(t, All.Matches(Banned))

	_, err = ParseFilter("nope")
	assert.Error(t, err)
}

func TestFilterEntries(t *testing.T) {
	entries := []Entry{
		{Site: "C", Status: Active},
		{Site: "A", Status: Active},
		{Site: "B", Status: Banned},
	}
	assert.Equal(t, []Entry{{Site: "A", Status: Active}, {Site: "C", Status: Active}}, FilterEntries(entries, Filter(Active)))
	assert.Len(t, FilterEntries(entries, All), 3)
}

func TestUnknownSite(t *testing.T) {
	assert.True(t, IsUnknownSite(UnknownSite("X")))
	assert.False(t, IsUnknownSite(nil))
}
