package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_UnknownKey_InSection(t *testing.T) {
	path := writeTestConfig(t, "[destination]\nbuckt = \"archive\"\n")

	_, err := Load(path, testLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown config key "destination.buckt"`)
	assert.Contains(t, err.Error(), `did you mean "bucket"?`)
}

func TestLoad_UnknownSection(t *testing.T) {
	path := writeTestConfig(t, "[sorce]\nscopes = [\"x\"]\n")

	_, err := Load(path, testLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did you mean [source]?")
	// The table and its key collapse into one report.
	assert.Equal(t, 1, strings.Count(err.Error(), "unknown config key"))
}

func TestLoad_UnknownKey_TopLevel(t *testing.T) {
	path := writeTestConfig(t, `completely_unrelated = "value"`)

	_, err := Load(path, testLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown config key")
	assert.NotContains(t, err.Error(), "did you mean")
}

func TestLoad_UnknownKey_NoSuggestion(t *testing.T) {
	path := writeTestConfig(t, "[transfers]\nparallel_uploads_everywhere = 4\n")

	_, err := Load(path, testLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown config key")
	assert.NotContains(t, err.Error(), "did you mean")
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b     string
		expected int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"abc", "abc", 0},
		{"abc", "abd", 1},
		{"buckt", "bucket", 1},
		{"chunksize", "chunk_size", 1},
	}

	for _, tt := range tests {
		t.Run(tt.a+"_"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.expected, levenshtein(tt.a, tt.b))
		})
	}
}

func TestClosestMatch(t *testing.T) {
	assert.Equal(t, "storage_class", closestMatch("storage_clas", knownSectionKeys["destination"]))
	assert.Equal(t, "journal", closestMatch("jornal", knownSections))
	assert.Empty(t, closestMatch("zzzzzzzzzz", knownSections))
}
