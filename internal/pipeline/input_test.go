package pipeline

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/tour-ingest/internal/tour"
)

func TestReadURLsFilters(t *testing.T) {
	t.Parallel()

	input := strings.Join([]string{
		"# operator list",
		"",
		"https://tours.example.com/reef",
		"   https://tours.example.com/sunset  ",
		"ftp://tours.example.com/file",
		"not a url",
		"https://tours.example.com/reef",
		"HTTP://tours.example.com/upper",
	}, "\n")

	urls, err := ReadURLs(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://tours.example.com/reef",
		"https://tours.example.com/sunset",
		"HTTP://tours.example.com/upper",
	}, urls)
}

func TestLoadURLsMissingFile(t *testing.T) {
	t.Parallel()

	_, err := LoadURLs(filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
	assert.ErrorIs(t, err, tour.ErrInputNotFound)
}

func TestCleanURLs(t *testing.T) {
	t.Parallel()

	assert.Equal(t,
		[]string{"https://a.example.com"},
		CleanURLs([]string{"https://a.example.com", "#x", "https://a.example.com"}),
	)
	assert.Empty(t, CleanURLs(nil))
}

func TestConfigHintsForCanonicalURL(t *testing.T) {
	t.Parallel()

	cfg := Config{PriceHints: map[string]tour.PriceHints{
		"https://tours.example.com/reef": {Adult: "$10"},
	}}
	assert.Equal(t, "$10", cfg.hintsFor("https://TOURS.example.com/reef/?utm_source=x").Adult)
	assert.True(t, cfg.hintsFor("https://other.example.com").Empty())
}
