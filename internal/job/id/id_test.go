package id

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerate_Format(t *testing.T) {
	got := Generate()
	assert.Regexp(t, regexp.MustCompile(`^job-\d+-[0-9a-f]{8}$`), got)
}

func TestGenerate_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		jobID := Generate()
		assert.False(t, seen[jobID], "duplicate id %s", jobID)
		seen[jobID] = true
	}
}
