package slug

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

var slugRe = regexp.MustCompile(`^[a-z]+-[a-z]+-[a-z]+-[0-9a-f]{4}$`)

func TestGenerator_Generate(t *testing.T) {
	g := New()
	for i := 0; i < 100; i++ {
		s := g.Generate()
		assert.Regexp(t, slugRe, s)
	}
}

func TestGenerator_Generate_NotConstant(t *testing.T) {
	g := New()
	seen := map[string]struct{}{}
	for i := 0; i < 50; i++ {
		seen[g.Generate()] = struct{}{}
	}
	// 16*16*16*65536 combinations; 50 draws colliding into one value
	// would mean the random source is broken
	assert.Greater(t, len(seen), 1)
}
