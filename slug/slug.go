// Package slug mints human-readable site identifiers of the form
// adjective-adjective-noun-hex4. Generation gives no uniqueness guarantee;
// the registry's unique slug index enforces it at insert.
package slug

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/anyproto/any-sync/app"
)

const CName = "slug"

var (
	adjectives = []string{
		"bright", "quiet", "swift", "bold", "calm", "vivid", "cool", "warm",
		"fast", "slow", "dark", "light", "wild", "tame", "pure", "rich",
	}
	nouns = []string{
		"canvas", "river", "forest", "mountain", "cloud", "ocean", "wind", "star",
		"leaf", "stone", "fire", "ice", "bird", "wolf", "moon", "dream",
	}
)

func New() Generator {
	return new(generator)
}

type Generator interface {
	Generate() string
	app.Component
}

type generator struct{}

func (g *generator) Init(a *app.App) (err error) {
	return
}

func (g *generator) Name() (name string) {
	return CName
}

func (g *generator) Generate() string {
	var suffix [2]byte
	if _, err := rand.Read(suffix[:]); err != nil {
		// crypto/rand failing means the process has no usable entropy source
		panic(err)
	}
	return fmt.Sprintf("%s-%s-%s-%s",
		adjectives[randInt(len(adjectives))],
		adjectives[randInt(len(adjectives))],
		nouns[randInt(len(nouns))],
		hex.EncodeToString(suffix[:]),
	)
}

func randInt(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic(err)
	}
	return int(v.Int64())
}
