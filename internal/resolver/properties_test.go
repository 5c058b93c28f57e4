package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var ruleLevels = []string{"off", "warn", "error"}

func drawFragment(t *rapid.T, label string) Config {
	keys := rapid.SliceOfNDistinct(rapid.SampledFrom([]string{"k1", "k2", "k3", "k4"}), 0, 4, rapid.ID[string]).Draw(t, label+"Keys")
	fragment := Config{}
	for _, key := range keys {
		if rapid.Bool().Draw(t, label+"Nested") {
			fragment[key] = map[string]any{
				rapid.SampledFrom([]string{"a", "b"}).Draw(t, label+"Inner"): rapid.SampledFrom(ruleLevels).Draw(t, label+"Level"),
			}
			continue
		}
		fragment[key] = rapid.SampledFrom(ruleLevels).Draw(t, label+"Value")
	}
	return fragment
}

func TestPropertyDeterminism(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		base := drawFragment(t, "base")
		base["mode"] = When(Equals("MODE", "production"), "warn", "off")

		layerCount := rapid.IntRange(0, 4).Draw(t, "layerCount")
		layers := make([]Layer, 0, layerCount)
		for i := 0; i < layerCount; i++ {
			layers = append(layers, Layer{
				Patterns: []string{rapid.SampledFrom([]string{"*.ts", "src/**", "*.vue", "test-file"}).Draw(t, "pattern")},
				Fragment: drawFragment(t, "layer"),
			})
		}

		env := Env{}
		if rapid.Bool().Draw(t, "production") {
			env["MODE"] = "production"
		}
		ctx := Context{
			Path: rapid.SampledFrom([]string{"src/a.ts", "lib/b.vue", "README.md", ""}).Draw(t, "path"),
		}

		first, err := Resolve(base, layers, env, ctx)
		require.NoError(t, err)
		second, err := Resolve(base, layers, env, ctx)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})
}

func TestPropertyNoOverrideIdentity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		base := drawFragment(t, "base")
		path := rapid.SampledFrom([]string{"src/a.ts", "b.vue", ""}).Draw(t, "path")

		got, err := Resolve(base, nil, nil, Context{Path: path})
		require.NoError(t, err)
		assert.Equal(t, base.Copy(), got)
	})
}

func TestPropertyLastApplicableLayerWins(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		first := rapid.SampledFrom(ruleLevels).Draw(t, "first")
		second := rapid.SampledFrom(ruleLevels).Draw(t, "second")

		layers := []Layer{
			{Patterns: []string{"*.ts"}, Fragment: Config{"k": first, "m": map[string]any{"a": first}}},
			{Patterns: []string{"src/**"}, Fragment: Config{"k": second, "m": map[string]any{"b": second}}},
		}

		got, err := Resolve(Config{"k": "base"}, layers, nil, Context{Path: "src/main.ts"})
		require.NoError(t, err)
		assert.Equal(t, second, got["k"])
		assert.Equal(t, map[string]any{"a": first, "b": second}, got["m"])
	})
}

func TestPropertyNonMatchingLayerIsolation(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		base := drawFragment(t, "base")
		stray := drawFragment(t, "stray")
		stray["only-in-layer"] = true

		withLayer, err := Resolve(base, []Layer{{Patterns: []string{"*.vue", "framework-file"}, Fragment: stray}}, nil, Context{Path: "src/a.ts", Tags: []string{"test-file"}})
		require.NoError(t, err)
		without, err := Resolve(base, nil, nil, Context{Path: "src/a.ts", Tags: []string{"test-file"}})
		require.NoError(t, err)
		assert.Equal(t, without, withLayer)
	})
}
