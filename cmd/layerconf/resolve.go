package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/eugenenazirov/layerconf/internal/resolver"
	"github.com/eugenenazirov/layerconf/internal/ruleset"
)

const (
	formatYAML = "yaml"
	formatJSON = "json"
)

type resolveOptions struct {
	RuleSet string
	Path    string
	Tags    []string
	Env     []string
	Format  string
}

// runResolve loads one rule-set file, resolves it for the given path and
// tags, and writes the effective configuration to out.
func runResolve(opts resolveOptions, env resolver.Env, out io.Writer) error {
	overlay, err := parseEnvOverrides(opts.Env)
	if err != nil {
		return err
	}
	merged := make(resolver.Env, len(env)+len(overlay))
	for k, v := range env {
		merged[k] = v
	}
	for k, v := range overlay {
		merged[k] = v
	}

	doc, err := ruleset.LoadFile(opts.RuleSet)
	if err != nil {
		return err
	}
	compiled, err := doc.Compile()
	if err != nil {
		return fmt.Errorf("%s: %w", opts.RuleSet, err)
	}

	effective, err := compiled.Resolve(merged, resolver.Context{Path: opts.Path, Tags: opts.Tags})
	if err != nil {
		return fmt.Errorf("%s: %w", opts.RuleSet, err)
	}

	switch opts.Format {
	case formatJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(effective)
	case formatYAML, "":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(map[string]any(effective)); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q", opts.Format)
	}
}

func parseEnvOverrides(pairs []string) (resolver.Env, error) {
	env := make(resolver.Env, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --env %q, expected KEY=VALUE", pair)
		}
		env[key] = value
	}
	return env, nil
}
