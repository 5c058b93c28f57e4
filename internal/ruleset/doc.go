// Package ruleset decodes rule-set documents (YAML, or JSON as its subset)
// into resolver inputs. Mappings carrying $if/$then/$else become conditional
// values and {$ref: path} mappings become references; override entries use
// files, name and append for the layer itself and every other key as the
// configuration fragment.
package ruleset
