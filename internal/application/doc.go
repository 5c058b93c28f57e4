// Package application wires the layerconf service together: it loads the
// configured rule-set files into the store, builds the API handler, router
// and HTTP server, and optionally watches rule-set files for changes.
package application
