// Package resolver computes effective configurations from a base
// configuration, ordered override layers scoped by glob patterns or context
// tags, and an environment snapshot. Resolution is pure: it performs no I/O,
// does not log and never mutates its inputs, so a Resolver may be shared
// across goroutines.
package resolver
