// Package glob compiles path glob patterns, including brace alternatives and
// extglob groups, into matchers. Matching is a pure function of pattern and
// path; nothing touches the filesystem.
package glob
