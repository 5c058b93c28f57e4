package glob

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		pattern string
		path    string
		want    bool
	}{
		{name: "BaseNameExtension", pattern: "*.ts", path: "src/app/main.ts", want: true},
		{name: "BaseNameExtensionMismatch", pattern: "*.ts", path: "src/app/main.tsx", want: false},
		{name: "StarStaysInSegment", pattern: "src/*.js", path: "src/nested/a.js", want: false},
		{name: "StarWithinSegment", pattern: "src/*.js", path: "src/a.js", want: true},
		{name: "GlobstarZeroDirs", pattern: "src/**/*.js", path: "src/a.js", want: true},
		{name: "GlobstarManyDirs", pattern: "src/**/*.js", path: "src/a/b/c.js", want: true},
		{name: "LeadingGlobstar", pattern: "**/__tests__/*.js", path: "__tests__/a.js", want: true},
		{name: "TrailingGlobstar", pattern: "packages/**", path: "packages/app/src/main.ts", want: true},
		{name: "QuestionMark", pattern: "file?.md", path: "file1.md", want: true},
		{name: "QuestionMarkNoSlash", pattern: "a?b/c", path: "a/b/c", want: false},
		{name: "CharacterClass", pattern: "*.[jt]s", path: "x.ts", want: true},
		{name: "CharacterClassMiss", pattern: "*.[jt]s", path: "x.cs", want: false},
		{name: "NegatedClass", pattern: "[!a]*", path: "bcd", want: true},
		{name: "NegatedClassMiss", pattern: "[!a]*", path: "abc", want: false},
		{name: "NegatedClassNeverMatchesSeparator", pattern: "dir/a[!x]b", path: "dir/a/b", want: false},
		{name: "Range", pattern: "v[0-9].txt", path: "v7.txt", want: true},
		{name: "EscapedDashInClass", pattern: `[a\-z].ts`, path: "-.ts", want: true},
		{name: "EscapedDashInClassEnd", pattern: `[a\-z].ts`, path: "z.ts", want: true},
		{name: "EscapedDashIsNotRange", pattern: `[a\-z].ts`, path: "b.ts", want: false},
		{name: "EscapedCaretInClass", pattern: `[\^x].md`, path: "^.md", want: true},
		{name: "EscapedBracketInClass", pattern: `[\]a].md`, path: "].md", want: true},
		{name: "Braces", pattern: "*.{js,vue}", path: "App.vue", want: true},
		{name: "NestedBraces", pattern: "*.{j{s,sx},ts}", path: "a.jsx", want: true},
		{name: "OptionalGroup", pattern: "*.ts?(x)", path: "a.tsx", want: true},
		{name: "OptionalGroupAbsent", pattern: "*.ts?(x)", path: "a.ts", want: true},
		{name: "ExactlyOneGroup", pattern: "*.stories.@(js|jsx|ts|tsx)", path: "packages/ui/Button.stories.tsx", want: true},
		{name: "ExactlyOneGroupMiss", pattern: "*.stories.@(js|jsx)", path: "Button.stories.mdx", want: false},
		{name: "OneOrMoreGroup", pattern: "a+(b).txt", path: "abbb.txt", want: true},
		{name: "ZeroOrMoreGroup", pattern: "a*(b).txt", path: "a.txt", want: true},
		{name: "Escape", pattern: `\*.md`, path: "*.md", want: true},
		{name: "EscapeLiteralOnly", pattern: `\*.md`, path: "x.md", want: false},
		{name: "DotIsLiteral", pattern: "a.b", path: "axb", want: false},
		{name: "LeadingDotSlash", pattern: "./src/*.ts", path: "src/a.ts", want: true},
		{name: "BackslashPath", pattern: "src/**/*.ts", path: `src\nested\a.ts`, want: true},
		{name: "EmptyPath", pattern: "*", path: "", want: false},
		{
			name:    "TestsDirectoryExtglob",
			pattern: "**/__tests__/*.{j,t}s?(x)",
			path:    "packages/app/__tests__/button.spec.tsx",
			want:    true,
		},
		{
			name:    "AppSourceClassAndGroup",
			pattern: "packages/app/src/**/*.[jt]s?(x)",
			path:    "packages/app/src/components/Header.ts",
			want:    true,
		},
		{
			name:    "AppSourceOtherPackage",
			pattern: "packages/app/src/**/*.[jt]s?(x)",
			path:    "packages/lib/src/index.ts",
			want:    false,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := Match(tc.pattern, tc.path)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got, "pattern %q against %q", tc.pattern, tc.path)
		})
	}
}

func TestCompileRejectsMalformedPatterns(t *testing.T) {
	t.Parallel()

	for _, pattern := range []string{
		"",
		"[abc",
		"*.{js,ts",
		"?(x",
		"@(a|b",
		"!(a)",
		`foo\`,
		"[z-a]",
	} {
		pattern := pattern
		t.Run(pattern, func(t *testing.T) {
			t.Parallel()

			_, err := Compile(pattern)
			require.ErrorIs(t, err, ErrMalformedPattern)
		})
	}
}

func TestPatternString(t *testing.T) {
	p := MustCompile("./src/*.ts")
	assert.Equal(t, "./src/*.ts", p.String())
}

func TestMustCompilePanics(t *testing.T) {
	assert.Panics(t, func() {
		MustCompile("[")
	})
}

func TestLiteralTagsCompile(t *testing.T) {
	for _, tag := range []string{"test-file", "framework-file", "build"} {
		p, err := Compile(tag)
		require.NoError(t, err)
		assert.True(t, p.Match(tag))
	}
}
