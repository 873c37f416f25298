package urlnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomain(t *testing.T) {
	cases := map[string]string{
		"https://www.Example.com/path": "example.com",
		"http://example.com":           "example.com",
		"www.example.com":              "example.com",
		"Example.COM":                  "example.com",
		"blog.example.com":             "blog.example.com",
		" https://example.com ":        "example.com",
	}
	for in, want := range cases {
		assert.Equal(t, want, Domain(in), "input %q", in)
	}
}

func TestIsSuffixMatch(t *testing.T) {
	assert.True(t, IsSuffixMatch("example.com", "example.com"))
	assert.True(t, IsSuffixMatch("blog.example.com", "example.com"))
	assert.True(t, IsSuffixMatch("a.b.example.com", "example.com"))
	assert.False(t, IsSuffixMatch("notexample.com", "example.com"))
	assert.False(t, IsSuffixMatch("example.com", "blog.example.com"))
	assert.False(t, IsSuffixMatch("example.com", ""))
}

func TestCanonicalize(t *testing.T) {
	cases := map[string]string{
		"https://www.example.com/page":               "https://example.com/page",
		"https://example.com:443/page":               "https://example.com/page",
		"http://example.com:80/page":                 "http://example.com/page",
		"https://example.com:8443/page":              "https://example.com:8443/page",
		"https://example.com/page#section":           "https://example.com/page",
		"https://example.com/page?utm_source=x&q=go": "https://example.com/page?q=go",
		"https://EXAMPLE.com/Path":                   "https://example.com/Path",
	}
	for in, want := range cases {
		assert.Equal(t, want, Canonicalize(in), "input %q", in)
	}
}

func TestCanonicalizeUnusable(t *testing.T) {
	assert.Empty(t, Canonicalize("not a url"))
	assert.Empty(t, Canonicalize("/relative/path"))
	assert.Empty(t, Canonicalize(""))
}
