package match

import "strings"

// DerivePrefix returns the static part of a glob pattern that can be sent
// to the provider as a listing prefix.
//
//	"data/2024/**/*.parquet" -> "data/2024/"
//	"*.json"                 -> ""
//	"exact/file.txt"         -> "exact/file.txt"
//	"data/file\*.txt"        -> "data/file*.txt"
func DerivePrefix(pattern string) string {
	meta := firstMeta(pattern)
	if meta == -1 {
		return unescape(pattern)
	}
	return unescape(pattern[:strings.LastIndex(pattern[:meta], "/")+1])
}

// IsGlobPattern reports whether pattern has an unescaped metacharacter.
func IsGlobPattern(pattern string) bool {
	return firstMeta(pattern) != -1
}

// firstMeta returns the index of the first unescaped * ? [ or {, or -1.
func firstMeta(pattern string) int {
	for i := 0; i < len(pattern); i++ {
		switch pattern[i] {
		case '\\':
			i++
		case '*', '?', '[', '{':
			return i
		}
	}
	return -1
}

func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) && strings.IndexByte(`*?[]{}\`, s[i+1]) >= 0 {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
