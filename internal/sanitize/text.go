package sanitize

import (
	"regexp"
	"strings"
)

var (
	htmlComment = regexp.MustCompile(`(?s)<!--.*?-->`)
	// innermost tag-like span, repeated stripping takes care of nesting
	tagSpan = regexp.MustCompile(`<[^<>]*>`)
	// \s in RE2 is ASCII only; add \v, NEL, the Unicode space separators,
	// line/paragraph separators and the BOM
	whitespace = regexp.MustCompile(`[\s\v\x{0085}\p{Zs}\x{2028}\x{2029}\x{FEFF}]+`)
)

// Text removes HTML comments and every <...> span, collapses whitespace runs
// to a single space and trims the result. Text between tags is kept.
// Text(Text(s)) == Text(s).
func Text(s string) string {
	if s == "" {
		return ""
	}
	out := htmlComment.ReplaceAllString(s, "")
	for {
		next := tagSpan.ReplaceAllString(out, "")
		if next == out {
			break
		}
		out = next
	}
	out = whitespace.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}

// Fields returns a new map holding only the allowed keys present in in.
// String values go through Text, everything else is passed through as is.
// Allowed keys missing from in are left out rather than set to nil.
func Fields(in map[string]any, allowed []string) map[string]any {
	out := make(map[string]any, len(allowed))
	for _, k := range allowed {
		v, ok := in[k]
		if !ok {
			continue
		}
		if s, isStr := v.(string); isStr {
			v = Text(s)
		}
		out[k] = v
	}
	return out
}

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#x27;",
)

// Escape replaces & < > " ' with entities. The replacer makes a single pass,
// so the ampersands it emits are never escaped a second time.
func Escape(s string) string {
	return htmlEscaper.Replace(s)
}
