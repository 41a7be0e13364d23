// Package shellquote renders values into POSIX shell-safe single-quoted
// literals. The File, Package, Exec and Repository resources use this to
// quote values they splice into shell command lines.
package shellquote

import "strings"

// Quote wraps s in single quotes, escaping any embedded single quote as
// '"'"' so the result is safe to splice into a shell command line.
func Quote(s string) string {
	if s == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// Env renders key=value as KEY='quoted_value'. The key itself is not
// quoted: callers must validate it is a safe identifier first.
func Env(key, value string) string {
	return key + "=" + Quote(value)
}
