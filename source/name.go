package source

import (
	"path"
	"regexp"
	"strings"
)

// Extension is appended to every bundle name.
const Extension = ".ab"

var (
	whitespace   = regexp.MustCompile(`\s+`)
	separators   = regexp.MustCompile(`[/\\]+`)
	leadingSlash = regexp.MustCompile(`^[/\\]`)
)

// BundleName maps an asset directory such as "Res/Prefabs" to its bundle name
// "res.prefabs.ab": trimmed, one leading separator dropped, separator runs
// become dots, whitespace runs become underscores, lower-cased.
func BundleName(dir string) string {
	name := leadingSlash.ReplaceAllString(strings.TrimSpace(dir), "")
	name = separators.ReplaceAllString(name, ".")
	name = whitespace.ReplaceAllString(name, "_")
	name = strings.ToLower(name)
	if !strings.HasSuffix(name, Extension) {
		name += Extension
	}
	return name
}

// FileBundleName returns the bundle name of the directory holding file.
func FileBundleName(file string) string {
	return BundleName(path.Dir(strings.ReplaceAll(file, `\`, "/")))
}
