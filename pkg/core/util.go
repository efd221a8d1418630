package core

import (
	"fmt"
	"path"
	"strings"
)

func fmtAny(v any) string { return fmt.Sprint(v) }

// FileStem returns the base name of p without its extension.
func FileStem(p string) string {
	base := path.Base(p)
	return strings.TrimSuffix(base, path.Ext(base))
}

// NormalizeFolder turns a user supplied folder into a vault-relative one.
// A leading slash is dropped and an empty result means the vault root "/".
func NormalizeFolder(folder string) string {
	folder = strings.TrimPrefix(folder, "/")
	folder = strings.TrimSuffix(folder, "/")
	if folder == "" {
		return "/"
	}
	return folder
}

// JoinPath joins vault-relative path parts, treating "/" as the vault root.
func JoinPath(folder, name string) string {
	if folder == "/" || folder == "" {
		return name
	}
	return path.Join(folder, name)
}
