package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// unsafeNameChars matches every character that can't appear in a saved
// directory or file name.
var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9_./\-]`)

// SanitizeName replaces every character outside [A-Za-z0-9_./-] with an
// underscore, so arbitrary addresses and subjects become usable
// filesystem names.
func SanitizeName(name string) string {
	return unsafeNameChars.ReplaceAllString(name, "_")
}

// freeDirName returns name if nothing called that exists under parent
// yet, or the first suffixed variant (name_2, name_3, ...) that doesn't.
func freeDirName(parent, name string) string {
	candidate := name
	for n := 2; ; n++ {
		if _, err := os.Stat(filepath.Join(parent, candidate)); errors.Is(err, fs.ErrNotExist) {
			return candidate
		}
		candidate = fmt.Sprintf("%v_%v", name, n)
	}
}

// freeFileName is freeDirName for files: the suffix goes before the
// extension, so file.txt becomes file_2.txt.
func freeFileName(parent, name string) string {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	candidate := name
	for n := 2; ; n++ {
		if _, err := os.Stat(filepath.Join(parent, candidate)); errors.Is(err, fs.ErrNotExist) {
			return candidate
		}
		candidate = fmt.Sprintf("%v_%v%v", stem, n, ext)
	}
}
