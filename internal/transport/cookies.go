package transport

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// minCookieFileBytes rejects placeholder cookie files.
const minCookieFileBytes = 100

// EnsureCookieFile reports whether a usable Netscape cookie file exists at
// path. When it does not and base64Path holds an encoded copy, the copy is
// decoded into path first.
func EnsureCookieFile(path, base64Path string) (bool, error) {
	if path == "" {
		return false, nil
	}
	if info, err := os.Stat(path); err == nil && info.Size() > minCookieFileBytes {
		return true, nil
	}
	if base64Path == "" {
		return false, nil
	}
	encoded, err := os.ReadFile(base64Path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read encoded cookies: %w", err)
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(string(encoded)), ""))
	if err != nil {
		return false, fmt.Errorf("decode cookies: %w", err)
	}
	if len(decoded) <= minCookieFileBytes {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return false, fmt.Errorf("create cookie dir: %w", err)
	}
	if err := os.WriteFile(path, decoded, 0o600); err != nil {
		return false, fmt.Errorf("write cookies: %w", err)
	}
	return true, nil
}
