// Package uri converts between LSP file:// URIs and local OS paths. The
// interceptor uses it only in model.ParseCommand, to normalize the uri of a
// viewer-supplied command; document URIs flowing through the transparent
// path are never touched.
package uri

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// IsWindowsAbsPath reports whether p looks like a Windows absolute path
// (e.g. C:\... or C:/...), independent of the runtime OS.
func IsWindowsAbsPath(p string) bool {
	if len(p) < 2 {
		return false
	}
	letter := p[0]
	isLetter := (letter >= 'A' && letter <= 'Z') || (letter >= 'a' && letter <= 'z')
	return isLetter && p[1] == ':'
}

// FileURIToPath converts a file:// URI into a local OS path, decoding
// percent-escapes and normalizing Windows drive-letter URIs regardless of
// the runtime OS (the interceptor may run in a Linux container while the
// editor runs on Windows).
func FileURIToPath(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("invalid uri: %w", err)
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("not a file uri: %s", u.Scheme)
	}

	if u.Host != "" {
		p, err := url.PathUnescape(u.Path)
		if err != nil {
			return "", fmt.Errorf("invalid uri path escape: %w", err)
		}
		return filepath.FromSlash("//" + u.Host + p), nil
	}

	p, err := url.PathUnescape(u.Path)
	if err != nil {
		return "", fmt.Errorf("invalid uri path escape: %w", err)
	}

	if strings.HasPrefix(p, "/") && len(p) >= 3 && p[2] == ':' {
		p = p[1:]
	}

	return filepath.FromSlash(p), nil
}

// PathToFileURI converts a local OS path into a file:// URI.
func PathToFileURI(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("path is empty")
	}

	isWindowsAbs := IsWindowsAbsPath(path)

	if !isWindowsAbs {
		if absPath, err := filepath.Abs(path); err == nil {
			path = absPath
		}
	}

	slashPath := strings.ReplaceAll(path, "\\", "/")
	if isWindowsAbs {
		slashPath = strings.ReplaceAll(slashPath, "//", "/")
	} else {
		slashPath = filepath.ToSlash(filepath.Clean(path))
	}

	if len(slashPath) >= 2 && slashPath[1] == ':' {
		slashPath = "/" + slashPath
	}

	u := url.URL{Scheme: "file", Path: slashPath}
	return u.String(), nil
}

// Normalize passes file:// and other-scheme URIs through unchanged (an LSP
// client may be sensitive to URI string equality for opened documents) and
// converts bare local paths into file:// URIs.
func Normalize(uri string) string {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return uri
	}
	if strings.HasPrefix(uri, "file://") || strings.HasPrefix(uri, "file:") {
		return uri
	}
	if strings.Contains(uri, "://") {
		return uri
	}
	if u, err := PathToFileURI(uri); err == nil {
		return u
	}
	return "file://" + filepath.ToSlash(uri)
}
