package stack

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrConfigWrite covers every failure to patch the stack's .env file.
var ErrConfigWrite = errors.New("failed to update docker .env file")

// RewriteEnv sets key=value on every line assigning key in the env file at
// path. All other bytes are kept as they are, including line endings and the
// presence or absence of a final newline. The file is replaced atomically.
func RewriteEnv(path, key, value string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfigWrite, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConfigWrite, err)
	}

	out, n := replaceKey(string(data), key, value)
	if n == 0 {
		return fmt.Errorf("%w: %s not found in %s", ErrConfigWrite, key, path)
	}
	if out == string(data) {
		return nil
	}

	if err := writeAtomic(path, []byte(out), info.Mode().Perm()); err != nil {
		return fmt.Errorf("%w: %w", ErrConfigWrite, err)
	}
	return nil
}

// replaceKey returns content with key's assignments rewritten and how many
// lines matched.
func replaceKey(content, key, value string) (string, int) {
	var b strings.Builder
	b.Grow(len(content) + len(value))
	matched := 0

	for _, line := range strings.SplitAfter(content, "\n") {
		if line == "" {
			continue
		}
		body, eol := splitEOL(line)
		prefix, ok := assigns(body, key)
		if !ok {
			b.WriteString(line)
			continue
		}
		matched++
		b.WriteString(prefix)
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(value)
		b.WriteString(eol)
	}
	return b.String(), matched
}

func splitEOL(line string) (body, eol string) {
	switch {
	case strings.HasSuffix(line, "\r\n"):
		return line[:len(line)-2], "\r\n"
	case strings.HasSuffix(line, "\n"):
		return line[:len(line)-1], "\n"
	}
	return line, ""
}

// assigns reports whether body is an assignment to key, returning the
// leading whitespace and optional "export " that should be kept.
func assigns(body, key string) (string, bool) {
	rest := strings.TrimLeft(body, " \t")
	lead := body[:len(body)-len(rest)]
	if strings.HasPrefix(rest, "export ") {
		lead += "export "
		rest = strings.TrimLeft(rest[len("export "):], " \t")
	}
	k, _, ok := strings.Cut(rest, "=")
	if !ok || strings.TrimSpace(k) != key {
		return "", false
	}
	return lead, true
}

func writeAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	name := tmp.Name()
	defer os.Remove(name) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(name, perm); err != nil {
		return fmt.Errorf("setting mode: %w", err)
	}
	if err := os.Rename(name, path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}
