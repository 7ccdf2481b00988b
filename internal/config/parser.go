package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// parsedFile is the result of reading a §6 config file: global keys
// destined for viper, plus zero or more parsed [Sharing] sections.
type parsedFile struct {
	global   map[string]any
	sharings []SharingConfig
}

var globalKeys = map[string]bool{
	"address": true, "port": true, "discover_port": true, "name": true,
	"password": true, "rexec": true, "ssl": true, "ssl_cert": true,
	"ssl_privkey": true, "trace": true, "verbose": true, "no_color": true,
}

var intKeys = map[string]bool{"port": true, "discover_port": true}
var boolKeys = map[string]bool{
	"rexec": true, "ssl": true, "trace": true, "verbose": true, "no_color": true, "readonly": true,
}

// parseFile reads a line-based config file: blank lines and lines
// beginning with '#' are ignored, `[Name]` (or bare `[]`, which uses
// the file's basename) opens a sharing section, and `key=value` lines
// set either a global key or, inside a section, a sharing key.
func parseFile(path string) (*parsedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	pf := &parsedFile{global: make(map[string]any)}
	var current *SharingConfig

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			if current != nil {
				pf.sharings = append(pf.sharings, *current)
			}
			name := strings.TrimSpace(line[1 : len(line)-1])
			if name == "" {
				name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			}
			current = &SharingConfig{Name: name}
			continue
		}

		key, val, ok := splitKV(line)
		if !ok {
			return nil, fmt.Errorf("%s:%d: malformed line %q", path, lineNo, line)
		}
		key = strings.ToLower(key)
		val = unquote(val)

		if current != nil && !globalKeys[key] {
			applySharingKey(current, key, val)
			continue
		}

		typed, err := typedValue(key, val)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		pf.global[key] = typed
	}
	if current != nil {
		pf.sharings = append(pf.sharings, *current)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return pf, nil
}

func splitKV(line string) (key, val string, ok bool) {
	idx := strings.Index(line, "=")
	if idx < 0 {
		return "", "", false
	}
	return strings.TrimSpace(line[:idx]), strings.TrimSpace(line[idx+1:]), true
}

func unquote(v string) string {
	if len(v) >= 2 && v[0] == '"' && v[len(v)-1] == '"' {
		return v[1 : len(v)-1]
	}
	return v
}

func applySharingKey(s *SharingConfig, key, val string) {
	switch key {
	case "path":
		s.Path = val
	case "readonly":
		s.ReadOnly = parseBool(val)
	}
}

func typedValue(key, val string) (any, error) {
	switch {
	case intKeys[key]:
		n, err := strconv.Atoi(val)
		if err != nil {
			return nil, fmt.Errorf("key %q: expected integer, got %q", key, val)
		}
		return n, nil
	case boolKeys[key]:
		return parseBool(val), nil
	default:
		return val, nil
	}
}

// parseBool accepts the value set named in §6: true/false/1/0/yes/no.
func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes":
		return true
	default:
		return false
	}
}
