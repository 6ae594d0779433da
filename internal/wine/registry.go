package wine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ValueType selects the .reg encoding of a value.
type ValueType int

const (
	String ValueType = iota
	DWORD
	Binary
)

// RegistryEntry is one value to import. An empty Name addresses the key's
// default value. DWORD values hold a number in any Go integer syntax; Binary
// values hold comma-separated hex bytes.
type RegistryEntry struct {
	Key   string
	Name  string
	Value string
	Type  ValueType
}

const (
	regHeader    = "Windows Registry Editor Version 5.00"
	regBatchFile = "vinestudio_batch.reg"
)

// ErrRegistryScript reports a malformed .reg script.
var ErrRegistryScript = errors.New("malformed registry script")

// RegistryScript renders entries as a regedit import script. Consecutive
// entries sharing a key are grouped under one section header.
func RegistryScript(entries []RegistryEntry) string {
	var b strings.Builder
	b.WriteString(regHeader + "\r\n\r\n")
	current := ""
	for i, e := range entries {
		if i == 0 || e.Key != current {
			if i > 0 {
				b.WriteString("\r\n")
			}
			b.WriteString("[" + e.Key + "]\r\n")
			current = e.Key
		}
		if e.Name == "" {
			b.WriteString("@")
		} else {
			b.WriteString(`"` + escapeReg(e.Name) + `"`)
		}
		b.WriteString("=")
		switch e.Type {
		case DWORD:
			n, err := strconv.ParseUint(strings.TrimSpace(e.Value), 0, 32)
			if err != nil {
				n = 0
			}
			fmt.Fprintf(&b, "dword:%08x", n)
		case Binary:
			b.WriteString("hex:" + e.Value)
		default:
			b.WriteString(`"` + escapeReg(e.Value) + `"`)
		}
		b.WriteString("\r\n")
	}
	return b.String()
}

// ParseRegistryScript reads a script produced by RegistryScript back into
// entries. DWORD values come back in decimal.
func ParseRegistryScript(script string) ([]RegistryEntry, error) {
	scanner := bufio.NewScanner(strings.NewReader(script))
	if !scanner.Scan() || strings.TrimSpace(scanner.Text()) != regHeader {
		return nil, fmt.Errorf("%w: missing header", ErrRegistryScript)
	}
	var (
		out []RegistryEntry
		key string
	)
	line := 1
	for scanner.Scan() {
		line++
		text := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}
		if strings.HasPrefix(text, "[") && strings.HasSuffix(text, "]") {
			key = text[1 : len(text)-1]
			continue
		}
		if key == "" {
			return nil, fmt.Errorf("%w: line %d: value outside a key", ErrRegistryScript, line)
		}
		entry, err := parseRegValue(text)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrRegistryScript, line, err)
		}
		entry.Key = key
		out = append(out, entry)
	}
	return out, scanner.Err()
}

func parseRegValue(text string) (RegistryEntry, error) {
	var entry RegistryEntry
	rest := text
	switch {
	case strings.HasPrefix(rest, "@="):
		rest = rest[2:]
	case strings.HasPrefix(rest, `"`):
		name, tail, err := readQuoted(rest)
		if err != nil {
			return entry, err
		}
		if !strings.HasPrefix(tail, "=") {
			return entry, errors.New("expected '=' after name")
		}
		entry.Name = name
		rest = tail[1:]
	default:
		return entry, fmt.Errorf("unexpected %q", text)
	}

	switch {
	case strings.HasPrefix(rest, "dword:"):
		n, err := strconv.ParseUint(rest[len("dword:"):], 16, 32)
		if err != nil {
			return entry, fmt.Errorf("bad dword: %w", err)
		}
		entry.Type = DWORD
		entry.Value = strconv.FormatUint(n, 10)
	case strings.HasPrefix(rest, "hex:"):
		entry.Type = Binary
		entry.Value = rest[len("hex:"):]
	case strings.HasPrefix(rest, `"`):
		value, tail, err := readQuoted(rest)
		if err != nil {
			return entry, err
		}
		if tail != "" {
			return entry, fmt.Errorf("trailing data %q", tail)
		}
		entry.Type = String
		entry.Value = value
	default:
		return entry, fmt.Errorf("unknown value %q", rest)
	}
	return entry, nil
}

// readQuoted consumes a quoted, backslash-escaped string at the start of s.
func readQuoted(s string) (string, string, error) {
	var b strings.Builder
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			if i+1 >= len(s) {
				return "", "", errors.New("dangling escape")
			}
			i++
			b.WriteByte(s[i])
		case '"':
			return b.String(), s[i+1:], nil
		default:
			b.WriteByte(s[i])
		}
	}
	return "", "", errors.New("unterminated string")
}

func escapeReg(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return r.Replace(s)
}

// ApplyRegistry imports entries with a silent regedit run. The batch file is
// written inside the prefix and removed whatever the outcome.
func (p *Prefix) ApplyRegistry(ctx context.Context, entries []RegistryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return fmt.Errorf("create prefix: %w", err)
	}
	batch := filepath.Join(p.dir, regBatchFile)
	if err := os.WriteFile(batch, []byte(RegistryScript(entries)), 0o644); err != nil {
		return fmt.Errorf("write registry batch: %w", err)
	}
	defer os.Remove(batch)

	if _, err := p.Wine(ctx, "regedit", []string{"/s", "Z:" + batch}, RunOptions{Wait: true}); err != nil {
		return fmt.Errorf("apply registry: %w", err)
	}
	return nil
}

// RegistryExists reports whether value exists under key.
func (p *Prefix) RegistryExists(ctx context.Context, key, value string) bool {
	_, err := p.Wine(ctx, "reg", []string{"query", key, "/v", value}, RunOptions{Wait: true})
	return err == nil
}
