// Package envfile reads and writes line-oriented NAME=value environment
// files. Values are shell-quoted on write and shell-split on read, so values
// containing spaces or shell metacharacters survive a round trip.
package envfile

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/google/shlex"
	"mvdan.cc/sh/v3/syntax"

	"github.com/nimbus-pipelines/nimbusctl/internal/errors"
)

// Parse reads NAME=value lines from r. The path is used only for error
// reporting. A line whose value does not unquote to exactly one token is a
// malformed-file error.
func Parse(r io.Reader, path string) (map[string]string, error) {
	env := map[string]string{}

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		name, raw, found := strings.Cut(line, "=")
		if !found || name == "" {
			return nil, &errors.MalformedEnvFileError{Path: path, Line: lineNo}
		}

		tokens, err := shlex.Split(raw)
		if err != nil || len(tokens) != 1 {
			return nil, &errors.MalformedEnvFileError{Path: path, Line: lineNo}
		}

		env[name] = tokens[0]
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read env file %s: %w", path, err)
	}

	return env, nil
}

// Read loads an env file from disk.
func Read(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open env file: %w", err)
	}
	defer f.Close()

	return Parse(f, path)
}

// Format renders env as NAME=value lines with shell-quoted values, sorted by
// name for stable output.
func Format(env map[string]string) (string, error) {
	names := make([]string, 0, len(env))
	for name := range env {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, name := range names {
		quoted, err := syntax.Quote(env[name], syntax.LangBash)
		if err != nil {
			return "", fmt.Errorf("failed to quote value for %s: %w", name, err)
		}
		fmt.Fprintf(&sb, "%s=%s\n", name, quoted)
	}

	return sb.String(), nil
}

// Write persists env to path, replacing any existing file.
func Write(path string, env map[string]string) error {
	content, err := Format(env)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write env file: %w", err)
	}
	return nil
}
