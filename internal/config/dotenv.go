package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// LoadDotenv seeds the process environment from a dotenv file before
// the JSONC config is loaded, so `${{ .Env.X }}` templates can resolve
// against it. Variables already present in the environment win over the
// file, and a missing file is not an error: the overseer home directory
// usually has no .env at all.
//
// Supported syntax is the common subset: KEY=VALUE pairs, an optional
// `export ` prefix, `#` comment lines, and single- or double-quoted
// values. Lines without `=` are skipped.
func LoadDotenv(path string) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open dotenv %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key, value, ok := parseDotenvLine(scanner.Text())
		if !ok {
			continue
		}
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("set %s from dotenv: %w", key, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read dotenv %s: %w", path, err)
	}
	return nil
}

// parseDotenvLine extracts one KEY=VALUE assignment, reporting false
// for blanks, comments and malformed lines.
func parseDotenvLine(line string) (key, value string, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false
	}
	line = strings.TrimPrefix(line, "export ")

	key, value, found := strings.Cut(line, "=")
	key = strings.TrimSpace(key)
	if !found || key == "" {
		return "", "", false
	}
	value = strings.TrimSpace(value)
	if len(value) >= 2 {
		last := value[len(value)-1]
		if (last == '"' || last == '\'') && value[0] == last {
			value = value[1 : len(value)-1]
		}
	}
	return key, value, true
}
