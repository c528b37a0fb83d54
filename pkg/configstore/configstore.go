/*
Copyright © 2022-2025 SUSE LLC
SPDX-License-Identifier: Apache-2.0

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package configstore parses and writes the per-snapshot ash.conf: a
// key::value, '#'-comment text format, not YAML or .env.
package configstore

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/ochibani/ash/pkg/errorkind"
	"github.com/ochibani/ash/pkg/sys"
)

// DirEntry is one parsed mutable_dirs / mutable_dirs_shared entry: a path
// that may rename itself between source and target via "source::target".
type DirEntry struct {
	Source string
	Target string
}

// Config is the parsed, defaulted content of one snapshot's ash.conf.
type Config struct {
	AUR                bool
	MutableDirs        []DirEntry
	MutableDirsShared  []DirEntry
	unknown            map[string]string
}

// Default returns the config an absent ash.conf implies.
func Default() *Config {
	return &Config{unknown: map[string]string{}}
}

// Load reads and parses path. A missing file yields Default() with no
// error, and malformed content is skipped rather than failed on, so a
// broken ash.conf degrades to defaults instead of blocking staging or
// deployment. Only I/O failures surface as errors.
func Load(s *sys.System, path string) (*Config, error) {
	ok, err := sys.Exists(s.FS(), path)
	if err != nil {
		return nil, errorkind.Wrapf(errorkind.ConfigParseError, "checking %s", path)
	}
	if !ok {
		return Default(), nil
	}

	data, err := s.FS().ReadFile(path)
	if err != nil {
		return nil, errorkind.Wrapf(errorkind.ConfigParseError, "reading %s", path)
	}

	cfg := Default()
	for _, line := range strings.Split(string(data), "\n") {
		if idx := strings.Index(line, "#"); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		// Malformed content never fails a load: lines without the
		// delimiter and unparseable values are skipped and the defaults
		// stand.
		key, value, ok := strings.Cut(line, "::")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case "aur":
			if b, err := strconv.ParseBool(value); err == nil {
				cfg.AUR = b
			}
		case "mutable_dirs":
			cfg.MutableDirs = parseDirList(value)
		case "mutable_dirs_shared":
			cfg.MutableDirsShared = parseDirList(value)
		default:
			cfg.unknown[key] = value
		}
	}

	return cfg, nil
}

func parseDirList(value string) []DirEntry {
	if value == "" {
		return nil
	}
	var entries []DirEntry
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		src, dst, ok := strings.Cut(item, "::")
		if !ok {
			src, dst = item, item
		}
		entries = append(entries, DirEntry{Source: strings.TrimSpace(src), Target: strings.TrimSpace(dst)})
	}
	return entries
}

// Save writes cfg back to path in the native key::value format, preserving
// unknown keys it did not recognize on Load.
func (c *Config) Save(s *sys.System, path string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "aur::%t\n", c.AUR)
	fmt.Fprintf(&b, "mutable_dirs::%s\n", formatDirList(c.MutableDirs))
	fmt.Fprintf(&b, "mutable_dirs_shared::%s\n", formatDirList(c.MutableDirsShared))

	keys := make([]string, 0, len(c.unknown))
	for k := range c.unknown {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s::%s\n", k, c.unknown[k])
	}

	if err := s.FS().WriteFile(path, []byte(b.String()), sys.FilePerm); err != nil {
		return errorkind.Wrapf(errorkind.ConfigParseError, "writing %s", path)
	}
	return nil
}

func formatDirList(entries []DirEntry) string {
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Source == e.Target {
			parts = append(parts, e.Source)
		} else {
			parts = append(parts, fmt.Sprintf("%s::%s", e.Source, e.Target))
		}
	}
	return strings.Join(parts, ",")
}

// WriteEnv exports cfg's recognized keys as a shell-sourceable .env file at
// envPath, via godotenv, so external collaborators invoked as shell
// subprocesses inside the chroot (the package manager wrapper in
// particular) can read AUR=true/false without re-parsing ash.conf's native
// dialect themselves.
func (c *Config) WriteEnv(s *sys.System, envPath string) error {
	env := map[string]string{
		"AUR": strconv.FormatBool(c.AUR),
	}

	rawPath, err := s.FS().RawPath(envPath)
	if err != nil {
		rawPath = envPath
	}
	if err := godotenv.Write(env, rawPath); err != nil {
		return errorkind.Wrapf(errorkind.ConfigParseError, "writing env export %s", envPath)
	}
	return nil
}
