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

// Package profile fetches and parses an install profile: the external
// collaborator install's --profile/--user-profile flags pull package sets
// and config overrides from. The engine never fixes the URL itself; the
// caller supplies it per invocation.
package profile

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.yaml.in/yaml/v3"

	"github.com/ochibani/ash/pkg/errorkind"
)

// Descriptor is the parsed content of a downloaded install profile.
type Descriptor struct {
	Packages          []string `yaml:"packages"`
	AUR               bool     `yaml:"aur"`
	MutableDirs       []string `yaml:"mutable_dirs"`
	MutableDirsShared []string `yaml:"mutable_dirs_shared"`
}

// Fetcher downloads and parses profiles over HTTP(S).
type Fetcher struct {
	client *http.Client
}

// New returns a Fetcher with a bounded-timeout HTTP client.
func New() *Fetcher {
	return &Fetcher{client: &http.Client{Timeout: 30 * time.Second}}
}

// Fetch downloads the profile at url and parses it, retrying transient
// failures with bounded exponential backoff.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Descriptor, error) {
	var body []byte

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}

		resp, err := f.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("server error fetching profile: %s", resp.Status)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("unexpected status fetching profile: %s", resp.Status))
		}

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		body = data
		return nil
	}

	exp := backoff.NewExponentialBackOff()
	exp.MaxElapsedTime = 30 * time.Second
	b := backoff.WithMaxRetries(exp, 3)
	if err := backoff.Retry(op, b); err != nil {
		return nil, errorkind.Wrapf(errorkind.ProtocolAborted, "downloading profile from %s", url)
	}

	return Parse(body)
}

// Parse decodes a profile descriptor's YAML body.
func Parse(data []byte) (*Descriptor, error) {
	d := &Descriptor{}
	if err := yaml.Unmarshal(data, d); err != nil {
		return nil, errorkind.Wrap(errorkind.ConfigParseError, "parsing profile descriptor")
	}
	return d, nil
}
