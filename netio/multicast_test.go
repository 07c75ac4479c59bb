/*
Copyright (c) Facebook, Inc. and its affiliates.

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

package netio

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMulticastGroupWellKnownSubdomains(t *testing.T) {
	cases := map[string]string{
		DefaultDomainName: defaultDomainAddr,
		AlternateDomain1:  alternateAddr1,
		AlternateDomain2:  alternateAddr2,
		AlternateDomain3:  alternateAddr3,
	}
	for name, want := range cases {
		got := multicastGroup(name)
		require.NotNil(t, got)
		require.Equal(t, want, got.String())
	}
}

func TestMulticastGroupUnknownSubdomainIsStableAndWithinAlternates(t *testing.T) {
	alternates := map[string]bool{alternateAddr1: true, alternateAddr2: true, alternateAddr3: true}

	got := multicastGroup("some-custom-subdomain")
	require.NotNil(t, got)
	require.True(t, alternates[got.String()])

	again := multicastGroup("some-custom-subdomain")
	require.Equal(t, got.String(), again.String(), "hash-based fallback must be deterministic")
}

func TestMulticastGroupDistributesDifferentNames(t *testing.T) {
	seen := map[string]bool{}
	for _, name := range []string{"alpha", "bravo", "charlie", "delta", "echo", "foxtrot"} {
		seen[multicastGroup(name).String()] = true
	}
	require.Greater(t, len(seen), 1, "distinct subdomain names should not all collide onto one group")
}
