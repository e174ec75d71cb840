// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import "testing"

func TestICEConfigFromSpecs(t *testing.T) {
	config, err := ICEConfigFromSpecs(nil)
	if err != nil || len(config.Servers) != 0 {
		t.Fatalf("empty specs = %+v, %v; want host candidates only", config, err)
	}

	config, err = ICEConfigFromSpecs([]ICEServerSpec{
		{URLs: []string{"stun:stun.example.org:3478"}},
		{URLs: []string{"turn:turn.example.org:3478?transport=udp"}, Username: "u", Credential: "p"},
	})
	if err != nil {
		t.Fatalf("ICEConfigFromSpecs: %v", err)
	}
	if len(config.Servers) != 2 || config.Servers[1].Username != "u" {
		t.Errorf("servers = %+v", config.Servers)
	}
}

func TestICEConfigFromSpecsRejects(t *testing.T) {
	tests := []struct {
		name string
		spec ICEServerSpec
	}{
		{"no urls", ICEServerSpec{}},
		{"no scheme", ICEServerSpec{URLs: []string{"stun.example.org"}}},
		{"http", ICEServerSpec{URLs: []string{"http://example.org"}}},
		{"turn without credentials", ICEServerSpec{URLs: []string{"turn:turn.example.org"}}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := ICEConfigFromSpecs([]ICEServerSpec{test.spec}); err == nil {
				t.Error("accepted an invalid server")
			}
		})
	}
}
