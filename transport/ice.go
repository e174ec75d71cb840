// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"
)

// ICEConfig holds the STUN/TURN servers used when gathering candidates.
// The zero value gathers host candidates only, which is enough on one
// machine or one LAN.
type ICEConfig struct {
	Servers []webrtc.ICEServer
}

// ICEServerSpec is one configured ICE server.
type ICEServerSpec struct {
	URLs       []string `yaml:"urls"`
	Username   string   `yaml:"username"`
	Credential string   `yaml:"credential"`
}

// ICEConfigFromSpecs converts configured servers into an ICEConfig,
// rejecting URLs that are not stun:, stuns:, turn: or turns:.
func ICEConfigFromSpecs(specs []ICEServerSpec) (ICEConfig, error) {
	var config ICEConfig
	for index, spec := range specs {
		if len(spec.URLs) == 0 {
			return ICEConfig{}, fmt.Errorf("ice server %d: no urls", index)
		}
		turn := false
		for _, url := range spec.URLs {
			scheme, _, ok := strings.Cut(url, ":")
			switch {
			case !ok:
				return ICEConfig{}, fmt.Errorf("ice server %d: url %q has no scheme", index, url)
			case scheme == "turn" || scheme == "turns":
				turn = true
			case scheme == "stun" || scheme == "stuns":
			default:
				return ICEConfig{}, fmt.Errorf("ice server %d: unsupported scheme %q", index, scheme)
			}
		}
		if turn && (spec.Username == "" || spec.Credential == "") {
			return ICEConfig{}, fmt.Errorf("ice server %d: turn servers need a username and credential", index)
		}
		config.Servers = append(config.Servers, webrtc.ICEServer{
			URLs:       spec.URLs,
			Username:   spec.Username,
			Credential: spec.Credential,
		})
	}
	return config, nil
}
