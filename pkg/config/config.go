// Package config loads the settings a Session is built from: ICE servers,
// whether to advertise mDNS host candidates, the pacing knobs pkg/track
// exposes (frame interval, MTU), and a reorder window value. pkg/reorder's
// window is fixed at 128 packets and takes no size parameter, so
// ReorderWindow is carried here as a setting only. Parsing CLI flags or
// wiring this into a specific deployment is left to the calling binary.
package config

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
)

// SessionConfig holds the settings a Session is built from.
type SessionConfig struct {
	ICEServers       []webrtc.ICEServer
	MDNS             bool
	FrameInterval    time.Duration
	MTU              int
	ReorderWindow    int
	InitialBandwidth float64
}

// Default returns the settings this library falls back to when a field is
// left unset: a single public STUN server, mDNS host candidates enabled,
// 33ms frame pacing (~30fps), a 1200-byte MTU, a 32-packet reorder window,
// and a 300kbps initial bandwidth estimate.
func Default() SessionConfig {
	return SessionConfig{
		ICEServers:       []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}},
		MDNS:             true,
		FrameInterval:    33 * time.Millisecond,
		MTU:              1200,
		ReorderWindow:    32,
		InitialBandwidth: 300_000,
	}
}

// Load reads SessionConfig overrides from a .env-style key=value file,
// layered on top of Default(). Missing keys keep their default value.
func Load(envPath string) (SessionConfig, error) {
	cfg := Default()

	file, err := os.Open(envPath)
	if err != nil {
		return SessionConfig{}, fmt.Errorf("config: open %s: %w", envPath, err)
	}
	defer file.Close()

	var iceURLs []string
	scanner := bufio.NewScanner(file)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse key=value
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// URL decode values that might be encoded
		decoded, err := url.QueryUnescape(value)
		if err != nil {
			decoded = value
		}

		switch key {
		case "ice_servers":
			iceURLs = append(iceURLs, strings.Split(decoded, ",")...)
		case "mdns":
			mdns, err := strconv.ParseBool(decoded)
			if err != nil {
				return SessionConfig{}, fmt.Errorf("config: parse mdns: %w", err)
			}
			cfg.MDNS = mdns
		case "frame_interval_ms":
			ms, err := strconv.Atoi(decoded)
			if err != nil {
				return SessionConfig{}, fmt.Errorf("config: parse frame_interval_ms: %w", err)
			}
			cfg.FrameInterval = time.Duration(ms) * time.Millisecond
		case "mtu":
			mtu, err := strconv.Atoi(decoded)
			if err != nil {
				return SessionConfig{}, fmt.Errorf("config: parse mtu: %w", err)
			}
			cfg.MTU = mtu
		case "reorder_window":
			window, err := strconv.Atoi(decoded)
			if err != nil {
				return SessionConfig{}, fmt.Errorf("config: parse reorder_window: %w", err)
			}
			cfg.ReorderWindow = window
		case "initial_bandwidth_bps":
			bw, err := strconv.ParseFloat(decoded, 64)
			if err != nil {
				return SessionConfig{}, fmt.Errorf("config: parse initial_bandwidth_bps: %w", err)
			}
			cfg.InitialBandwidth = bw
		}
	}

	if err := scanner.Err(); err != nil {
		return SessionConfig{}, fmt.Errorf("config: scan %s: %w", envPath, err)
	}

	if len(iceURLs) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: iceURLs}}
	}

	return cfg, cfg.Validate()
}

// Validate checks that SessionConfig's numeric fields are sane.
func (c SessionConfig) Validate() error {
	if len(c.ICEServers) == 0 {
		return fmt.Errorf("config: at least one ICE server is required")
	}
	if c.FrameInterval <= 0 {
		return fmt.Errorf("config: frame interval must be positive")
	}
	if c.MTU <= 0 {
		return fmt.Errorf("config: mtu must be positive")
	}
	if c.ReorderWindow <= 0 {
		return fmt.Errorf("config: reorder window must be positive")
	}
	if c.InitialBandwidth <= 0 {
		return fmt.Errorf("config: initial bandwidth must be positive")
	}
	return nil
}
