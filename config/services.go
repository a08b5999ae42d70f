package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the HTTP API.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeSweeper runs the expired-session sweeper.
	ServiceModeSweeper ServiceMode = "sweeper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{ServiceModeHTTP, ServiceModeSweeper}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	for part := range strings.SplitSeq(servicesStr, ",") {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP, ServiceModeSweeper:
			services[mode] = true
		default:
			return nil, fmt.Errorf("invalid service name: %q (valid options: http, sweeper)", serviceName)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// SweeperConfig contains expired-session sweeper configuration.
type SweeperConfig struct {
	// Interval is the sweeper tick interval.
	Interval time.Duration `env:"SWEEPER_INTERVAL" envDefault:"15m"`

	// BatchSize is the maximum number of expired sessions deleted per statement.
	// Batching prevents long locks on the sessions table.
	BatchSize int `env:"SWEEPER_BATCH_SIZE" envDefault:"1000"`
}

// Sanitize applies guardrails to sweeper configuration values.
func (s *SweeperConfig) Sanitize() {
	if s.Interval < time.Minute {
		s.Interval = time.Minute
	}
	if s.BatchSize < 1 {
		s.BatchSize = 1
	}
	if s.BatchSize > 10000 {
		s.BatchSize = 10000
	}
}
