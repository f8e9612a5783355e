// Copyright 2025 sigaid authors
//
// Registry seed configuration loader.
//
// This package provides configuration loading for the Authority's
// validator/agent registry seed from a YAML file with environment variable
// substitution.

package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// ==============================================================================
// Registry Seed Configuration Structures
// ==============================================================================

// RegistrySeed describes the agents an Authority should have already
// registered when it starts, so a fresh `sigaidd` instance doesn't require
// every agent to self-register over HTTP before it can acquire a lease.
type RegistrySeed struct {
	Environment string      `yaml:"environment"`
	Agents      []SeedAgent `yaml:"agents"`
}

// SeedAgent is one registry entry loaded at startup.
type SeedAgent struct {
	AgentID         string            `yaml:"agent_id"`
	PublicKeyBase64 string            `yaml:"public_key_base64"`
	Metadata        map[string]string `yaml:"metadata"`
	ReputationScore float64           `yaml:"reputation_score"`
}

// ==============================================================================
// Configuration Loading
// ==============================================================================

// LoadRegistrySeed loads a RegistrySeed from a YAML file. Environment
// variables in the format ${VAR_NAME} or ${VAR_NAME:-default} are
// substituted before parsing, so a seed file can reference secrets without
// embedding them.
func LoadRegistrySeed(path string) (*RegistrySeed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read registry seed file %s: %w", path, err)
	}

	expanded := substituteEnvVars(string(data))

	var seed RegistrySeed
	if err := yaml.Unmarshal([]byte(expanded), &seed); err != nil {
		return nil, fmt.Errorf("failed to parse registry seed file %s: %w", path, err)
	}

	if err := seed.Validate(); err != nil {
		return nil, err
	}
	return &seed, nil
}

// Validate checks that every seed entry carries the fields the registry
// needs to accept it without a live signature (agent_id and public key are
// taken on faith from the operator who wrote the seed file).
func (s *RegistrySeed) Validate() error {
	var errs []string
	seen := make(map[string]bool, len(s.Agents))
	for i, a := range s.Agents {
		if a.AgentID == "" {
			errs = append(errs, fmt.Sprintf("agents[%d]: agent_id is required", i))
		}
		if a.PublicKeyBase64 == "" {
			errs = append(errs, fmt.Sprintf("agents[%d]: public_key_base64 is required", i))
		}
		if seen[a.AgentID] {
			errs = append(errs, fmt.Sprintf("agents[%d]: duplicate agent_id %q", i, a.AgentID))
		}
		seen[a.AgentID] = true
	}
	if len(errs) > 0 {
		return fmt.Errorf("registry seed validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ==============================================================================
// Environment Variable Substitution
// ==============================================================================

var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// substituteEnvVars replaces ${VAR_NAME} and ${VAR_NAME:-default} with
// environment variable values.
func substituteEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}

		varName := groups[1]
		defaultValue := ""
		if len(groups) >= 4 {
			defaultValue = groups[3]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}
