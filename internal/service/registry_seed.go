package service

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// MatrixSeed is the on-disk layout of escalation matrix seed data.
type MatrixSeed struct {
	Rules []SeedRule `yaml:"rules"`
}

// SeedRule is one rule in a seed file.
type SeedRule struct {
	RelatedService         string `yaml:"related_service"`
	Priority               string `yaml:"priority"`
	SupportLevel           string `yaml:"support_level"`
	InitialAssignmentLevel string `yaml:"initial_assignment_level"`
	EscalateToLevel        string `yaml:"escalate_to_level"`
	EscalationTimeMinutes  *int   `yaml:"escalation_time_minutes"`
	ResponseTimeMinutes    int    `yaml:"response_time_minutes"`
	ResolutionTimeMinutes  int    `yaml:"resolution_time_minutes"`
}

// ParseMatrixSeed decodes seed YAML, rejecting unknown keys.
func ParseMatrixSeed(data []byte) (*MatrixSeed, error) {
	var seed MatrixSeed
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil {
		return nil, fmt.Errorf("parse matrix seed: %w", err)
	}
	return &seed, nil
}

func (r SeedRule) input() RuleInput {
	input := RuleInput{
		RelatedService:         domain.RelatedService(r.RelatedService),
		Priority:               domain.IssuePriority(r.Priority),
		SupportLevel:           domain.SupportLevel(r.SupportLevel),
		InitialAssignmentLevel: domain.SupportLevel(r.InitialAssignmentLevel),
		EscalationTimeMinutes:  r.EscalationTimeMinutes,
		ResponseTimeMinutes:    r.ResponseTimeMinutes,
		ResolutionTimeMinutes:  r.ResolutionTimeMinutes,
	}
	if input.InitialAssignmentLevel == "" {
		input.InitialAssignmentLevel = input.SupportLevel
	}
	if r.EscalateToLevel != "" {
		input.EscalateToLevel = ptr(domain.SupportLevel(r.EscalateToLevel))
	}
	return input
}

// LoadSeed creates the rules in path whose matrix slot is still free and
// returns how many were created. Re-running it on the same file is a no-op.
func (s *RegistryService) LoadSeed(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read matrix seed: %w", err)
	}
	seed, err := ParseMatrixSeed(data)
	if err != nil {
		return 0, err
	}

	created := 0
	for i, rule := range seed.Rules {
		input := rule.input()
		if err := validateRuleInput(input); err != nil {
			return created, fmt.Errorf("seed rule %d: %w", i, err)
		}
		existing, err := s.Lookup(ctx, input.RelatedService, input.Priority, input.SupportLevel)
		if err != nil {
			return created, err
		}
		if existing != nil {
			continue
		}
		if _, err := s.createAs(ctx, input, domain.SystemActor); err != nil {
			return created, fmt.Errorf("seed rule %d: %w", i, err)
		}
		created++
	}
	s.logger.Info("escalation matrix seeded", zap.String("file", path), zap.Int("created", created), zap.Int("total", len(seed.Rules)))
	return created, nil
}
