package config

import (
	"fmt"
	"os"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/firecontain/pkg/scenario"
)

// rosterFile is the keyed form of a roster file.
type rosterFile struct {
	Resources []scenario.ResourceSpec `yaml:"resources" validate:"required,min=1,dive"`
}

var (
	rosterValidate     *validator.Validate
	rosterValidateOnce sync.Once
)

func rosterValidator() *validator.Validate {
	rosterValidateOnce.Do(func() {
		rosterValidate = validator.New(validator.WithRequiredStructEnabled())
	})
	return rosterValidate
}

// LoadRoster reads a YAML roster file.
func LoadRoster(path string) ([]scenario.ResourceSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read roster %s: %w", path, err)
	}

	resources, err := ParseRoster(data)
	if err != nil {
		return nil, fmt.Errorf("roster %s: %w", path, err)
	}
	return resources, nil
}

// ParseRoster decodes a roster given either as a bare list of resources or
// as a mapping with a resources key.
func ParseRoster(data []byte) ([]scenario.ResourceSpec, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("failed to parse roster: %w", err)
	}
	if len(node.Content) == 0 {
		return nil, fmt.Errorf("roster is empty")
	}

	var rf rosterFile
	switch root := node.Content[0]; root.Kind {
	case yaml.SequenceNode:
		if err := root.Decode(&rf.Resources); err != nil {
			return nil, fmt.Errorf("failed to decode roster: %w", err)
		}
	case yaml.MappingNode:
		if err := root.Decode(&rf); err != nil {
			return nil, fmt.Errorf("failed to decode roster: %w", err)
		}
	default:
		return nil, fmt.Errorf("roster must be a list or a mapping with resources")
	}

	if err := rosterValidator().Struct(rf); err != nil {
		return nil, fmt.Errorf("invalid roster: %w", err)
	}
	return rf.Resources, nil
}
