package config

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"photostereo/internal/models"
)

// Light direction parse errors. A *DirectionError wraps exactly one of them.
var (
	ErrEmptyDirection     = errors.New("light direction is empty")
	ErrComponentCount     = errors.New("light direction must have exactly 3 components")
	ErrBadComponent       = errors.New("light direction component is not a number")
	ErrNonFiniteComponent = errors.New("light direction component is not finite")
	ErrZeroDirection      = errors.New("light direction has zero length")
)

// DirectionError describes why a light direction could not be parsed
type DirectionError struct {
	// Input is the text that was being parsed
	Input string
	// Index is the offending component, or -1 when the error concerns the whole value
	Index int
	Err   error
}

func (e *DirectionError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("light direction %q: %v", e.Input, e.Err)
	}
	return fmt.Sprintf("light direction %q: component %d: %v", e.Input, e.Index, e.Err)
}

func (e *DirectionError) Unwrap() error { return e.Err }

// ParseDirection parses a light direction written as three numbers separated
// by whitespace or commas, optionally terminated by a semicolon, e.g.
// "0.0 0.0 1.0", "0,0,1;" or "  0.5 0.5 0.707 ;".
func ParseDirection(s string) (models.Vec3, error) {
	var v models.Vec3

	cleaned := strings.ReplaceAll(s, ";", " ")
	cleaned = strings.ReplaceAll(cleaned, ",", " ")
	fields := strings.Fields(cleaned)
	if len(fields) == 0 {
		return v, &DirectionError{Input: s, Index: -1, Err: ErrEmptyDirection}
	}
	if len(fields) != 3 {
		return v, &DirectionError{Input: s, Index: -1, Err: ErrComponentCount}
	}

	for i, f := range fields {
		x, err := parseComponent(f)
		if err != nil {
			return v, &DirectionError{Input: s, Index: i, Err: err}
		}
		v[i] = x
	}
	return v, nil
}

// parseComponent returns ErrBadComponent or ErrNonFiniteComponent on failure
func parseComponent(f string) (float64, error) {
	x, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return 0, ErrNonFiniteComponent
		}
		return 0, ErrBadComponent
	}
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0, ErrNonFiniteComponent
	}
	return x, nil
}

// Direction is a light direction as it appears in a configuration file.
// In YAML it may be written either as a 3 element sequence or as a string
// accepted by ParseDirection.
type Direction models.Vec3

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Direction) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		v, err := ParseDirection(node.Value)
		if err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		*d = Direction(v)
		return nil

	case yaml.SequenceNode:
		parts := make([]string, len(node.Content))
		for i, c := range node.Content {
			if c.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: %w", c.Line, &DirectionError{Input: "[...]", Index: i, Err: ErrBadComponent})
			}
			parts[i] = c.Value
		}
		input := "[" + strings.Join(parts, ", ") + "]"
		if len(parts) == 0 {
			return fmt.Errorf("line %d: %w", node.Line, &DirectionError{Input: input, Index: -1, Err: ErrEmptyDirection})
		}
		if len(parts) != 3 {
			return fmt.Errorf("line %d: %w", node.Line, &DirectionError{Input: input, Index: -1, Err: ErrComponentCount})
		}
		var v models.Vec3
		for i, p := range parts {
			x, err := parseComponent(p)
			if err != nil {
				return fmt.Errorf("line %d: %w", node.Line, &DirectionError{Input: input, Index: i, Err: err})
			}
			v[i] = x
		}
		*d = Direction(v)
		return nil

	default:
		return fmt.Errorf("line %d: light direction must be a sequence or a string", node.Line)
	}
}

// MarshalYAML implements yaml.Marshaler, always writing the sequence form
func (d Direction) MarshalYAML() (interface{}, error) {
	return []float64{d[0], d[1], d[2]}, nil
}

// Vec3 returns the direction as a model vector
func (d Direction) Vec3() models.Vec3 {
	return models.Vec3(d)
}
