package engine

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// RosterSize is the number of units every player fields.
const RosterSize = 4

var ErrInvalidRosterSize = errors.New("roster must contain exactly 4 units")
var ErrUnknownArchetype = errors.New("unknown archetype")
var ErrInvalidArchetype = errors.New("invalid archetype definition")

// UnknownArchetypeError names an archetype missing from the table. It
// matches ErrUnknownArchetype under errors.Is.
type UnknownArchetypeError struct {
	Name string
}

func (e *UnknownArchetypeError) Error() string {
	return fmt.Sprintf("%s: %s", ErrUnknownArchetype, e.Name)
}

func (e *UnknownArchetypeError) Is(target error) bool { return target == ErrUnknownArchetype }

//go:embed archetypes.yaml
var defaultArchetypes []byte

// Archetype is the template a Unit is instantiated from.
type Archetype struct {
	Name      string `yaml:"name" json:"name"`
	MaxHealth int    `yaml:"hp" json:"hp"`
	Damage    int    `yaml:"dmg" json:"dmg"`
	Range     int    `yaml:"range" json:"range"`
}

// Archetypes is the read-only table of archetypes. It is built once at
// startup and may be shared between goroutines without locking.
type Archetypes struct {
	list   []Archetype
	byName map[string]Archetype
}

// DefaultArchetypes returns the table compiled into the binary.
func DefaultArchetypes() *Archetypes {
	a, err := ParseArchetypes(defaultArchetypes)
	if err != nil {
		panic(fmt.Sprintf("engine: embedded archetypes: %v", err))
	}
	return a
}

func ParseArchetypes(data []byte) (*Archetypes, error) {
	var list []Archetype
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&list); err != nil {
		return nil, fmt.Errorf("decode archetypes: %w", err)
	}

	byName := make(map[string]Archetype, len(list))
	for i, a := range list {
		switch {
		case a.Name == "":
			return nil, fmt.Errorf("%w: entry %d has no name", ErrInvalidArchetype, i)
		case a.MaxHealth <= 0:
			return nil, fmt.Errorf("%w: %s has hp %d", ErrInvalidArchetype, a.Name, a.MaxHealth)
		case a.Damage < 0:
			return nil, fmt.Errorf("%w: %s has dmg %d", ErrInvalidArchetype, a.Name, a.Damage)
		case a.Range < 1:
			return nil, fmt.Errorf("%w: %s has range %d", ErrInvalidArchetype, a.Name, a.Range)
		}
		if _, dup := byName[a.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate name %s", ErrInvalidArchetype, a.Name)
		}
		byName[a.Name] = a
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: empty table", ErrInvalidArchetype)
	}

	return &Archetypes{list: list, byName: byName}, nil
}

// List returns the table in its declared order.
func (t *Archetypes) List() []Archetype {
	out := make([]Archetype, len(t.list))
	copy(out, t.list)
	return out
}

func (t *Archetypes) Lookup(name string) (Archetype, bool) {
	a, ok := t.byName[name]
	return a, ok
}

// NewRoster instantiates one fresh Unit per name, preserving order.
func (t *Archetypes) NewRoster(names []string) ([]*Unit, error) {
	if len(names) != RosterSize {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidRosterSize, len(names))
	}

	roster := make([]*Unit, 0, RosterSize)
	for _, name := range names {
		a, ok := t.Lookup(name)
		if !ok {
			return nil, &UnknownArchetypeError{Name: name}
		}
		roster = append(roster, NewUnit(a))
	}
	return roster, nil
}
