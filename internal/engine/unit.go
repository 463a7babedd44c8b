package engine

import "fmt"

// Unit is one combatant of a roster. It is mutated in place during a battle.
type Unit struct {
	Name      string
	MaxHealth int
	Health    int
	Damage    int
	Range     int
	Alive     bool
}

// UnitSnapshot is a copy of a Unit safe to hand to the network layer.
type UnitSnapshot struct {
	Name      string `json:"name"`
	Health    int    `json:"hp"`
	MaxHealth int    `json:"max_hp"`
	Damage    int    `json:"dmg"`
	Range     int    `json:"range"`
	Alive     bool   `json:"alive"`
}

func NewUnit(a Archetype) *Unit {
	return &Unit{
		Name:      a.Name,
		MaxHealth: a.MaxHealth,
		Health:    a.MaxHealth,
		Damage:    a.Damage,
		Range:     a.Range,
		Alive:     true,
	}
}

// ApplyDamage lowers health, clamped at zero. A unit at zero health is dead.
func (u *Unit) ApplyDamage(amount int) {
	if amount < 0 {
		amount = 0
	}
	u.Health -= amount
	if u.Health <= 0 {
		u.Health = 0
		u.Alive = false
	}
}

// Attack resolves one hit against target and returns the log line for it.
// Nothing changes when either side is already dead.
func (u *Unit) Attack(target *Unit) string {
	if !u.Alive {
		return fmt.Sprintf("%s is dead and cannot attack", u.Name)
	}
	if !target.Alive {
		return fmt.Sprintf("Target %s is already dead", target.Name)
	}

	target.ApplyDamage(u.Damage)
	line := fmt.Sprintf("%s attacks %s for %d damage", u.Name, target.Name, u.Damage)
	if !target.Alive {
		return line + fmt.Sprintf(" - %s was eliminated!", target.Name)
	}
	return line + fmt.Sprintf(" - %s has %d/%d HP left", target.Name, target.Health, target.MaxHealth)
}

func (u *Unit) Reset() {
	u.Health = u.MaxHealth
	u.Alive = true
}

func (u *Unit) Snapshot() UnitSnapshot {
	return UnitSnapshot{
		Name:      u.Name,
		Health:    u.Health,
		MaxHealth: u.MaxHealth,
		Damage:    u.Damage,
		Range:     u.Range,
		Alive:     u.Alive,
	}
}

func SnapshotTeam(team []*Unit) []UnitSnapshot {
	out := make([]UnitSnapshot, len(team))
	for i, u := range team {
		out[i] = u.Snapshot()
	}
	return out
}

func ResetTeam(team []*Unit) {
	for _, u := range team {
		u.Reset()
	}
}
