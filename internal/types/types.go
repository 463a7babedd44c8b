package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/DoyleJ11/arena-server/internal/engine"
)

// Message kinds on the wire.
const (
	KindSelectTeam    = "select_team"
	KindReadyToBattle = "ready_to_battle"

	KindWelcome       = "welcome"
	KindTeamConfirmed = "team_confirmed"
	KindWaiting       = "waiting"
	KindError         = "error"
	KindBattleStart   = "battle_start"
	KindBattleResult  = "battle_result"
)

var ErrMalformedMessage = errors.New("malformed message")

// UnknownKindError reports a well-formed message with a type we do not handle.
type UnknownKindError struct {
	Kind string
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("unknown message type: %q", e.Kind)
}

// ClientMessage is one of SelectTeam or ReadyToBattle.
type ClientMessage interface{ isClientMessage() }

type SelectTeam struct {
	Team []string
}

func (SelectTeam) isClientMessage() {}

type ReadyToBattle struct{}

func (ReadyToBattle) isClientMessage() {}

// DecodeClientMessage parses one record. Field names are matched exactly.
// Unknown fields, missing fields and wrong types are ErrMalformedMessage; an
// unknown type is *UnknownKindError.
func DecodeClientMessage(data []byte) (ClientMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	rawKind, ok := fields["type"]
	if !ok {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	}
	var kind string
	if err := json.Unmarshal(rawKind, &kind); err != nil {
		return nil, fmt.Errorf("%w: type: %v", ErrMalformedMessage, err)
	}

	switch kind {
	case KindSelectTeam:
		if err := onlyFields(fields, "type", "team"); err != nil {
			return nil, err
		}
		var team []string
		if raw, ok := fields["team"]; ok {
			if err := json.Unmarshal(raw, &team); err != nil {
				return nil, fmt.Errorf("%w: team: %v", ErrMalformedMessage, err)
			}
		}
		if team == nil {
			return nil, fmt.Errorf("%w: missing team", ErrMalformedMessage)
		}
		return SelectTeam{Team: team}, nil

	case KindReadyToBattle:
		if err := onlyFields(fields, "type"); err != nil {
			return nil, err
		}
		return ReadyToBattle{}, nil

	default:
		return nil, &UnknownKindError{Kind: kind}
	}
}

func onlyFields(fields map[string]json.RawMessage, allowed ...string) error {
	for name := range fields {
		if !slices.Contains(allowed, name) {
			return fmt.Errorf("%w: unknown field %q", ErrMalformedMessage, name)
		}
	}
	return nil
}

// ServerMessage is any record the server sends. Kind matches the "type" field.
type ServerMessage interface{ Kind() string }

type Welcome struct {
	Type      string             `json:"type"`
	Message   string             `json:"message"`
	Champions []engine.Archetype `json:"champions"`
}

type TeamConfirmed struct {
	Type    string                `json:"type"`
	Message string                `json:"message"`
	Team    []engine.UnitSnapshot `json:"team"`
}

type Waiting struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type BattleStart struct {
	Type      string                `json:"type"`
	Message   string                `json:"message"`
	YourTeam  []engine.UnitSnapshot `json:"your_team"`
	EnemyTeam []engine.UnitSnapshot `json:"enemy_team"`
}

type BattleResult struct {
	Type           string                `json:"type"`
	Winner         engine.Winner         `json:"winner"`
	YourResult     engine.Result         `json:"your_result"`
	BattleLog      []string              `json:"battle_log"`
	YourTeamFinal  []engine.UnitSnapshot `json:"your_team_final"`
	EnemyTeamFinal []engine.UnitSnapshot `json:"enemy_team_final"`
}

func (Welcome) Kind() string       { return KindWelcome }
func (TeamConfirmed) Kind() string { return KindTeamConfirmed }
func (Waiting) Kind() string       { return KindWaiting }
func (Error) Kind() string         { return KindError }
func (BattleStart) Kind() string   { return KindBattleStart }
func (BattleResult) Kind() string  { return KindBattleResult }

func NewWelcome(sessionID string, table []engine.Archetype) Welcome {
	return Welcome{Type: KindWelcome, Message: fmt.Sprintf("Welcome %s!", sessionID), Champions: table}
}

func NewTeamConfirmed(names []string, team []engine.UnitSnapshot) TeamConfirmed {
	return TeamConfirmed{
		Type:    KindTeamConfirmed,
		Message: "Team selected: " + strings.Join(names, ", "),
		Team:    team,
	}
}

func NewWaiting(queued int) Waiting {
	return Waiting{Type: KindWaiting, Message: fmt.Sprintf("Waiting for an opponent... (%d/2)", queued)}
}

func NewError(msg string) Error {
	return Error{Type: KindError, Message: msg}
}

func NewBattleStart(opponentID string, own, enemy []engine.UnitSnapshot) BattleStart {
	return BattleStart{
		Type:      KindBattleStart,
		Message:   fmt.Sprintf("Battle started! Opponent: %s", opponentID),
		YourTeam:  own,
		EnemyTeam: enemy,
	}
}

// NewBattleResult builds the result seen by side. Both participants share
// rec.Log; it must not be modified afterwards.
func NewBattleResult(rec engine.Record, side engine.Winner) BattleResult {
	own, enemy := rec.Final(side)
	return BattleResult{
		Type:           KindBattleResult,
		Winner:         rec.Winner,
		YourResult:     rec.Winner.ResultFor(side),
		BattleLog:      rec.Log,
		YourTeamFinal:  own,
		EnemyTeamFinal: enemy,
	}
}

// Encode renders msg as a single JSON record without trailing newline.
func Encode(msg ServerMessage) ([]byte, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.Kind(), err)
	}
	return b, nil
}
