package engine

import (
	"fmt"
	"strings"
)

// MaxRounds bounds a battle. A battle still undecided after this many
// rounds is a draw.
const MaxRounds = 50

// Winner is the absolute outcome of a battle. The values match the wire
// format of the "winner" field.
type Winner int

const (
	Draw  Winner = 0
	Team1 Winner = 1
	Team2 Winner = 2
)

func (w Winner) String() string {
	switch w {
	case Team1:
		return "team1"
	case Team2:
		return "team2"
	default:
		return "draw"
	}
}

// Opponent returns the other side. Draw has no opponent.
func (w Winner) Opponent() Winner {
	switch w {
	case Team1:
		return Team2
	case Team2:
		return Team1
	default:
		return Draw
	}
}

type Result string

const (
	ResultWin  Result = "win"
	ResultLose Result = "lose"
	ResultDraw Result = "draw"
)

// ResultFor translates the absolute winner into the outcome seen by side.
func (w Winner) ResultFor(side Winner) Result {
	switch w {
	case Draw:
		return ResultDraw
	case side:
		return ResultWin
	default:
		return ResultLose
	}
}

// Record is the outcome of one Simulate call. It is read-only once returned.
type Record struct {
	Winner     Winner
	Rounds     int
	Log        []string
	Team1Final []UnitSnapshot
	Team2Final []UnitSnapshot
}

// Final returns the final rosters as seen by side: its own team first.
func (r Record) Final(side Winner) (own, enemy []UnitSnapshot) {
	if side == Team2 {
		return r.Team2Final, r.Team1Final
	}
	return r.Team1Final, r.Team2Final
}

// Simulate plays two rosters against each other until one side is wiped
// out or MaxRounds is exceeded. Both rosters are healed first and then
// mutated in place.
//
// Within a round team1 always acts first. Every living unit attacks, in
// roster order, the first living unit of the other team; targets are
// recomputed after each attack. If team1 wipes team2 out, team2 gets no
// counter-attack.
func Simulate(team1, team2 []*Unit) Record {
	ResetTeam(team1)
	ResetTeam(team2)

	var log []string
	log = append(log,
		"=== BATTLE START ===",
		"Team 1: "+teamNames(team1),
		"Team 2: "+teamNames(team2),
		"",
	)

	round, played := 1, 0
	finish := func(w Winner, line string) Record {
		return Record{
			Winner:     w,
			Rounds:     played,
			Log:        append(log, line),
			Team1Final: SnapshotTeam(team1),
			Team2Final: SnapshotTeam(team2),
		}
	}

	for {
		switch {
		case firstAlive(team1) == nil:
			return finish(Team2, "Team 2 WINS!")
		case firstAlive(team2) == nil:
			return finish(Team1, "Team 1 WINS!")
		case round > MaxRounds:
			return finish(Draw, "Battle lasted too long - DRAW!")
		}

		played = round
		log = append(log, fmt.Sprintf("--- ROUND %d ---", round))

		log = append(log, "Team 1 attacks:")
		log = attackPhase(log, team1, team2)
		if firstAlive(team2) == nil {
			continue
		}

		log = append(log, "Team 2 counter-attacks:")
		log = attackPhase(log, team2, team1)

		log = append(log, "")
		round++
	}
}

func attackPhase(log []string, attackers, defenders []*Unit) []string {
	for _, attacker := range attackers {
		if !attacker.Alive {
			continue
		}
		target := firstAlive(defenders)
		if target == nil {
			break
		}
		log = append(log, "  "+attacker.Attack(target))
	}
	return log
}

func firstAlive(team []*Unit) *Unit {
	for _, u := range team {
		if u.Alive {
			return u
		}
	}
	return nil
}

func teamNames(team []*Unit) string {
	names := make([]string, len(team))
	for i, u := range team {
		names[i] = u.Name
	}
	return strings.Join(names, ", ")
}
