package scene

import (
	"io"
	"log/slog"
	"math/rand"
	"testing"

	"github.com/shadowmere/dungeon-gm/pkg/parser"
	"github.com/shadowmere/dungeon-gm/pkg/protocol"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func quietState() State {
	return State{Map: "corridor", PartyPosX: 9, PartyPosY: 8}
}

func newPP(t *testing.T, result *parser.TurnResult, state State, floor int) *PostProcessor {
	t.Helper()
	return NewPostProcessor(result, state, floor, discardLogger())
}

func sceneCommands(msgs []protocol.ServerMessage) []string {
	var out []string
	for _, m := range msgs {
		if m.Type == protocol.TypeScene {
			out = append(out, m.Command)
		}
	}
	return out
}

func findScene(msgs []protocol.ServerMessage, cmd string) *protocol.ServerMessage {
	for i, m := range msgs {
		if m.Type == protocol.TypeScene && m.Command == cmd {
			return &msgs[i]
		}
	}
	return nil
}

func TestQuietTurnInjectsNothing(t *testing.T) {
	result := &parser.TurnResult{
		Messages: []protocol.ServerMessage{protocol.GM("The party rests by the brazier.")},
		RawText:  "[GM] The party rests by the brazier.",
	}
	if injected := newPP(t, result, quietState(), 1).Run(); len(injected) != 0 {
		t.Errorf("injected = %v, want nothing for a quiet turn", injected)
	}
}

func TestRoomTransitionInjection(t *testing.T) {
	result := &parser.TurnResult{
		Messages: []protocol.ServerMessage{
			protocol.Sys("The party descends to floor 2"),
			protocol.GM("Stairs spiral down into the dark."),
		},
		RawText: "[SYS] The party descends to floor 2\n[GM] Stairs spiral down into the dark.",
	}
	injected := newPP(t, result, quietState(), 2).Run()

	setMap := findScene(injected, "set_map")
	if setMap == nil || len(setMap.Args) != 1 || setMap.Args[0] != "chamber" {
		t.Fatalf("injected = %v, want set_map chamber", injected)
	}
	move := findScene(injected, "move_party")
	if move == nil || len(move.Args) != 2 || move.Args[0] != "9" || move.Args[1] != "8" {
		t.Fatalf("injected = %v, want move_party 9 8", injected)
	}
}

func TestRoomTransitionSkippedWhenModelComplied(t *testing.T) {
	result := &parser.TurnResult{
		Messages: []protocol.ServerMessage{
			protocol.Sys("Descending to floor 2"),
			protocol.Scene("set_map", "chamber"),
		},
		RawText: "[SYS] Descending to floor 2\n[SCENE:set_map:chamber]",
	}
	if injected := newPP(t, result, quietState(), 2).Run(); findScene(injected, "set_map") != nil {
		t.Errorf("injected = %v, model already set the map", injected)
	}
}

func TestRoomTransitionSkippedWhenAlreadyThere(t *testing.T) {
	state := quietState()
	state.Map = "chamber"
	result := &parser.TurnResult{
		Messages: []protocol.ServerMessage{protocol.Sys("Descending to floor 2")},
		RawText:  "[SYS] Descending to floor 2",
	}
	if injected := newPP(t, result, state, 2).Run(); findScene(injected, "set_map") != nil {
		t.Errorf("injected = %v, room already matches the floor", injected)
	}
}

func TestCombatEffectFireball(t *testing.T) {
	result := &parser.TurnResult{
		Messages: []protocol.ServerMessage{protocol.Dmg("The goblin takes 5 damage")},
		RawText:  "[DMG] The goblin takes 5 damage",
	}
	injected := newPP(t, result, quietState(), 1).Run()

	effect := findScene(injected, "effect")
	if effect == nil {
		t.Fatalf("injected = %v, want a fireball effect", injected)
	}
	// No spawn this turn, so the effect lands offset from the party.
	want := []string{"fireball", "12", "6"}
	if len(effect.Args) != 3 || effect.Args[0] != want[0] || effect.Args[1] != want[1] || effect.Args[2] != want[2] {
		t.Errorf("effect args = %v, want %v", effect.Args, want)
	}
}

func TestCombatEffectUsesSpawnPosition(t *testing.T) {
	result := &parser.TurnResult{
		Messages: []protocol.ServerMessage{
			protocol.Scene("spawn", "goblin", "14", "5"),
			protocol.Dmg("The goblin takes 5 damage"),
		},
		RawText: "[SCENE:spawn:goblin:14:5]\n[DMG] The goblin takes 5 damage",
	}
	injected := newPP(t, result, quietState(), 1).Run()

	effect := findScene(injected, "effect")
	if effect == nil {
		t.Fatalf("injected = %v, want an effect", injected)
	}
	if effect.Args[1] != "14" || effect.Args[2] != "5" {
		t.Errorf("effect at (%s,%s), want the spawn position (14,5)", effect.Args[1], effect.Args[2])
	}
}

func TestCombatEffectHeal(t *testing.T) {
	result := &parser.TurnResult{
		Messages: []protocol.ServerMessage{protocol.Roll("Lyra rolls 18 on her healing prayer")},
		RawText:  "[ROLL] Lyra rolls 18 on her healing prayer\n[HP:Hero:+6]",
	}
	injected := newPP(t, result, quietState(), 1).Run()

	effect := findScene(injected, "effect")
	if effect == nil {
		t.Fatalf("injected = %v, want a heal effect", injected)
	}
	want := []string{"heal", "9", "8"}
	if effect.Args[0] != want[0] || effect.Args[1] != want[1] || effect.Args[2] != want[2] {
		t.Errorf("effect args = %v, want %v at the party position", effect.Args, want)
	}
}

func TestCombatEffectSkippedWhenModelComplied(t *testing.T) {
	result := &parser.TurnResult{
		Messages: []protocol.ServerMessage{
			protocol.Dmg("The goblin takes 5 damage"),
			protocol.Scene("effect", "fireball", "12", "6"),
		},
		RawText: "[DMG] The goblin takes 5 damage\n[SCENE:effect:fireball:12:6]",
	}
	if injected := newPP(t, result, quietState(), 1).Run(); findScene(injected, "effect") != nil {
		t.Errorf("injected = %v, model already emitted an effect", injected)
	}
}

func TestDeathCleanup(t *testing.T) {
	state := quietState()
	state.Entities = []string{"goblin_1", "skeleton_1"}
	state.InCombat = true
	result := &parser.TurnResult{
		Messages: []protocol.ServerMessage{protocol.GM("The skeleton is slain, crumbling into bones.")},
		RawText:  "[GM] The skeleton is slain, crumbling into bones.",
	}
	injected := newPP(t, result, state, 2).Run()

	remove := findScene(injected, "remove")
	if remove == nil {
		t.Fatalf("injected = %v, want a remove", injected)
	}
	if remove.Args[0] != "skeleton_1" {
		t.Errorf("removed %q, want the enemy the narration names", remove.Args[0])
	}
	smoke := findScene(injected, "effect")
	if smoke == nil || smoke.Args[0] != "smoke" {
		t.Errorf("injected = %v, want a smoke effect alongside the removal", injected)
	}
}

func TestDeathCleanupFallsBackToFirstEnemy(t *testing.T) {
	state := quietState()
	state.Entities = []string{"goblin_1", "goblin_2"}
	result := &parser.TurnResult{
		Messages: []protocol.ServerMessage{protocol.GM("Your foe is slain.")},
		RawText:  "[GM] Your foe is slain.",
	}
	injected := newPP(t, result, state, 1).Run()
	remove := findScene(injected, "remove")
	if remove == nil || remove.Args[0] != "goblin_1" {
		t.Errorf("injected = %v, want removal of the first tracked enemy", injected)
	}
}

func TestDeathCleanupNoEnemies(t *testing.T) {
	state := quietState()
	state.Entities = []string{"door_1"}
	result := &parser.TurnResult{
		Messages: []protocol.ServerMessage{protocol.GM("The wraith dies with a shriek!")},
		RawText:  "[GM] The wraith dies with a shriek!",
	}
	if injected := newPP(t, result, state, 1).Run(); findScene(injected, "remove") != nil {
		t.Errorf("injected = %v, nothing tracked to remove", injected)
	}
}

func TestAutoClearCombat(t *testing.T) {
	state := quietState()
	state.InCombat = true
	state.Entities = []string{"door_1"} // no enemies left
	result := &parser.TurnResult{
		Messages: []protocol.ServerMessage{protocol.GM("Silence falls over the corridor.")},
		RawText:  "[GM] Silence falls over the corridor.",
	}
	pp := newPP(t, result, state, 1)
	pp.Run()
	if !pp.ClearedCombat() {
		t.Error("expected auto-clear when no enemies remain")
	}
}

func TestNoAutoClearWithEnemiesLeft(t *testing.T) {
	state := quietState()
	state.InCombat = true
	state.Entities = []string{"goblin_1"}
	result := &parser.TurnResult{
		Messages: []protocol.ServerMessage{protocol.GM("The goblin circles warily.")},
		RawText:  "[GM] The goblin circles warily.",
	}
	pp := newPP(t, result, state, 1)
	pp.Run()
	if pp.ClearedCombat() {
		t.Error("combat must stay active while enemies remain")
	}
}

func TestShouldClearCombat(t *testing.T) {
	if !ShouldClearCombat(true, []string{"door_1"}) {
		t.Error("want clear: in combat, no enemies")
	}
	if ShouldClearCombat(true, []string{"goblin_1"}) {
		t.Error("want no clear: enemy remains")
	}
	if ShouldClearCombat(false, nil) {
		t.Error("want no clear: not in combat")
	}
}

func TestExploreMove(t *testing.T) {
	result := &parser.TurnResult{
		Messages: []protocol.ServerMessage{protocol.GM("You advance down the corridor.")},
		RawText:  "[GM] You advance down the corridor.",
	}
	injected := newPP(t, result, quietState(), 1).Run()

	move := findScene(injected, "move_party")
	if move == nil {
		t.Fatalf("injected = %v, want a one-tile nudge", injected)
	}
	if move.Args[0] != "9" || move.Args[1] != "7" {
		t.Errorf("move to (%s,%s), want (9,7)", move.Args[0], move.Args[1])
	}
}

func TestExploreMoveGates(t *testing.T) {
	narrate := func() *parser.TurnResult {
		return &parser.TurnResult{
			Messages: []protocol.ServerMessage{protocol.GM("You continue forward.")},
			RawText:  "[GM] You continue forward.",
		}
	}

	t.Run("suppressed in combat", func(t *testing.T) {
		state := quietState()
		state.InCombat = true
		state.Entities = []string{"goblin_1"}
		if injected := newPP(t, narrate(), state, 1).Run(); findScene(injected, "move_party") != nil {
			t.Errorf("injected = %v, no movement during combat", injected)
		}
	})

	t.Run("suppressed at the top wall", func(t *testing.T) {
		state := quietState()
		state.PartyPosY = 2
		if injected := newPP(t, narrate(), state, 1).Run(); findScene(injected, "move_party") != nil {
			t.Errorf("injected = %v, party is already at the wall", injected)
		}
	})

	t.Run("suppressed when model moved", func(t *testing.T) {
		result := narrate()
		result.Messages = append(result.Messages, protocol.Scene("move_party", "10", "6"))
		if injected := newPP(t, result, quietState(), 1).Run(); findScene(injected, "move_party") != nil {
			t.Errorf("injected = %v, model already moved the party", injected)
		}
	})

	t.Run("suppressed after room transition", func(t *testing.T) {
		result := &parser.TurnResult{
			Messages: []protocol.ServerMessage{protocol.Sys("You proceed to floor 3")},
			RawText:  "[SYS] You proceed to floor 3",
		}
		injected := newPP(t, result, quietState(), 3).Run()
		move := findScene(injected, "move_party")
		if move == nil {
			t.Fatal("room transition should inject its own reposition")
		}
		// Exactly one move: the transition reposition, not the explore nudge.
		if cmds := sceneCommands(injected); len(cmds) != 2 {
			t.Errorf("injected commands = %v, want only set_map and move_party", cmds)
		}
	})
}

func TestCombatSpawn(t *testing.T) {
	result := &parser.TurnResult{
		Messages: []protocol.ServerMessage{
			protocol.Sys("Combat initiated"),
			protocol.GM("A goblin lunges from the dark!"),
		},
		RawText: "[SYS] Combat initiated\n[GM] A goblin lunges from the dark!",
	}
	pp := newPP(t, result, quietState(), 1).WithRand(rand.New(rand.NewSource(7)))
	injected := pp.Run()

	var spawns []protocol.ServerMessage
	for _, m := range injected {
		if m.Type == protocol.TypeScene && m.Command == "spawn" {
			spawns = append(spawns, m)
		}
	}
	if len(spawns) < 1 || len(spawns) > 2 {
		t.Fatalf("spawned %d enemies, want 1 or 2", len(spawns))
	}
	wantPos := [2][2]string{{"12", "6"}, {"6", "6"}}
	for i, sp := range spawns {
		if sp.Args[0] != "goblin" {
			t.Errorf("spawn type = %q, want the type the narration names", sp.Args[0])
		}
		if sp.Args[1] != wantPos[i][0] || sp.Args[2] != wantPos[i][1] {
			t.Errorf("spawn %d at (%s,%s), want (%s,%s)", i, sp.Args[1], sp.Args[2], wantPos[i][0], wantPos[i][1])
		}
	}
}

func TestCombatSpawnUsesFloorPool(t *testing.T) {
	result := &parser.TurnResult{
		Messages: []protocol.ServerMessage{
			protocol.Sys("Combat start"),
			protocol.GM("Something stirs in the gloom."),
		},
		RawText: "[SYS] Combat start\n[GM] Something stirs in the gloom.",
	}
	pp := newPP(t, result, quietState(), 5).WithRand(rand.New(rand.NewSource(3)))
	injected := pp.Run()

	pool := map[string]bool{"golem": true, "dragon": true}
	found := false
	for _, m := range injected {
		if m.Type == protocol.TypeScene && m.Command == "spawn" {
			found = true
			if !pool[m.Args[0]] {
				t.Errorf("spawn type %q not in the floor 5 pool", m.Args[0])
			}
		}
	}
	if !found {
		t.Fatalf("injected = %v, want at least one spawn", injected)
	}
}

func TestCombatSpawnSkippedWithEnemiesOnBoard(t *testing.T) {
	state := quietState()
	state.Entities = []string{"slime_1"}
	result := &parser.TurnResult{
		Messages: []protocol.ServerMessage{protocol.Sys("Ambush!")},
		RawText:  "[SYS] Ambush!",
	}
	if injected := newPP(t, result, state, 1).Run(); findScene(injected, "spawn") != nil {
		t.Errorf("injected = %v, board already has enemies", injected)
	}
}

func TestCombatSpawnSkippedWhenModelComplied(t *testing.T) {
	result := &parser.TurnResult{
		Messages: []protocol.ServerMessage{
			protocol.Sys("Combat initiated"),
			protocol.Scene("spawn", "goblin", "12", "6"),
		},
		RawText: "[SYS] Combat initiated\n[SCENE:spawn:goblin:12:6]",
	}
	if injected := newPP(t, result, quietState(), 1).Run(); findScene(injected, "spawn") != nil {
		t.Errorf("injected = %v, model already spawned", injected)
	}
}

func TestSysTextHelpers(t *testing.T) {
	tests := []struct {
		text      string
		start     bool
		end       bool
		wantFloor int
	}{
		{"Combat initiated", true, false, 0},
		{"Combat start: two goblins", true, false, 0},
		{"战斗开始", true, false, 0},
		{"An ambush springs from the walls", false, false, 0},
		{"You engage the goblin", false, false, 0},
		{"The wraith moves to attack", false, false, 0},
		{"Combat ends in victory", false, true, 0},
		{"战斗结束", false, true, 0},
		{"The party reaches floor 3", false, false, 3},
		{"進入第 4 層", false, false, 4},
		{"Nothing notable", false, false, 0},
	}
	for _, tt := range tests {
		if got := CombatStartText(tt.text); got != tt.start {
			t.Errorf("CombatStartText(%q) = %v, want %v", tt.text, got, tt.start)
		}
		if got := CombatEndText(tt.text); got != tt.end {
			t.Errorf("CombatEndText(%q) = %v, want %v", tt.text, got, tt.end)
		}
		if got := FloorFromText(tt.text); got != tt.wantFloor {
			t.Errorf("FloorFromText(%q) = %d, want %d", tt.text, got, tt.wantFloor)
		}
	}
}

func TestClampedPositionsNearWalls(t *testing.T) {
	state := quietState()
	state.PartyPosX = 16
	state.PartyPosY = 3
	state.Entities = []string{"goblin_1"}
	result := &parser.TurnResult{
		Messages: []protocol.ServerMessage{protocol.GM("The goblin has fallen.")},
		RawText:  "[GM] The goblin has fallen.",
	}
	injected := newPP(t, result, state, 1).Run()

	smoke := findScene(injected, "effect")
	if smoke == nil {
		t.Fatalf("injected = %v, want a smoke effect", injected)
	}
	// x would be 19 and y would be 1 unclamped.
	if smoke.Args[1] != "17" || smoke.Args[2] != "2" {
		t.Errorf("effect at (%s,%s), want clamped (17,2)", smoke.Args[1], smoke.Args[2])
	}
}
