package parser

import (
	"testing"

	"github.com/shadowmere/dungeon-gm/pkg/protocol"
)

func singleMessage(t *testing.T, line string) *protocol.ServerMessage {
	t.Helper()
	results := ParseLine(line)
	if len(results) != 1 {
		t.Fatalf("ParseLine(%q) returned %d results, want 1", line, len(results))
	}
	if results[0].Message == nil {
		t.Fatalf("ParseLine(%q) produced no message", line)
	}
	return results[0].Message
}

func TestParseLineCoreTags(t *testing.T) {
	tests := []struct {
		name string
		line string
		typ  protocol.MessageType
		text string
	}{
		{"gm", "[GM] The torch gutters.", protocol.TypeGM, "The torch gutters."},
		{"gm no space", "[GM]The torch gutters.", protocol.TypeGM, "The torch gutters."},
		{"roll", "[ROLL] d20: 14 + STR(3) = 17 vs DC 15 - Success", protocol.TypeRoll, "d20: 14 + STR(3) = 17 vs DC 15 - Success"},
		{"dmg", "[DMG] The skeleton crumbles.", protocol.TypeDmg, "The skeleton crumbles."},
		{"sys", "[SYS] Combat initiated", protocol.TypeSys, "Combat initiated"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := singleMessage(t, tt.line)
			if msg.Type != tt.typ {
				t.Errorf("type = %s, want %s", msg.Type, tt.typ)
			}
			if msg.Text != tt.text {
				t.Errorf("text = %q, want %q", msg.Text, tt.text)
			}
		})
	}
}

func TestParseLineNFA(t *testing.T) {
	msg := singleMessage(t, `[NFA:Lyra] "We should not linger here."`)
	if msg.Type != protocol.TypeNFA {
		t.Fatalf("type = %s, want nfa", msg.Type)
	}
	if msg.Name != "Lyra" {
		t.Errorf("name = %q, want Lyra", msg.Name)
	}
	if msg.Text != `"We should not linger here."` {
		t.Errorf("unexpected text %q", msg.Text)
	}
}

func TestParseLineScene(t *testing.T) {
	msg := singleMessage(t, "[SCENE:spawn:skeleton:12:6]")
	if msg.Type != protocol.TypeScene {
		t.Fatalf("type = %s, want scene", msg.Type)
	}
	if msg.Command != "spawn" {
		t.Errorf("command = %q, want spawn", msg.Command)
	}
	if len(msg.Args) != 3 || msg.Args[0] != "skeleton" || msg.Args[1] != "12" || msg.Args[2] != "6" {
		t.Errorf("unexpected args %v", msg.Args)
	}

	msg = singleMessage(t, "[SCENE:set_map:boss_room]")
	if msg.Command != "set_map" || len(msg.Args) != 1 || msg.Args[0] != "boss_room" {
		t.Errorf("unexpected scene %+v", msg)
	}
}

func TestParseLineChoices(t *testing.T) {
	msg := singleMessage(t, "[CHOICE:Fight | Flee |  Parley  |]")
	if msg.Type != protocol.TypeChoices {
		t.Fatalf("type = %s, want choices", msg.Type)
	}
	want := []string{"Fight", "Flee", "Parley"}
	if len(msg.Options) != len(want) {
		t.Fatalf("options = %v, want %v", msg.Options, want)
	}
	for i := range want {
		if msg.Options[i] != want[i] {
			t.Errorf("option %d = %q, want %q", i, msg.Options[i], want[i])
		}
	}
}

func TestParseLineXP(t *testing.T) {
	msg := singleMessage(t, "[XP:25]")
	if msg.Type != protocol.TypeXPGain || msg.Amount != 25 {
		t.Errorf("unexpected xp message %+v", msg)
	}
}

func TestParseLineHP(t *testing.T) {
	tests := []struct {
		line  string
		name  string
		delta int
	}{
		{"[HP:Hero:-5]", "Hero", -5},
		{"[HP:Lyra:+3]", "Lyra", 3},
		{"[HP:兽族 #1:-7]", "兽族 #1", -7},
	}
	for _, tt := range tests {
		results := ParseLine(tt.line)
		if len(results) != 1 {
			t.Fatalf("ParseLine(%q) returned %d results", tt.line, len(results))
		}
		r := results[0]
		if r.Message != nil {
			t.Errorf("ParseLine(%q) produced a message, want HP only", tt.line)
		}
		if r.HP == nil {
			t.Fatalf("ParseLine(%q) produced no HP delta", tt.line)
		}
		if r.HP.Name != tt.name || r.HP.Delta != tt.delta {
			t.Errorf("ParseLine(%q) = {%q %d}, want {%q %d}", tt.line, r.HP.Name, r.HP.Delta, tt.name, tt.delta)
		}
	}
}

func TestParseLineInlineTagExtraction(t *testing.T) {
	results := ParseLine("The blow lands hard. [HP:Hero:-4] [XP:10]")
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Message == nil || results[0].Message.Type != protocol.TypeGM {
		t.Errorf("expected narration first, got %+v", results[0])
	}
	if results[0].Message.Text != "The blow lands hard." {
		t.Errorf("unexpected narration %q", results[0].Message.Text)
	}
	if results[1].HP == nil || results[1].HP.Name != "Hero" || results[1].HP.Delta != -4 {
		t.Errorf("unexpected hp result %+v", results[1])
	}
	if results[2].Message == nil || results[2].Message.Type != protocol.TypeXPGain || results[2].Message.Amount != 10 {
		t.Errorf("unexpected xp result %+v", results[2])
	}
}

func TestParseLineUntaggedNarrationFallback(t *testing.T) {
	msg := singleMessage(t, "Dust swirls in the torchlight.")
	if msg.Type != protocol.TypeGM || msg.Text != "Dust swirls in the torchlight." {
		t.Errorf("unexpected fallback %+v", msg)
	}
}

func TestParseLineBulletStripped(t *testing.T) {
	lines := []string{
		"* The floor gives way beneath you.",
		"*The floor gives way beneath you.",
		"*\tThe floor gives way beneath you.",
	}
	for _, line := range lines {
		msg := singleMessage(t, line)
		if msg.Type != protocol.TypeGM || msg.Text != "The floor gives way beneath you." {
			t.Errorf("ParseLine(%q) = %+v, want bare narration", line, msg)
		}
	}
	if results := ParseLine("*"); len(results) != 0 {
		t.Errorf("lone bullet should parse to nothing, got %+v", results)
	}
}

func TestParseLineAttackArrowFallback(t *testing.T) {
	results := ParseLine("[ATTACK:骷髅 → Hero, 伤害: 6]")
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	r := results[0]
	if r.Message == nil || r.Message.Type != protocol.TypeDmg {
		t.Fatalf("expected dmg message, got %+v", r.Message)
	}
	if r.HP == nil || r.HP.Name != "Hero" || r.HP.Delta != -6 {
		t.Errorf("unexpected hp delta %+v", r.HP)
	}
}

func TestParseLineCombatActionFallback(t *testing.T) {
	results := ParseLine("[COMBAT:enemy_attack:Hero:4]")
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	r := results[0]
	if r.Message == nil || r.Message.Text != "Hero takes 4 damage" {
		t.Errorf("unexpected message %+v", r.Message)
	}
	if r.HP == nil || r.HP.Name != "Hero" || r.HP.Delta != -4 {
		t.Errorf("unexpected hp delta %+v", r.HP)
	}

	// Player attacks produce a message but no party HP change.
	results = ParseLine("[COMBAT:player_attack:skeleton:7]")
	if len(results) != 1 || results[0].Message == nil {
		t.Fatalf("expected 1 message result, got %+v", results)
	}
	if results[0].HP != nil {
		t.Errorf("player attack should not yield an hp delta, got %+v", results[0].HP)
	}
}

func TestParseLineCombatCJKFallback(t *testing.T) {
	results := ParseLine("[COMBAT:骷髅 攻击 Hero,造成 5 点伤害]")
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	r := results[0]
	if r.Message == nil || r.Message.Type != protocol.TypeDmg {
		t.Fatalf("expected dmg message, got %+v", r.Message)
	}
	if r.HP == nil || r.HP.Name != "Hero" || r.HP.Delta != -5 {
		t.Errorf("unexpected hp delta %+v", r.HP)
	}

	// Attacker with a party marker keeps HP untouched.
	results = ParseLine("[COMBAT:Lyra #2 攻击 骷髅,造成 8 点伤害]")
	if len(results) != 1 || results[0].HP != nil {
		t.Errorf("party attacker should not yield an hp delta, got %+v", results)
	}
}

func TestParseLineCombatDefeat(t *testing.T) {
	msg := singleMessage(t, "[COMBAT:goblin_2 被击败]")
	if msg.Type != protocol.TypeSys || msg.Text != "goblin_2 defeated" {
		t.Errorf("unexpected message %+v", msg)
	}
}

func TestParseLineGenericDamageFallback(t *testing.T) {
	results := ParseLine("[DAMAGE: Hero takes 9 damage]")
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	r := results[0]
	if r.HP == nil || r.HP.Name != "Hero" || r.HP.Delta != -9 {
		t.Errorf("unexpected hp delta %+v", r.HP)
	}
}

func TestParseLineBareCJKDamage(t *testing.T) {
	results := ParseLine("火球对 骷髅 造成 12 点伤害")
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	r := results[0]
	if r.Message == nil || r.Message.Type != protocol.TypeDmg {
		t.Fatalf("expected dmg message, got %+v", r.Message)
	}
	if r.HP == nil || r.HP.Name != "骷髅" || r.HP.Delta != -12 {
		t.Errorf("unexpected hp delta %+v", r.HP)
	}
}

func TestParseLineIgnoredTags(t *testing.T) {
	ignored := []string{
		"[REWARD:gold:50]",
		"[ITEM:rusty sword]",
		"[LOOT:potion]",
		"[ENEMY:skeleton]",
		"[COMBAT:START]",
		"[COMBAT:end]",
		"[COMBAT:enemy_attack:Well Horror]",
		"[HP Status: Hero 12/20]",
		"[MUSIC:dungeon_theme]",
	}
	for _, line := range ignored {
		if results := ParseLine(line); len(results) != 0 {
			t.Errorf("ParseLine(%q) = %+v, want silence", line, results)
		}
	}
}

func TestParseLineMetaCommentaryFiltered(t *testing.T) {
	filtered := []string{
		"I can see the party is in trouble.",
		"Here's what happens next:",
		"This continues the scene from before.",
		"Note: the player should choose carefully.",
		"Let me describe the room.",
		"---",
	}
	for _, line := range filtered {
		if results := ParseLine(line); len(results) != 0 {
			t.Errorf("ParseLine(%q) = %+v, want silence", line, results)
		}
	}
}

func TestParseLineUntaggedDialogue(t *testing.T) {
	msg := singleMessage(t, `兽族 #1: 小心！前面有陷阱。`)
	if msg.Type != protocol.TypeNFA || msg.Name != "兽族 #1" {
		t.Errorf("unexpected message %+v", msg)
	}

	msg = singleMessage(t, `Lyra: "The runes are fresh."`)
	if msg.Type != protocol.TypeNFA || msg.Name != "Lyra" {
		t.Errorf("unexpected message %+v", msg)
	}
	if msg.Text != `The runes are fresh."` {
		t.Errorf("unexpected text %q", msg.Text)
	}
}

func TestParseLineDialogueStripsAsterisks(t *testing.T) {
	msg := singleMessage(t, `Brann #3: *grunts* "Watch the ceiling."`)
	if msg.Type != protocol.TypeNFA {
		t.Fatalf("expected nfa, got %s", msg.Type)
	}
	if msg.Name != "Brann #3" {
		t.Errorf("unexpected name %q", msg.Name)
	}
	if msg.Text != `grunts "Watch the ceiling."` {
		t.Errorf("unexpected text %q", msg.Text)
	}
}

func TestParseLineEmptyInput(t *testing.T) {
	if results := ParseLine(""); len(results) != 0 {
		t.Errorf("expected no results for empty line, got %+v", results)
	}
	if results := ParseLine("   "); len(results) != 0 {
		t.Errorf("expected no results for blank line, got %+v", results)
	}
}

func TestParseLineClosedVocabulary(t *testing.T) {
	lines := []string{
		"[GM] text",
		"[NFA:A] text",
		"[ROLL] d20: 4",
		"[DMG] hit",
		"[SYS] Combat initiated",
		"[SCENE:set_map:corridor]",
		"[CHOICE:a|b]",
		"[XP:5]",
		"[BOGUS] something odd",
		"plain narration",
		"[COMBAT:enemy_attack:Hero:3]",
	}
	allowed := map[protocol.MessageType]bool{
		protocol.TypeGM:      true,
		protocol.TypeNFA:     true,
		protocol.TypeRoll:    true,
		protocol.TypeDmg:     true,
		protocol.TypeSys:     true,
		protocol.TypeScene:   true,
		protocol.TypeChoices: true,
		protocol.TypeXPGain:  true,
	}
	for _, line := range lines {
		for _, r := range ParseLine(line) {
			if r.Message != nil && !allowed[r.Message.Type] {
				t.Errorf("ParseLine(%q) emitted out-of-vocabulary type %s", line, r.Message.Type)
			}
		}
	}
}
