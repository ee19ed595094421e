// Package prompts assembles the GM system prompt. The core never
// depends on prompt content, only on BuildSystemPrompt's signature;
// section text lives in a Store so it can be edited at runtime
// without touching parser or session code.
package prompts

import (
	"fmt"
	"strings"

	"github.com/shadowmere/dungeon-gm/pkg/protocol"
)

// Trait tables mirror the character contract enums carried in init
// payloads.

var Races = []string{"Human", "Elf", "Dwarf", "Tiefling", "Beastkin"}

var Classes = []string{"Warrior", "Mage", "Rogue", "Ranger", "Cleric", "Bard"}

var Personalities = []string{
	"Passionate", "Calm", "Cunning", "Kind", "Dark", "Cheerful", "Scholar", "Silent",
}

var TalentRarities = []string{"Common", "Rare", "Epic", "Legendary", "Mythic"}

var Talents = []string{
	"Iron Will", "Quick Draw", "Mana Surge", "Shadow Step", "Battle Cry",
	"Arcane Shield", "Poison Blade", "Healing Touch", "Eagle Eye", "Stone Skin",
	"Fire Breath", "Frost Nova", "Lightning Reflexes", "Dark Pact", "Holy Light",
	"Beast Form", "Time Warp", "Blood Rage", "Wind Walk", "Earth Shatter",
	"Spirit Link", "Void Step", "Solar Flare", "Lunar Blessing", "Thorn Armor",
	"Chain Lightning", "Death Grip", "Life Drain", "Mirror Image", "Berserker Rage",
}

var classRoles = []string{
	"Front-line melee fighter, heavy armor, high STR. Charges into battle.",
	"Arcane spellcaster, ranged magical damage, high INT. Stays at range.",
	"Stealth specialist, backstabs, lockpicking, high DEX. Flanks enemies.",
	"Ranged attacker with bow, tracking, traps, high DEX/WIS. Covers the party.",
	"Healer and divine caster, buffs and healing, high WIS. Supports allies.",
	"Jack of all trades, songs buff party, high CHA. Inspires the group.",
}

var personalityGuide = []string{
	`Passionate: energetic exclamations, battle cries. Speaks often.`,
	`Calm: measured analysis, strategic observations. Moderate frequency.`,
	`Cunning: sarcasm, scheming suggestions. Moderate frequency.`,
	`Kind: concern for party wellbeing, gentle encouragement. Moderate frequency.`,
	`Dark: morbid observations, fatalistic humor. Low-moderate frequency.`,
	`Cheerful: jokes, puns, enthusiasm in danger. High frequency.`,
	`Scholar: lore observations, analytical questions. Moderate frequency.`,
	`Silent: 2-4 word responses only, rarely speaks (1 in 4 responses at most).`,
}

// Builder assembles a system prompt section by section.
type Builder struct {
	store     *Store
	party     []protocol.PartyMemberInit
	hp        []protocol.HPUpdate
	floor     int
	inCombat  bool
	locale    string
	stageName string
}

func New(store *Store) *Builder {
	return &Builder{store: store, floor: 1, locale: "en"}
}

func (b *Builder) WithParty(party []protocol.PartyMemberInit) *Builder {
	b.party = party
	return b
}

func (b *Builder) WithHP(hp []protocol.HPUpdate) *Builder {
	b.hp = hp
	return b
}

func (b *Builder) WithFloor(floor int) *Builder {
	if floor > 0 {
		b.floor = floor
	}
	return b
}

func (b *Builder) WithCombat(inCombat bool) *Builder {
	b.inCombat = inCombat
	return b
}

func (b *Builder) WithLocale(locale string) *Builder {
	if locale != "" {
		b.locale = locale
	}
	return b
}

func (b *Builder) WithStageName(name string) *Builder {
	b.stageName = name
	return b
}

// Build renders the full system prompt.
func (b *Builder) Build() string {
	var sb strings.Builder

	for _, key := range []string{"role", "protocol", "scene", "combat", "companions"} {
		sb.WriteString(b.store.Get(key))
		sb.WriteString("\n\n")
	}

	lang := languageInstructions[b.locale]
	if lang == "" {
		lang = languageInstructions["en"]
	}
	sb.WriteString(lang)
	sb.WriteString("\n\n")

	sb.WriteString(b.store.Get("storyline"))
	sb.WriteString("\n\n")
	sb.WriteString(b.store.Get(stageKey(b.floor)))
	sb.WriteString("\n\n")

	stage := b.stageName
	if stage == "" {
		stage = "the Shadowmere Depths"
	}
	fmt.Fprintf(&sb, "CURRENT STATE: %s, Floor %d. ", stage, b.floor)
	if b.inCombat {
		sb.WriteString("The party is IN COMBAT.\n\n")
	} else {
		sb.WriteString("The party is exploring.\n\n")
	}

	sb.WriteString("THE PARTY:\n")
	sb.WriteString(b.roster())

	return strings.TrimSpace(sb.String())
}

func (b *Builder) roster() string {
	hpByName := make(map[string]protocol.HPUpdate, len(b.hp))
	for _, u := range b.hp {
		hpByName[u.Name] = u
	}

	var sb strings.Builder
	for _, m := range b.party {
		hp, maxHP := m.HP, m.MaxHP
		if u, ok := hpByName[m.Name]; ok {
			hp, maxHP = u.HP, u.MaxHP
		}
		role := "party member"
		if m.IsCharacter {
			role = "the player character"
		}
		fmt.Fprintf(&sb, "- %s, level %d %s (%s), HP %d/%d\n", m.Name, m.Level, m.ClassName, role, hp, maxHP)
		if t := m.Traits; t != nil {
			fmt.Fprintf(&sb, "  %s %s", indexed(Races, t.Race), indexed(Classes, t.Class))
			if r := indexed(classRoles, t.Class); r != "" {
				fmt.Fprintf(&sb, ". %s", r)
			}
			sb.WriteString("\n")
			if g := indexed(personalityGuide, t.Personality); g != "" {
				fmt.Fprintf(&sb, "  Personality - %s\n", g)
			}
			if talent := indexed(Talents, t.TalentID); talent != "" {
				fmt.Fprintf(&sb, "  Talent: %s (%s)\n", talent, indexed(TalentRarities, t.TalentRarity))
			}
		}
	}
	return sb.String()
}

func indexed(table []string, i int) string {
	if i < 0 || i >= len(table) {
		return ""
	}
	return table[i]
}

// BuildSystemPrompt is the pure-function entry point the connection
// handler uses; it has no side effects on any session state.
func BuildSystemPrompt(store *Store, party []protocol.PartyMemberInit, floor int, inCombat bool, hp []protocol.HPUpdate, locale, stageName string) string {
	return New(store).
		WithParty(party).
		WithFloor(floor).
		WithCombat(inCombat).
		WithHP(hp).
		WithLocale(locale).
		WithStageName(stageName).
		Build()
}
