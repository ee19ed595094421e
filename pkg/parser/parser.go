// Package parser turns raw GM model output into the closed set of
// wire messages and HP deltas. The model's compliance with the tag
// protocol is unreliable, so parsing is a fixed-priority chain of
// pattern rules with free-text fallbacks: any line that matches
// nothing becomes plain narration, and invented tags are either
// coerced to damage events or dropped.
package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shadowmere/dungeon-gm/pkg/protocol"
)

// HPDelta is a signed HP change extracted from model output, keyed by
// the free-text name the model used. Negative is damage.
type HPDelta struct {
	Name  string
	Delta int
}

// Result is one parsed outcome from a line: a message, an HP delta,
// or both (some damage fallbacks produce both).
type Result struct {
	Message *protocol.ServerMessage
	HP      *HPDelta
}

var (
	reInlineTag = regexp.MustCompile(`\[(?:SCENE|CHOICE|XP|HP|ATTACK|DAMAGE|COMBAT):[^\]]+\]`)
	reBullet    = regexp.MustCompile(`^\*\s*`)

	reGM     = regexp.MustCompile(`^\[GM\]\s*(.+)$`)
	reNFA    = regexp.MustCompile(`^\[NFA:(.+?)\]\s*(.+)$`)
	reRoll   = regexp.MustCompile(`^\[ROLL\]\s*(.+)$`)
	reDmg    = regexp.MustCompile(`^\[DMG\]\s*(.+)$`)
	reSys    = regexp.MustCompile(`^\[SYS\]\s*(.+)$`)
	reScene  = regexp.MustCompile(`\[SCENE:(.+?)\]`)
	reChoice = regexp.MustCompile(`\[CHOICE:(.+?)\]`)
	reXP     = regexp.MustCompile(`\[XP:(\d+)\]`)
	reHP     = regexp.MustCompile(`\[HP:(.+?):([+-]?\d+)\]`)

	// Invented-tag fallbacks. The model frequently narrates combat in
	// its own bracket dialects instead of [HP:Name:-N]; each of these
	// recovers an equivalent dmg message and, where possible, a delta.
	reAttackArrow  = regexp.MustCompile(`\[ATTACK:.*?→\s*(.+?),\s*(?:伤害|damage|傷害)[:\s]*(\d+)\s*\]`)
	reCombatAction = regexp.MustCompile(`\[COMBAT:(\w+_?\w*):(\w+(?:\s*#\d+)?):(\d+)\]`)
	reCombatCJK    = regexp.MustCompile(`(?i)\[COMBAT:(.+?)\s+(?:攻击|攻擊|反击|反擊|attacks?)\s+(.+?)[,，]\s*(?:造成|dealing)\s*(\d+)\s*(?:点|點)?\s*(?:伤害|傷害|damage)`)
	reCombatDefeat = regexp.MustCompile(`\[COMBAT:(.+?)(?:被击败|被擊敗|defeated|dies)\]`)
	reGenericDmg   = regexp.MustCompile(`(?i)\[(?:DAMAGE|DMG|COMBAT)[:\s].*?(\S+(?:\s+#\d+)?)\s*(?:takes?|受到|receives?)\s*(\d+)\s*(?:damage|点伤害|點傷害|伤害)?`)
	reBareCJKDmg   = regexp.MustCompile(`对\s*(.+?)\s*造成\s*(\d+)\s*(?:点|點)\s*(?:伤害|傷害)`)

	// Always-discarded noise.
	reIgnoredTag     = regexp.MustCompile(`^\[(?:REWARD|ITEM|LOOT|GOLD|QUEST|STATUS|INFO|NOTE|MUSIC|SOUND|BGM|ENEMY|EFFECT|EVENT):`)
	reCombatStartEnd = regexp.MustCompile(`^\[COMBAT:(?:START|END|start|end)\]`)
	reEnemyAttackTag = regexp.MustCompile(`^\[COMBAT:\w+_attack:`)
	reHPStatus       = regexp.MustCompile(`(?i)^\[HP\s*Status:`)
	reDigit          = regexp.MustCompile(`\d`)

	// Model breaking character; never shown to the player.
	reMetaCommentary = regexp.MustCompile(`(?i)^(?:\*\s*)?(?:I can see|Here'?s|This (?:continues|is|shows|demonstrates)|Note:|Let me|Now the|---\s*$)`)

	// Untagged companion dialogue: `Name #N: text` or `Name: "text"`.
	reDialogueNum  = regexp.MustCompile(`^(.+?#\d+)\s*[:：]\s*(.+)$`)
	reDialogueName = regexp.MustCompile(`^([A-Za-z\x{4e00}-\x{9fff}]+(?:\s+#\d+)?)\s*[:：]\s*["“「](.+)$`)

	reLeadingTag = regexp.MustCompile(`^\[.*?\]\s*`)
	reTagPrefix  = regexp.MustCompile(`^\[\w+[:\s]`)
)

// ParseLine parses one line of raw model output. A single line may
// yield several results when bracket tags are embedded mid-sentence:
// each embedded tag is extracted and parsed on its own, and the
// stripped remainder is parsed as an independent candidate.
func ParseLine(line string) []Result {
	var inline []string
	cleaned := reInlineTag.ReplaceAllStringFunc(line, func(match string) string {
		inline = append(inline, match)
		return ""
	})
	cleaned = strings.TrimSpace(cleaned)

	var results []Result
	if cleaned != "" {
		if r, ok := parseCandidate(cleaned); ok {
			results = append(results, r)
		}
	}
	for _, tag := range inline {
		if r, ok := parseCandidate(tag); ok {
			results = append(results, r)
		}
	}
	return results
}

type tagRule struct {
	name  string
	match func(line string) (Result, bool)
}

// tagRules is evaluated in order; the first rule that matches wins.
// Append new heuristics at the appropriate priority, never reorder.
var tagRules = []tagRule{
	{"gm", func(line string) (Result, bool) {
		if m := reGM.FindStringSubmatch(line); m != nil {
			return message(protocol.GM(m[1])), true
		}
		return Result{}, false
	}},
	{"nfa", func(line string) (Result, bool) {
		if m := reNFA.FindStringSubmatch(line); m != nil {
			return message(protocol.NFA(m[1], m[2])), true
		}
		return Result{}, false
	}},
	{"roll", func(line string) (Result, bool) {
		if m := reRoll.FindStringSubmatch(line); m != nil {
			return message(protocol.Roll(m[1])), true
		}
		return Result{}, false
	}},
	{"dmg", func(line string) (Result, bool) {
		if m := reDmg.FindStringSubmatch(line); m != nil {
			return message(protocol.Dmg(m[1])), true
		}
		return Result{}, false
	}},
	{"sys", func(line string) (Result, bool) {
		if m := reSys.FindStringSubmatch(line); m != nil {
			return message(protocol.Sys(m[1])), true
		}
		return Result{}, false
	}},
	{"scene", func(line string) (Result, bool) {
		if m := reScene.FindStringSubmatch(line); m != nil {
			parts := strings.Split(m[1], ":")
			return message(protocol.Scene(parts[0], parts[1:]...)), true
		}
		return Result{}, false
	}},
	{"choice", func(line string) (Result, bool) {
		if m := reChoice.FindStringSubmatch(line); m != nil {
			var options []string
			for _, opt := range strings.Split(m[1], "|") {
				if opt = strings.TrimSpace(opt); opt != "" {
					options = append(options, opt)
				}
			}
			return message(protocol.Choices(options)), true
		}
		return Result{}, false
	}},
	{"xp", func(line string) (Result, bool) {
		if m := reXP.FindStringSubmatch(line); m != nil {
			amount, err := strconv.Atoi(m[1])
			if err != nil {
				return Result{}, false
			}
			return message(protocol.XPGain(amount)), true
		}
		return Result{}, false
	}},
	{"hp", func(line string) (Result, bool) {
		if m := reHP.FindStringSubmatch(line); m != nil {
			delta, err := strconv.Atoi(strings.TrimPrefix(m[2], "+"))
			if err != nil {
				return Result{}, false
			}
			return Result{HP: &HPDelta{Name: m[1], Delta: delta}}, true
		}
		return Result{}, false
	}},
	{"attack_arrow", func(line string) (Result, bool) {
		m := reAttackArrow.FindStringSubmatch(line)
		if m == nil {
			return Result{}, false
		}
		dmg, err := strconv.Atoi(m[2])
		if err != nil {
			return Result{}, false
		}
		text := strings.TrimSuffix(strings.TrimPrefix(line, "[ATTACK:"), "]")
		return Result{
			Message: msgPtr(protocol.Dmg(strings.TrimSpace(text))),
			HP:      &HPDelta{Name: strings.TrimSpace(m[1]), Delta: -dmg},
		}, true
	}},
	{"combat_action", func(line string) (Result, bool) {
		m := reCombatAction.FindStringSubmatch(line)
		if m == nil {
			return Result{}, false
		}
		action := strings.ToLower(m[1])
		target := strings.TrimSpace(m[2])
		amount, err := strconv.Atoi(m[3])
		if err != nil {
			return Result{}, false
		}
		if strings.Contains(action, "enemy") || strings.Contains(action, "monster") {
			return Result{
				Message: msgPtr(protocol.Dmg(target + " takes " + m[3] + " damage")),
				HP:      &HPDelta{Name: target, Delta: -amount},
			}, true
		}
		return message(protocol.Dmg("Attack on " + target + " for " + m[3] + " damage")), true
	}},
	{"combat_cjk", func(line string) (Result, bool) {
		m := reCombatCJK.FindStringSubmatch(line)
		if m == nil {
			return Result{}, false
		}
		attacker := strings.TrimSpace(m[1])
		target := strings.TrimSpace(m[2])
		amount, err := strconv.Atoi(m[3])
		if err != nil {
			return Result{}, false
		}
		r := message(protocol.Dmg(attacker + " attacks " + target + " for " + m[3] + " damage"))
		// Party members carry "#N" suffixes or the word "player"; an
		// attacker without either is an enemy, so the target takes the hit.
		if !strings.Contains(attacker, "#") && !strings.Contains(strings.ToLower(attacker), "player") {
			r.HP = &HPDelta{Name: target, Delta: -amount}
		}
		return r, true
	}},
	{"combat_defeat", func(line string) (Result, bool) {
		if m := reCombatDefeat.FindStringSubmatch(line); m != nil {
			return message(protocol.Sys(strings.TrimSpace(m[1]) + " defeated")), true
		}
		return Result{}, false
	}},
	{"generic_dmg", func(line string) (Result, bool) {
		m := reGenericDmg.FindStringSubmatch(line)
		if m == nil {
			return Result{}, false
		}
		dmg, err := strconv.Atoi(m[2])
		if err != nil {
			return Result{}, false
		}
		text := strings.TrimSuffix(reTagPrefix.ReplaceAllString(line, ""), "]")
		return Result{
			Message: msgPtr(protocol.Dmg(strings.TrimSpace(text))),
			HP:      &HPDelta{Name: strings.TrimSpace(m[1]), Delta: -dmg},
		}, true
	}},
	{"ignored_tag", func(line string) (Result, bool) {
		if reIgnoredTag.MatchString(line) || reCombatStartEnd.MatchString(line) || reHPStatus.MatchString(line) {
			return Result{}, true
		}
		// [COMBAT:enemy_attack:Name] with no damage number carries nothing.
		if reEnemyAttackTag.MatchString(line) && !reDigit.MatchString(line) {
			return Result{}, true
		}
		return Result{}, false
	}},
	{"bare_cjk_dmg", func(line string) (Result, bool) {
		m := reBareCJKDmg.FindStringSubmatch(line)
		if m == nil {
			return Result{}, false
		}
		amount, err := strconv.Atoi(m[2])
		if err != nil {
			return Result{}, false
		}
		text := strings.TrimSpace(reLeadingTag.ReplaceAllString(line, ""))
		return Result{
			Message: msgPtr(protocol.Dmg(text)),
			HP:      &HPDelta{Name: strings.TrimSpace(m[1]), Delta: -amount},
		}, true
	}},
	{"meta_commentary", func(line string) (Result, bool) {
		if reMetaCommentary.MatchString(line) {
			return Result{}, true
		}
		return Result{}, false
	}},
	{"dialogue", func(line string) (Result, bool) {
		m := reDialogueNum.FindStringSubmatch(line)
		if m == nil {
			m = reDialogueName.FindStringSubmatch(line)
		}
		if m == nil {
			return Result{}, false
		}
		name := strings.TrimSpace(m[1])
		text := strings.TrimSpace(strings.ReplaceAll(m[2], "*", ""))
		return message(protocol.NFA(name, text)), true
	}},
}

// parseCandidate runs one candidate string through the rule chain.
// The second return is false only when the candidate produced nothing
// at all (empty line, ignored tag, meta commentary).
func parseCandidate(raw string) (Result, bool) {
	line := reBullet.ReplaceAllString(raw, "")

	for _, rule := range tagRules {
		if r, ok := rule.match(line); ok {
			if r.Message == nil && r.HP == nil {
				return Result{}, false
			}
			return r, true
		}
	}

	// Anything else non-empty is narration.
	if line != "" {
		return message(protocol.GM(line)), true
	}
	return Result{}, false
}

func message(m protocol.ServerMessage) Result {
	return Result{Message: &m}
}

func msgPtr(m protocol.ServerMessage) *protocol.ServerMessage {
	return &m
}
