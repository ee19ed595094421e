package protocol

import "fmt"

// MessageType identifies a ServerMessage variant. The set is closed:
// whatever the GM model emits, clients only ever receive these types.
type MessageType string

const (
	TypeStreamStart MessageType = "stream_start"
	TypeGM          MessageType = "gm"
	TypeNFA         MessageType = "nfa"
	TypeRoll        MessageType = "roll"
	TypeDmg         MessageType = "dmg"
	TypeSys         MessageType = "sys"
	TypeHPUpdate    MessageType = "hp_update"
	TypeScene       MessageType = "scene"
	TypeChoices     MessageType = "choices"
	TypeXPGain      MessageType = "xp_gain"
	TypeStreamEnd   MessageType = "stream_end"
	TypeError       MessageType = "error"
)

// HPUpdate reports a party member's HP after a delta has been applied.
// HP is always within [0, MaxHP].
type HPUpdate struct {
	Name  string `json:"name"`
	HP    int    `json:"hp"`
	MaxHP int    `json:"maxHp"`
}

// ServerMessage is one server→client wire message. Only the fields for
// the given Type are populated; the rest are omitted from JSON.
type ServerMessage struct {
	Type    MessageType `json:"type"`
	Text    string      `json:"text,omitempty"`
	Name    string      `json:"name,omitempty"`
	Command string      `json:"command,omitempty"`
	Args    []string    `json:"args,omitempty"`
	Options []string    `json:"options,omitempty"`
	Amount  int         `json:"amount,omitempty"`
	Updates []HPUpdate  `json:"updates,omitempty"`
}

func StreamStart() ServerMessage { return ServerMessage{Type: TypeStreamStart} }
func StreamEnd() ServerMessage   { return ServerMessage{Type: TypeStreamEnd} }

func GM(text string) ServerMessage   { return ServerMessage{Type: TypeGM, Text: text} }
func Roll(text string) ServerMessage { return ServerMessage{Type: TypeRoll, Text: text} }
func Dmg(text string) ServerMessage  { return ServerMessage{Type: TypeDmg, Text: text} }
func Sys(text string) ServerMessage  { return ServerMessage{Type: TypeSys, Text: text} }

// NFA is spoken dialogue attributed to a named party companion.
func NFA(name, text string) ServerMessage {
	return ServerMessage{Type: TypeNFA, Name: name, Text: text}
}

func Scene(command string, args ...string) ServerMessage {
	return ServerMessage{Type: TypeScene, Command: command, Args: args}
}

func Choices(options []string) ServerMessage {
	return ServerMessage{Type: TypeChoices, Options: options}
}

func XPGain(amount int) ServerMessage {
	return ServerMessage{Type: TypeXPGain, Amount: amount}
}

func HPUpdates(updates []HPUpdate) ServerMessage {
	return ServerMessage{Type: TypeHPUpdate, Updates: updates}
}

func Error(text string) ServerMessage {
	return ServerMessage{Type: TypeError, Text: text}
}

// TraitData mirrors the on-chain character trait enums carried by the
// init payload. Indexes resolve against the tables in pkg/prompts.
type TraitData struct {
	Race         int   `json:"race"`
	Class        int   `json:"class_"`
	Personality  int   `json:"personality"`
	TalentID     int   `json:"talentId"`
	TalentRarity int   `json:"talentRarity"`
	BaseStats    []int `json:"baseStats,omitempty"` // STR, DEX, CON, INT, WIS, CHA
}

// PartyMemberInit is one party member as sent by the client during init.
// Name is the HP lookup key and must be unique within the party.
type PartyMemberInit struct {
	Name        string     `json:"name"`
	Level       int        `json:"level"`
	ClassName   string     `json:"className,omitempty"`
	HP          int        `json:"hp"`
	MaxHP       int        `json:"maxHp"`
	IsCharacter bool       `json:"isCharacter,omitempty"`
	TokenID     int64      `json:"tokenId,omitempty"`
	Traits      *TraitData `json:"traits,omitempty"`
}

const (
	ClientInit    = "init"
	ClientCommand = "command"
)

// ClientMessage is one client→server wire message.
type ClientMessage struct {
	Type      string            `json:"type"`
	Party     []PartyMemberInit `json:"party,omitempty"`
	Locale    string            `json:"locale,omitempty"`
	Floor     int               `json:"floor,omitempty"`
	StageName string            `json:"stageName,omitempty"`
	Text      string            `json:"text,omitempty"`
}

func (cm *ClientMessage) Validate() error {
	switch cm.Type {
	case ClientInit:
		if len(cm.Party) == 0 {
			return fmt.Errorf("init requires at least one party member")
		}
		seen := make(map[string]bool, len(cm.Party))
		for _, m := range cm.Party {
			if m.Name == "" {
				return fmt.Errorf("party member name cannot be empty")
			}
			if seen[m.Name] {
				return fmt.Errorf("duplicate party member name %q", m.Name)
			}
			seen[m.Name] = true
			if m.MaxHP <= 0 {
				return fmt.Errorf("party member %q has invalid maxHp %d", m.Name, m.MaxHP)
			}
		}
		return nil
	case ClientCommand:
		if cm.Text == "" {
			return fmt.Errorf("command text cannot be empty")
		}
		return nil
	default:
		return fmt.Errorf("unknown message type %q", cm.Type)
	}
}
