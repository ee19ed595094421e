package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/shadowmere/dungeon-gm/pkg/protocol"
)

const PlaceHolderText = "What do you do?"

// ConsoleUI is the BubbleTea model that runs the UI.
// https://github.com/charmbracelet/bubbletea
type ConsoleUI struct {
	config       *ConsoleConfig
	client       *GameClient
	party        []protocol.PartyMemberInit
	chatViewport viewport.Model
	metaViewport viewport.Model
	textarea     textarea.Model
	ready        bool
	width        int
	height       int
	err          error

	// Transcript of rendered lines; reflowed on resize.
	transcript []transcriptEntry
	streaming  bool
	choices    []string
	partyHP    map[string]protocol.HPUpdate
	floor      int
	totalXP    int

	showQuitModal bool
}

type transcriptEntry struct {
	msg  protocol.ServerMessage
	self bool // true for the player's own commands
}

type serverEventMsg struct {
	msg protocol.ServerMessage
	ok  bool
}

var (
	chatPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(1).
			PaddingLeft(3).
			PaddingRight(0)

	metaPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(0).
			PaddingLeft(0).
			PaddingRight(2)

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")). // pink
			Bold(true)

	gmStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("86")) // green

	speakerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212")). // purple
			Bold(true)

	rollStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // yellow

	dmgStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // red

	sysStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")). // dark grey
			Italic(true)

	choiceStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")) // teal

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")) // teal

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // red

	xpStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("220")). // gold
		Bold(true)

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey

	hpOKStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86"))

	hpLowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2).
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("255"))

	modalTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			Align(lipgloss.Center)

	separatorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey
)

func NewConsoleUI(cfg *ConsoleConfig, client *GameClient, party []protocol.PartyMemberInit) ConsoleUI {
	ta := textarea.New()
	ta.Placeholder = PlaceHolderText
	ta.Focus()
	ta.Prompt = promptStyle.Render(":: ")
	ta.CharLimit = 500
	ta.SetWidth(50)
	ta.SetHeight(3)
	ta.ShowLineNumbers = false

	chatVp := viewport.New(50, 20)
	chatVp.MouseWheelEnabled = true

	metaVp := viewport.New(20, 20)

	hp := make(map[string]protocol.HPUpdate, len(party))
	for _, m := range party {
		hp[m.Name] = protocol.HPUpdate{Name: m.Name, HP: m.HP, MaxHP: m.MaxHP}
	}

	return ConsoleUI{
		config:       cfg,
		client:       client,
		party:        party,
		textarea:     ta,
		chatViewport: chatVp,
		metaViewport: metaVp,
		partyHP:      hp,
		floor:        cfg.Floor,
	}
}

func (m ConsoleUI) Init() tea.Cmd {
	return tea.Batch(m.sendInit(), m.waitForServer(), textarea.Blink)
}

func (m ConsoleUI) sendInit() tea.Cmd {
	return func() tea.Msg {
		if err := m.client.SendInit(m.party, m.config.Locale, m.config.Floor, m.config.StageName); err != nil {
			return serverEventMsg{msg: protocol.Error(err.Error()), ok: true}
		}
		return nil
	}
}

func (m ConsoleUI) waitForServer() tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-m.client.Incoming
		return serverEventMsg{msg: msg, ok: ok}
	}
}

func (m ConsoleUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.showQuitModal {
		return m.updateQuitModal(msg)
	}

	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		mvCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.MouseMsg:
		m.chatViewport, vpCmd = m.chatViewport.Update(msg)
		m.textarea, tiCmd = m.textarea.Update(msg)
		m.metaViewport, mvCmd = m.metaViewport.Update(msg)
		return m, tea.Batch(tiCmd, vpCmd, mvCmd)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		chatWidth := int(float64(m.width)*0.75) - 4
		metaWidth := m.width - chatWidth - 6

		m.chatViewport.Width = chatWidth - 2
		m.chatViewport.Height = m.height - 7
		m.metaViewport.Width = metaWidth - 2
		m.metaViewport.Height = m.height - 4
		m.textarea.SetWidth(chatWidth - 4)

		m.ready = true
		m.writeChatContent()
		m.metaViewport.SetContent(m.writeMetadata())

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.showQuitModal = true
			return m, nil
		case tea.KeyEnter:
			if m.streaming {
				return m, nil
			}

			input := strings.TrimSpace(m.textarea.Value())
			if input == "" {
				return m, nil
			}

			// Bare number picks the matching choice.
			if n, ok := choiceIndex(input, m.choices); ok {
				input = m.choices[n]
			}

			m.textarea.Reset()
			m.transcript = append(m.transcript, transcriptEntry{
				msg:  protocol.ServerMessage{Text: input},
				self: true,
			})
			m.choices = nil
			m.writeChatContent()

			return m, func() tea.Msg {
				if err := m.client.SendCommand(input); err != nil {
					return serverEventMsg{msg: protocol.Error(err.Error()), ok: true}
				}
				return nil
			}
		}

	case serverEventMsg:
		if !msg.ok {
			m.err = fmt.Errorf("connection closed")
			m.streaming = false
			m.writeChatContent()
			return m, nil
		}
		m.applyServerMessage(msg.msg)
		m.writeChatContent()
		m.metaViewport.SetContent(m.writeMetadata())
		return m, m.waitForServer()
	}

	m.textarea, tiCmd = m.textarea.Update(msg)
	m.chatViewport, vpCmd = m.chatViewport.Update(msg)
	m.metaViewport, mvCmd = m.metaViewport.Update(msg)

	return m, tea.Batch(tiCmd, vpCmd, mvCmd)
}

func (m *ConsoleUI) applyServerMessage(msg protocol.ServerMessage) {
	switch msg.Type {
	case protocol.TypeStreamStart:
		m.streaming = true
	case protocol.TypeStreamEnd:
		m.streaming = false
	case protocol.TypeHPUpdate:
		for _, u := range msg.Updates {
			m.partyHP[u.Name] = u
		}
	case protocol.TypeChoices:
		m.choices = msg.Options
		m.transcript = append(m.transcript, transcriptEntry{msg: msg})
	case protocol.TypeXPGain:
		m.totalXP += msg.Amount
		m.transcript = append(m.transcript, transcriptEntry{msg: msg})
	case protocol.TypeSys:
		m.transcript = append(m.transcript, transcriptEntry{msg: msg})
		if floor := floorFromSys(msg.Text); floor > 0 {
			m.floor = floor
		}
	case protocol.TypeScene:
		// Scene commands drive the graphical client; the console shows
		// them as dim stage directions.
		m.transcript = append(m.transcript, transcriptEntry{msg: msg})
	case protocol.TypeGM, protocol.TypeNFA, protocol.TypeRoll, protocol.TypeDmg, protocol.TypeError:
		m.transcript = append(m.transcript, transcriptEntry{msg: msg})
	}
}

func floorFromSys(text string) int {
	var n int
	if _, err := fmt.Sscanf(strings.ToLower(text), "floor %d", &n); err == nil {
		return n
	}
	return 0
}

// choiceIndex maps a bare "1".."9" input onto the last choice list.
func choiceIndex(input string, choices []string) (int, bool) {
	if len(input) != 1 || input[0] < '1' || input[0] > '9' {
		return 0, false
	}
	n := int(input[0] - '1')
	if n >= len(choices) {
		return 0, false
	}
	return n, true
}

func (m *ConsoleUI) writeChatContent() {
	chatWidth := m.chatViewport.Width - 6
	if chatWidth < 20 {
		chatWidth = 20
	}

	var content strings.Builder
	content.WriteString(titleStyle.Render("DUNGEON GM") + "\n\n")
	content.WriteString("Describe your actions to play. Numbers pick a choice.\n\n")
	content.WriteString(separatorStyle.Render(strings.Repeat("─", chatWidth-6)) + "\n\n")

	for _, entry := range m.transcript {
		content.WriteString(renderEntry(entry, chatWidth) + "\n")
	}

	if m.streaming {
		content.WriteString("\n" + promptStyle.Render("The game master considers...") + "\n")
	}
	if m.err != nil {
		content.WriteString("\n" + errorStyle.Render("Error: "+m.err.Error()) + "\n")
	}

	m.chatViewport.SetContent(content.String())
	m.chatViewport.GotoBottom()
}

func renderEntry(entry transcriptEntry, width int) string {
	if entry.self {
		return userStyle.Render("You: ") + wordwrap.String(entry.msg.Text, width-6) + "\n"
	}

	msg := entry.msg
	switch msg.Type {
	case protocol.TypeGM:
		return gmStyle.Render(wordwrap.String(msg.Text, width)) + "\n"
	case protocol.TypeNFA:
		return speakerStyle.Render(msg.Name+": ") + wordwrap.String(msg.Text, width-len(msg.Name)-2) + "\n"
	case protocol.TypeRoll:
		return rollStyle.Render("🎲 " + msg.Text)
	case protocol.TypeDmg:
		return dmgStyle.Render("⚔ " + wordwrap.String(msg.Text, width-2))
	case protocol.TypeSys:
		return sysStyle.Render("· " + msg.Text)
	case protocol.TypeScene:
		return sysStyle.Render("[" + msg.Command + " " + strings.Join(msg.Args, " ") + "]")
	case protocol.TypeXPGain:
		return xpStyle.Render(fmt.Sprintf("+%d XP", msg.Amount))
	case protocol.TypeChoices:
		var b strings.Builder
		for i, opt := range msg.Options {
			b.WriteString(choiceStyle.Render(fmt.Sprintf("  %d. %s", i+1, opt)))
			if i < len(msg.Options)-1 {
				b.WriteString("\n")
			}
		}
		return b.String() + "\n"
	case protocol.TypeError:
		return errorStyle.Render("Error: " + msg.Text)
	default:
		return wordwrap.String(msg.Text, width)
	}
}

func (m *ConsoleUI) writeMetadata() string {
	var content strings.Builder
	content.WriteString(titleStyle.Render("PARTY") + "\n\n")

	content.WriteString(fmt.Sprintf("Floor %d\n", m.floor))
	if m.totalXP > 0 {
		content.WriteString(fmt.Sprintf("XP earned: %d\n", m.totalXP))
	}
	content.WriteString("\n")

	for _, member := range m.party {
		hp := m.partyHP[member.Name]
		style := hpOKStyle
		if hp.MaxHP > 0 && hp.HP*4 <= hp.MaxHP {
			style = hpLowStyle
		}
		content.WriteString(speakerStyle.Render(member.Name) + "\n")
		content.WriteString(fmt.Sprintf("  Lv%d %s\n", member.Level, member.ClassName))
		content.WriteString("  " + style.Render(hpBar(hp.HP, hp.MaxHP, 10)) + "\n")
		content.WriteString(style.Render(fmt.Sprintf("  %d/%d HP", hp.HP, hp.MaxHP)) + "\n\n")
	}

	content.WriteString("Commands:\n")
	content.WriteString("• Ctrl+C: Quit\n")
	content.WriteString("• Enter: Send\n")
	content.WriteString("• 1-9: Pick choice\n")

	return content.String()
}

func hpBar(hp, maxHP, width int) string {
	if maxHP <= 0 {
		return strings.Repeat("░", width)
	}
	filled := (hp * width) / maxHP
	if filled < 0 {
		filled = 0
	}
	if filled > width {
		filled = width
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func (m ConsoleUI) updateQuitModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc, tea.KeyEnter:
			return m, tea.Quit
		default:
			switch msg.String() {
			case "y", "Y":
				return m, tea.Quit
			case "n", "N":
				m.showQuitModal = false
				m.textarea.Focus()
				return m, textarea.Blink
			}
		}
	}
	return m, nil
}

func (m ConsoleUI) renderQuitModal() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var content strings.Builder
	content.WriteString(modalTitleStyle.Render("Abandon Run?"))
	content.WriteString("\n\n")
	content.WriteString("Leaving now ends the adventure on this floor.")
	content.WriteString("\n\n")
	content.WriteString(promptStyle.Render("Press Y to quit, N to keep playing"))

	modal := modalStyle.Width(50).Render(content.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) View() string {
	if m.showQuitModal {
		return m.renderQuitModal()
	}

	if !m.ready {
		return "\n  Initializing..."
	}

	chatWidth := int(float64(m.width)*0.75) - 4
	metaWidth := m.width - chatWidth - 6

	chatPanel := chatPanelStyle.Width(chatWidth).Height(m.height - 3).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.chatViewport.View(),
			"",
			separatorStyle.Render(strings.Repeat("─", chatWidth-4)),
			m.textarea.View(),
		),
	)

	metaPanel := metaPanelStyle.Width(metaWidth).Height(m.height - 2).Render(
		m.metaViewport.View(),
	)

	return lipgloss.JoinHorizontal(lipgloss.Top, chatPanel, metaPanel)
}
