package cli

import (
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// =============================================================================
// ConfirmModel - Interactive yes/no prompt
// =============================================================================

// ConfirmModel is the bubbletea model for a yes/no overwrite prompt.
type ConfirmModel struct {
	Prompt   string
	Answered bool
	Answer   bool
}

// NewConfirmModel creates a confirm model with the given prompt.
func NewConfirmModel(prompt string) ConfirmModel {
	return ConfirmModel{Prompt: prompt}
}

func (m ConfirmModel) Init() tea.Cmd {
	return nil
}

func (m ConfirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "y", "Y":
			m.Answered = true
			m.Answer = true
			return m, tea.Quit
		case "n", "N", "enter", "esc", "q", "ctrl+c":
			m.Answered = true
			m.Answer = false
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m ConfirmModel) View() string {
	var b strings.Builder
	b.WriteString(StyleWarning.Render(iconWarning))
	b.WriteString(" ")
	b.WriteString(m.Prompt)
	b.WriteString(" ")
	b.WriteString(StyleDim.Render("[y/N]"))
	if m.Answered {
		b.WriteString("\n")
	}
	return b.String()
}

// =============================================================================
// Confirmer
// =============================================================================

// confirmOverwrite prompts whether an existing package directory should be
// regenerated. Without a terminal on stdin the answer is always no, so
// scripted runs keep existing output untouched.
func confirmOverwrite(canonical string) bool {
	if !stdinIsTerminal() {
		return false
	}

	m := NewConfirmModel("Package " + StyleHighlight.Render(canonical) + " already exists. Overwrite?")
	p := tea.NewProgram(m)
	finalModel, err := p.Run()
	if err != nil {
		return false
	}

	fm, ok := finalModel.(ConfirmModel)
	return ok && fm.Answer
}

// stdinIsTerminal reports whether stdin is attached to a character device.
func stdinIsTerminal() bool {
	info, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
