package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/nconklindev/custprep/internal/preparer"
	"github.com/nconklindev/custprep/internal/types"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type state int

const (
	stateProcessing state = iota
	stateComplete
	stateError
)

type Model struct {
	state        state
	ctx          context.Context
	cancel       context.CancelFunc
	opts         preparer.Options
	stage        string
	result       *types.PrepareResult
	err          error
	width        int
	progress     progress.Model
	progressChan chan types.Progress
	resultChan   chan prepareResultMsg
}

type prepareResultMsg struct {
	result *types.PrepareResult
	err    error
}

type prepareCompleteMsg struct {
	result *types.PrepareResult
	err    error
}

type progressMsg types.Progress

type waitForProgressMsg struct{}

func NewModel(ctx context.Context, opts preparer.Options) Model {
	ctx, cancel := context.WithCancel(ctx)

	return Model{
		state:        stateProcessing,
		ctx:          ctx,
		cancel:       cancel,
		opts:         opts,
		stage:        preparer.StageFetch,
		progress:     progress.New(progress.WithGradient("#2EC4B6", "#7FDBCA")),
		progressChan: make(chan types.Progress, 100),
		resultChan:   make(chan prepareResultMsg, 1),
	}
}

// Err returns the error the run ended with, if any.
func (m Model) Err() error {
	return m.err
}

func (m Model) Result() *types.PrepareResult {
	return m.result
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.prepare(),
		waitForProgress(m.progressChan, m.resultChan),
		m.progress.Init(),
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progress.Width = max(msg.Width-12, 20)
		return m, nil

	case tea.KeyMsg:
		switch m.state {
		case stateProcessing:
			switch msg.String() {
			case "ctrl+c", "q":
				m.cancel()
				return m, tea.Quit
			}

		case stateComplete, stateError:
			switch msg.String() {
			case "ctrl+c", "q", "enter", "esc":
				return m, tea.Quit
			}
		}

	case prepareCompleteMsg:
		m.cancel()
		if msg.err != nil {
			m.err = msg.err
			m.state = stateError
			return m, nil
		}
		m.result = msg.result
		m.state = stateComplete
		return m, nil

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		m.progress = progressModel.(progress.Model)
		return m, cmd

	case progressMsg:
		if m.state == stateProcessing {
			m.stage = msg.Stage
			cmd := m.progress.SetPercent(msg.Fraction)
			return m, tea.Batch(cmd, waitForProgress(m.progressChan, m.resultChan))
		}
		return m, nil

	case waitForProgressMsg:
		return m, waitForProgress(m.progressChan, m.resultChan)
	}

	return m, nil
}

func (m Model) prepare() tea.Cmd {
	ctx := m.ctx
	opts := m.opts
	progressChan := m.progressChan
	resultChan := m.resultChan

	return func() tea.Msg {
		go func() {
			result, err := preparer.Prepare(ctx, opts, progressChan)

			resultChan <- prepareResultMsg{result: result, err: err}

			close(progressChan)
			close(resultChan)
		}()

		return waitForProgressMsg{}
	}
}

func waitForProgress(progressChan chan types.Progress, resultChan chan prepareResultMsg) tea.Cmd {
	return func() tea.Msg {
		if progressChan == nil {
			return nil
		}

		p, ok := <-progressChan
		if !ok {
			// Progress channel closed, check result
			res, ok := <-resultChan
			if ok {
				return prepareCompleteMsg(res)
			}
			return nil
		}

		return progressMsg(p)
	}
}

func (m Model) View() string {
	switch m.state {
	case stateProcessing:
		return m.viewProcessing()
	case stateComplete:
		return m.viewComplete()
	case stateError:
		return m.viewError()
	}
	return ""
}

func (m Model) header() string {
	title := TitleStyle.Render("Customer Dataset Preparer")
	source := SubtitleStyle.Render(truncate(m.opts.Source, m.width))
	return lipgloss.JoinVertical(lipgloss.Left, title, source)
}

func (m Model) viewProcessing() string {
	var s strings.Builder

	s.WriteString(m.header())
	s.WriteString("\n")
	s.WriteString(StageStyle.Render(m.stage + "..."))
	s.WriteString("\n\n")
	s.WriteString(m.progress.View())
	s.WriteString("\n")
	s.WriteString(HelpStyle.Render("Press q to cancel"))

	return BoxStyle.Render(s.String())
}

func (m Model) viewComplete() string {
	var s strings.Builder

	s.WriteString(TitleStyle.Render("✓ Dataset Prepared"))
	s.WriteString("\n\n")
	s.WriteString(fmt.Sprintf("Source: %s\n", truncate(m.result.Source, m.width)))
	s.WriteString(SuccessStyle.Render(fmt.Sprintf("Output: %s\n", truncate(m.result.OutputFile, m.width))))
	s.WriteString("\n")
	s.WriteString(fmt.Sprintf("Columns kept: %s\n", strings.Join(m.result.Columns, ", ")))
	s.WriteString(fmt.Sprintf("Rows: %d read, %d written\n", m.result.RowsRead, m.result.RowsWritten))
	s.WriteString("\n")
	s.WriteString(HelpStyle.Render("Press enter to exit"))

	return BoxStyle.Render(s.String())
}

func (m Model) viewError() string {
	var s strings.Builder

	s.WriteString(ErrorStyle.Render(fmt.Sprintf("✗ %s error", preparer.Category(m.err))))
	s.WriteString("\n\n")
	s.WriteString(m.err.Error())
	s.WriteString("\n\n")
	s.WriteString(HelpStyle.Render("Press enter to exit"))

	return BoxStyle.Render(s.String())
}

// truncate shortens long paths and URLs from the left so they fit the box.
func truncate(s string, width int) string {
	maxLen := width - 20 // Leave room for padding and borders
	if maxLen < 30 {
		maxLen = 30
	}
	if len(s) > maxLen {
		return "..." + s[len(s)-maxLen+3:]
	}
	return s
}
