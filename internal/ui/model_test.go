package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/nconklindev/custprep/internal/preparer"
	"github.com/nconklindev/custprep/internal/types"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keyMsg(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestUpdate_Progress(t *testing.T) {
	m := NewModel(context.Background(), preparer.Options{Source: "in.csv"})

	next, cmd := m.Update(progressMsg(types.Progress{Stage: preparer.StageFilter, Fraction: 0.55}))
	got := next.(Model)

	assert.NotNil(t, cmd)
	assert.Equal(t, preparer.StageFilter, got.stage)
	assert.Contains(t, got.View(), preparer.StageFilter)
}

func TestUpdate_Complete(t *testing.T) {
	m := NewModel(context.Background(), preparer.Options{})
	result := &types.PrepareResult{
		Source:      "in.csv",
		OutputFile:  "data/customer.csv",
		Columns:     []string{"Time on App", "Length of Membership"},
		RowsRead:    10,
		RowsWritten: 7,
	}

	next, _ := m.Update(prepareCompleteMsg{result: result})
	got := next.(Model)

	require.NoError(t, got.Err())
	assert.Equal(t, result, got.Result())
	view := got.View()
	assert.Contains(t, view, "data/customer.csv")
	assert.Contains(t, view, "10 read, 7 written")
	assert.Contains(t, view, "Time on App, Length of Membership")

	// Late progress after completion is ignored
	next, cmd := got.Update(progressMsg(types.Progress{Stage: preparer.StageWrite, Fraction: 0.8}))
	assert.Nil(t, cmd)
	assert.Equal(t, stateComplete, next.(Model).state)
}

func TestUpdate_Error(t *testing.T) {
	m := NewModel(context.Background(), preparer.Options{})
	runErr := fmt.Errorf("%w: column %q not found", preparer.ErrSchema, preparer.MembershipColumn)

	next, _ := m.Update(prepareCompleteMsg{err: runErr})
	got := next.(Model)

	assert.True(t, errors.Is(got.Err(), preparer.ErrSchema))
	assert.Contains(t, got.View(), "schema error")
	assert.Contains(t, got.View(), "Length of Membership")
}

func TestUpdate_Keys(t *testing.T) {
	tests := []struct {
		name     string
		state    state
		key      string
		wantQuit bool
	}{
		{"Cancel while processing", stateProcessing, "q", true},
		{"Enter ignored while processing", stateProcessing, "enter", false},
		{"Exit when complete", stateComplete, "enter", true},
		{"Exit on error", stateError, "q", true},
		{"Other key ignored", stateComplete, "x", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewModel(context.Background(), preparer.Options{})
			m.state = tt.state

			var msg tea.KeyMsg
			if tt.key == "enter" {
				msg = tea.KeyMsg{Type: tea.KeyEnter}
			} else {
				msg = keyMsg(tt.key)
			}

			_, cmd := m.Update(msg)
			if tt.wantQuit {
				require.NotNil(t, cmd)
				assert.IsType(t, tea.QuitMsg{}, cmd())
			} else {
				assert.Nil(t, cmd)
			}
		})
	}
}

func TestCancelStopsContext(t *testing.T) {
	m := NewModel(context.Background(), preparer.Options{})
	m.Update(keyMsg("q"))

	assert.ErrorIs(t, m.ctx.Err(), context.Canceled)
}

func TestRun_EndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "ID,Name,Email,Time on App,Time on Website,Length of Membership\n1,a,b,2.0,3.0,4.5\n")
	}))
	defer srv.Close()

	output := filepath.Join(t.TempDir(), "customer.csv")
	m := NewModel(context.Background(), preparer.Options{Source: srv.URL, Output: output})

	// Drive the model the way the runtime would, without a terminal.
	var model tea.Model = m
	msg := m.prepare()()
	for i := 0; i < 20 && msg != nil; i++ {
		model, _ = model.Update(msg)
		if _, done := msg.(prepareCompleteMsg); done {
			break
		}
		msg = waitForProgress(m.progressChan, m.resultChan)()
	}

	got := model.(Model)
	require.NoError(t, got.Err())
	require.NotNil(t, got.Result())
	assert.Equal(t, 1, got.Result().RowsWritten)
}

func TestTruncate(t *testing.T) {
	long := "https://example.com/a/very/long/path/to/some/customer/dataset/file.csv"
	got := truncate(long, 40)
	assert.Len(t, got, 30)
	assert.True(t, len(got) < len(long))
	assert.Equal(t, "short", truncate("short", 80))
}
