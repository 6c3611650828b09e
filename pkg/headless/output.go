package headless

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/killallgit/turnstream/pkg/chat"
	"github.com/killallgit/turnstream/pkg/logger"
)

var (
	thinkingStyle = lipgloss.NewStyle().Faint(true).Italic(true)
	toolStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	toolFailStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	sourceStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("4")).Bold(true)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	noticeStyle   = lipgloss.NewStyle().Faint(true)
)

// Output handles console output for headless mode
type Output struct {
	w    io.Writer
	errW io.Writer
}

// NewOutput creates an output handler writing to stdout and stderr
func NewOutput() *Output {
	return NewOutputTo(os.Stdout, os.Stderr)
}

// NewOutputTo creates an output handler writing to the given writers
func NewOutputTo(w, errW io.Writer) *Output {
	return &Output{w: w, errW: errW}
}

// Text writes raw streamed text
func (o *Output) Text(s string) {
	fmt.Fprint(o.w, s)
}

// Thinking writes reasoning text, dimmed
func (o *Output) Thinking(s string) {
	fmt.Fprint(o.w, thinkingStyle.Render(s))
}

// ToolStarted announces a tool call
func (o *Output) ToolStarted(call chat.ToolCallState) {
	fmt.Fprintln(o.w, toolStyle.Render("⚙ "+call.Name+" running"))
}

// ToolFinished reports a tool call's outcome
func (o *Output) ToolFinished(call chat.ToolCallState) {
	if call.Status == chat.ToolError {
		fmt.Fprintln(o.w, toolFailStyle.Render("✗ "+call.Name+" failed: "+call.Output))
		return
	}
	fmt.Fprintln(o.w, toolStyle.Render("✓ "+call.Name+" completed"))
}

// Sources lists the citations of a finished turn
func (o *Output) Sources(sources []chat.SourceRef) {
	if len(sources) == 0 {
		return
	}
	fmt.Fprintln(o.w, sourceStyle.Render("Sources:"))
	for i, src := range sources {
		line := fmt.Sprintf("  [%d] %s", i+1, src.DocumentName)
		if src.Score != nil {
			line += " (score " + strconv.FormatFloat(*src.Score, 'f', 2, 64) + ")"
		}
		fmt.Fprintln(o.w, line)
	}
}

// Notice writes a dimmed status line
func (o *Output) Notice(msg string) {
	fmt.Fprintln(o.w, noticeStyle.Render(msg))
}

// Error prints an error message and logs it
func (o *Output) Error(msg string) {
	logger.Debug("headless error: %s", msg)
	fmt.Fprintln(o.errW, errorStyle.Render(msg))
}
