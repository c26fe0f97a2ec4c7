// console prompts the operator and prints styled messages
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var ErrNotInteractive = errors.New("confirmation required but stdin is not a terminal")

var (
	promptStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("3"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
)

// Console asks yes/no questions on a terminal. AssumeYes answers every
// question without prompting
type Console struct {
	In        io.Reader
	Out       io.Writer
	AssumeYes bool
	// Interactive reports whether In is attached to a terminal
	Interactive func() bool

	mu     sync.Mutex
	reader *bufio.Reader
	// pending is the line of a read that outlived its prompt
	pending chan string
}

func NewConsole(assumeYes bool) *Console {
	return &Console{
		In:        os.Stdin,
		Out:       os.Stdout,
		AssumeYes: assumeYes,
		Interactive: func() bool {
			return term.IsTerminal(int(os.Stdin.Fd()))
		},
	}
}

// Confirm asks the question and waits for y or n. A cancelled context
// abandons the prompt
func (c *Console) Confirm(ctx context.Context, message string) (bool, error) {
	if c.AssumeYes {
		return true, nil
	}

	if c.Interactive != nil && !c.Interactive() {
		return false, ErrNotInteractive
	}

	fmt.Fprintf(c.Out, "%s [y/N] ", promptStyle.Render(message))

	answer := c.readLine()

	select {
	case <-ctx.Done():
		fmt.Fprintln(c.Out)
		return false, ctx.Err()
	case line := <-answer:
		c.mu.Lock()
		c.pending = nil
		c.mu.Unlock()

		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true, nil
		default:
			return false, nil
		}
	}
}

// readLine returns the line of the outstanding read, starting one when
// none is in flight. Only one goroutine ever reads In
func (c *Console) readLine() chan string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending != nil {
		return c.pending
	}

	if c.reader == nil {
		c.reader = bufio.NewReader(c.In)
	}

	answer := make(chan string, 1)
	c.pending = answer

	go func() {
		line, _ := c.reader.ReadString('\n')
		answer <- line
	}()

	return answer
}

func (c *Console) Success(format string, args ...interface{}) {
	fmt.Fprintln(c.Out, successStyle.Render(fmt.Sprintf(format, args...)))
}

func (c *Console) Error(format string, args ...interface{}) {
	fmt.Fprintln(c.Out, errorStyle.Render(fmt.Sprintf(format, args...)))
}

func (c *Console) Print(text string) {
	fmt.Fprint(c.Out, text)
}
