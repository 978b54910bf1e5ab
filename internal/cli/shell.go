package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/opsassist/opsassist/internal/agent"
	"github.com/opsassist/opsassist/internal/session"
)

const shellPrompt = "opsassist> "

// Shell holds the state of one interactive session. Only answered
// questions enter the history.
type Shell struct {
	assistant    Assistant
	conversation *session.Conversation
	out          io.Writer
	errOut       io.Writer
	showSQL      bool
	showRows     bool
}

func NewShell(assistant Assistant, historySize int, out, errOut io.Writer) *Shell {
	return &Shell{
		assistant:    assistant,
		conversation: session.NewConversation(historySize),
		out:          out,
		errOut:       errOut,
	}
}

// Handle processes one input line and reports whether the session should end.
func (s *Shell) Handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	switch strings.ToLower(line) {
	case "exit", "quit", ".exit", ".quit":
		return true
	case ".help":
		printShellHelp(s.out)
		return false
	case ".sql":
		s.showSQL = !s.showSQL
		_, _ = fmt.Fprintf(s.out, "SQL display %s\n", onOff(s.showSQL))
		return false
	case ".rows":
		s.showRows = !s.showRows
		_, _ = fmt.Fprintf(s.out, "Raw rows %s\n", onOff(s.showRows))
		return false
	case ".history":
		history := s.conversation.History()
		if len(history) == 0 {
			_, _ = fmt.Fprintln(s.out, "(no history)")
		}
		for _, turn := range history {
			_, _ = fmt.Fprintf(s.out, "User: %s\nAssistant: %s\n", turn.Question, turn.Answer)
		}
		return false
	case ".clear":
		s.conversation.Clear()
		_, _ = fmt.Fprintln(s.out, "History cleared")
		return false
	}
	if strings.HasPrefix(line, ".") {
		_, _ = fmt.Fprintf(s.errOut, "Unknown command: %s (type .help for commands)\n", line)
		return false
	}

	answer, err := s.assistant.Answer(ctx, line, s.conversation.History(), agent.Options{
		IncludeRawRows: s.showRows,
		ReturnSQL:      s.showSQL,
	})
	if err != nil {
		_, _ = fmt.Fprintf(s.errOut, "Error: %v\n", err)
		return false
	}
	s.conversation.Record(line, answer.Summary)
	printAnswer(s.out, answer, s.showSQL, s.showRows)
	return false
}

func runShell(cmd *cobra.Command, opts Options, showSQL, showRows bool) error {
	runtime, err := build(cmd.Context(), opts)
	if err != nil {
		return err
	}
	defer closeRuntime(runtime)

	shell := NewShell(runtime.Assistant, runtime.HistorySize, cmd.OutOrStdout(), cmd.ErrOrStderr())
	shell.showSQL = showSQL
	shell.showRows = showRows

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          shellPrompt,
		Stdin:           opts.Stdin,
		Stdout:          cmd.OutOrStdout(),
		Stderr:          cmd.ErrOrStderr(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem(".help"),
			readline.PcItem(".sql"),
			readline.PcItem(".rows"),
			readline.PcItem(".history"),
			readline.PcItem(".clear"),
			readline.PcItem("exit"),
		),
	})
	if err != nil {
		return fmt.Errorf("initialize shell: %w", err)
	}
	defer func() { _ = rl.Close() }()

	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Ask a question about the tickets dataset. Type .help for commands, exit to quit.")
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if shell.Handle(cmd.Context(), line) {
			return nil
		}
	}
}

func printShellHelp(w io.Writer) {
	_, _ = fmt.Fprint(w, `Commands:
  .sql       Toggle printing the generated SQL
  .rows      Toggle printing the raw result rows
  .history   Show the remembered conversation
  .clear     Forget the conversation
  exit       Leave the shell
`)
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
