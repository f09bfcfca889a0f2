package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Prompter reads missing credentials from an interactive terminal.
type Prompter struct {
	In  io.Reader
	Out io.Writer

	// ReadPassword reads a line without echo. Defaults to term.ReadPassword
	// on stdin when In is os.Stdin and stdin is a terminal.
	ReadPassword func() (string, error)
}

// NewTerminalPrompter prompts on stdin/stdout.
func NewTerminalPrompter() *Prompter {
	return &Prompter{In: os.Stdin, Out: os.Stdout}
}

// NeedsCredentials reports whether the Neo4j backend is selected and any
// connection parameter is still missing.
func (s *StoreConfig) NeedsCredentials() bool {
	if s.Backend != BackendNeo4j {
		return false
	}
	return s.URI == "" || s.Username == "" || s.Password == ""
}

// PromptCredentials fills in whichever of URI, username and password are
// empty. Values already supplied by the environment are never re-asked.
func (p *Prompter) PromptCredentials(s *StoreConfig) error {
	if !s.NeedsCredentials() {
		return nil
	}

	reader := bufio.NewReader(p.In)
	readLine := func(prompt string) (string, error) {
		fmt.Fprint(p.Out, prompt)
		line, err := reader.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			return "", fmt.Errorf("reading %s: %w", strings.TrimSuffix(strings.TrimSpace(prompt), ":"), err)
		}
		return strings.TrimSpace(line), nil
	}

	if s.URI == "" {
		v, err := readLine("Neo4j URI (neo4j+s://...): ")
		if err != nil {
			return err
		}
		s.URI = v
	}
	if s.Username == "" {
		v, err := readLine("Neo4j username: ")
		if err != nil {
			return err
		}
		s.Username = v
	}
	if s.Password == "" {
		readPassword := p.ReadPassword
		if readPassword == nil {
			readPassword = p.defaultPasswordReader(reader)
		}
		fmt.Fprint(p.Out, "Neo4j password: ")
		v, err := readPassword()
		fmt.Fprintln(p.Out)
		if err != nil {
			return fmt.Errorf("reading password: %w", err)
		}
		s.Password = v
	}

	if s.NeedsCredentials() {
		return fmt.Errorf("neo4j uri, username and password are all required")
	}
	return nil
}

// defaultPasswordReader uses no-echo input on a real terminal and falls back
// to a plain line read otherwise (pipes, tests).
func (p *Prompter) defaultPasswordReader(reader *bufio.Reader) func() (string, error) {
	if f, ok := p.In.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return func() (string, error) {
			b, err := term.ReadPassword(int(f.Fd()))
			return string(b), err
		}
	}
	return func() (string, error) {
		line, err := reader.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			return "", err
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
}
