package passphrase

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

var (
	ErrEmpty    = errors.New("passphrase must not be empty")
	ErrMismatch = errors.New("passphrases do not match")
)

// Prompter reads one secret line after printing prompt.
type Prompter func(prompt string) (string, error)

// Source resolves a keystore passphrase from an environment variable, falling
// back to a terminal prompt. The first result, success or failure, is cached.
type Source struct {
	envVar  string
	label   string
	confirm bool
	prompt  Prompter

	once  sync.Once
	value string
	err   error
}

// NewSource returns a source reading envVar and prompting for the keystore
// named by label.
func NewSource(envVar, label string) *Source {
	if strings.TrimSpace(label) == "" {
		label = "keystore"
	}
	return &Source{envVar: strings.TrimSpace(envVar), label: label, prompt: terminalPrompt}
}

// WithConfirmation asks twice when prompting. Used when creating keystores.
func (s *Source) WithConfirmation() *Source {
	s.confirm = true
	return s
}

// WithPrompter replaces the terminal prompt.
func (s *Source) WithPrompter(p Prompter) *Source {
	if p != nil {
		s.prompt = p
	}
	return s
}

func (s *Source) Get() (string, error) {
	s.once.Do(func() { s.value, s.err = s.resolve() })
	return s.value, s.err
}

func (s *Source) resolve() (string, error) {
	if s.envVar != "" {
		if value, ok := os.LookupEnv(s.envVar); ok {
			if strings.TrimSpace(value) == "" {
				return "", fmt.Errorf("%s: %w", s.envVar, ErrEmpty)
			}
			return value, nil
		}
	}
	first, err := s.prompt(fmt.Sprintf("Enter passphrase for %s: ", s.label))
	if err != nil {
		if s.envVar != "" {
			return "", fmt.Errorf("set %s or run interactively: %w", s.envVar, err)
		}
		return "", err
	}
	if strings.TrimSpace(first) == "" {
		return "", ErrEmpty
	}
	if s.confirm {
		second, err := s.prompt("Repeat passphrase: ")
		if err != nil {
			return "", err
		}
		if second != first {
			return "", ErrMismatch
		}
	}
	return first, nil
}

func terminalPrompt(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("no terminal available")
	}
	return readSecret(os.Stderr, prompt, func() ([]byte, error) { return term.ReadPassword(fd) })
}

func readSecret(out io.Writer, prompt string, read func() ([]byte, error)) (string, error) {
	fmt.Fprint(out, prompt)
	raw, err := read()
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("read passphrase: %w", err)
	}
	return string(raw), nil
}
