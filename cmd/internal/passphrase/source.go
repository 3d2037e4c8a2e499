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

// Source lazily resolves a secret from an environment variable or by
// prompting on the terminal. The value is cached after the first successful
// retrieval.
type Source struct {
	envVar string
	label  string

	// prompt reads a line without echo; tests replace it.
	prompt   func(label string) (string, error)
	terminal func() bool

	once  sync.Once
	value string
	err   error
}

// NewSource constructs a source that checks envVar before prompting for label.
func NewSource(envVar, label string) *Source {
	label = strings.TrimSpace(label)
	if label == "" {
		label = "secret"
	}
	return &Source{
		envVar:   strings.TrimSpace(envVar),
		label:    label,
		prompt:   readPassword(os.Stderr),
		terminal: func() bool { return term.IsTerminal(int(os.Stdin.Fd())) },
	}
}

// Get returns the cached secret or resolves it on first call. Whitespace-only
// values are rejected.
func (s *Source) Get() (string, error) {
	s.once.Do(func() {
		if s.envVar != "" {
			if value, ok := os.LookupEnv(s.envVar); ok {
				if strings.TrimSpace(value) == "" {
					s.err = fmt.Errorf("%s is set but empty", s.envVar)
					return
				}
				s.value = value
				return
			}
		}

		if !s.terminal() {
			if s.envVar != "" {
				s.err = fmt.Errorf("%s required; set %s or run interactively", s.label, s.envVar)
			} else {
				s.err = fmt.Errorf("%s required and no terminal available", s.label)
			}
			return
		}

		value, err := s.prompt(s.label)
		if err != nil {
			s.err = fmt.Errorf("failed to read %s: %w", s.label, err)
			return
		}
		if strings.TrimSpace(value) == "" {
			s.err = errors.New(s.label + " cannot be empty")
			return
		}
		s.value = value
	})

	return s.value, s.err
}

func readPassword(out io.Writer) func(string) (string, error) {
	return func(label string) (string, error) {
		fmt.Fprintf(out, "Enter %s: ", label)
		bytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", err
		}
		return string(bytes), nil
	}
}
