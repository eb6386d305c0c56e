package auth

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ErrPromptAborted is returned when input ends before all values are read
var ErrPromptAborted = errors.New("credential prompt aborted")

// Prompter asks for an account on a terminal. Secrets are read without echo
// when the input is a terminal.
type Prompter struct {
	in         *bufio.Reader
	out        io.Writer
	readSecret func() (string, error)
}

// NewPrompter creates a prompter on stdin and stdout
func NewPrompter() *Prompter {
	p := NewPrompterWith(os.Stdin, os.Stdout)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		p.readSecret = func() (string, error) {
			b, err := term.ReadPassword(fd)
			fmt.Fprintln(p.out)
			if err != nil {
				return "", err
			}
			return string(b), nil
		}
	}
	return p
}

// NewPrompterWith creates a prompter reading plain lines from in, for
// scripted input and tests
func NewPrompterWith(in io.Reader, out io.Writer) *Prompter {
	p := &Prompter{in: bufio.NewReader(in), out: out}
	p.readSecret = p.readLine
	return p
}

func (p *Prompter) readLine() (string, error) {
	line, err := p.in.ReadString('\n')
	switch {
	case err == nil, err == io.EOF && line != "":
		return strings.TrimSpace(line), nil
	case err == io.EOF:
		return "", ErrPromptAborted
	default:
		return "", err
	}
}

func (p *Prompter) ask(label string, secret bool, required bool) (string, error) {
	for {
		fmt.Fprintf(p.out, "%s: ", label)
		var (
			value string
			err   error
		)
		if secret {
			value, err = p.readSecret()
			value = strings.TrimSpace(value)
		} else {
			value, err = p.readLine()
		}
		if err != nil {
			return "", err
		}
		if value != "" || !required {
			return value, nil
		}
		fmt.Fprintf(p.out, "%s is required\n", label)
	}
}

// PromptAccount asks for a username, session id and CSRF token. A username
// passed in is used without asking.
func (p *Prompter) PromptAccount(username string) (*Account, error) {
	var err error
	if username == "" {
		if username, err = p.ask("Instagram username", false, true); err != nil {
			return nil, err
		}
	}

	fmt.Fprintln(p.out, "Copy the sessionid and csrftoken cookies of a logged-in instagram.com tab")
	fmt.Fprintln(p.out, "(Developer Tools → Application → Cookies).")

	sessionID, err := p.ask("sessionid", true, true)
	if err != nil {
		return nil, err
	}
	csrfToken, err := p.ask("csrftoken", true, false)
	if err != nil {
		return nil, err
	}

	return &Account{
		Username:  strings.TrimPrefix(strings.TrimSpace(username), "@"),
		SessionID: sessionID,
		CSRFToken: csrfToken,
	}, nil
}
