// Package sysexec runs the system commands the API shells out to: init
// scripts, ubus calls, sync and reboot.
package sysexec

import (
	"strings"

	"github.com/pkg/errors"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/syntax"
)

var parser = syntax.NewParser(
	syntax.Variant(syntax.LangPOSIX),
)

// Command is a command line as written in a config file, e.g.
// "ubus call gl-cloud unbind". It is split into words using shell quoting
// rules but is never run through a shell.
type Command string

// Argv splits the command line into its words.
func (c Command) Argv() ([]string, error) {
	var argv []string
	var err error

	perr := parser.Words(strings.NewReader(string(c)), func(word *syntax.Word) bool {
		var lit string
		lit, err = expand.Literal(nil, word)
		if err != nil {
			err = errors.Wrap(err, "cannot render parsed shell word")
			return false
		}
		argv = append(argv, lit)
		return true
	})
	if perr != nil {
		return nil, errors.Wrapf(perr, "cannot parse command %q", string(c))
	}
	if err != nil {
		return nil, err
	}
	if len(argv) == 0 {
		return nil, errors.New("empty command")
	}

	return argv, nil
}

// With returns the argv of c with args appended.
func (c Command) With(args ...string) ([]string, error) {
	argv, err := c.Argv()
	if err != nil {
		return nil, err
	}
	return append(argv, args...), nil
}
