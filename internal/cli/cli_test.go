// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package cli_test

import (
	"context"
	"errors"
	"flag"
	"strings"
	"testing"

	"go.astrophena.name/rssmail/internal/cli"
	"go.astrophena.name/rssmail/internal/cli/clitest"
	"go.astrophena.name/rssmail/internal/logger"
	"go.astrophena.name/rssmail/internal/testutil"
)

type echoApp struct {
	upper bool
	args  []string
}

func (a *echoApp) Flags(fs *flag.FlagSet) {
	fs.BoolVar(&a.upper, "upper", false, "Print in upper case.")
}

func (a *echoApp) Run(ctx context.Context) error {
	env := cli.GetEnv(ctx)
	if len(env.Args) == 0 {
		return errors.Join(cli.ErrInvalidArgs, errors.New("nothing to echo"))
	}
	a.args = env.Args
	out := strings.Join(env.Args, " ")
	if a.upper {
		out = strings.ToUpper(out)
	}
	logger.Get(ctx).Info("echoing", "words", len(env.Args))
	_, err := env.Stdout.Write([]byte(out + "\n"))
	return err
}

func TestRun(t *testing.T) {
	clitest.Run(t, func(t *testing.T) *echoApp { return new(echoApp) }, map[string]clitest.Case[*echoApp]{
		"echo": {
			Args:         []string{"hello", "world"},
			WantInStdout: "hello world\n",
			WantInStderr: "msg=echoing words=2",
			CheckFunc: func(t *testing.T, a *echoApp) {
				testutil.AssertEqual(t, a.args, []string{"hello", "world"})
			},
		},
		"flags": {
			Args:         []string{"-upper", "hi"},
			WantInStdout: "HI\n",
		},
		"no args": {
			Args:    []string{},
			WantErr: cli.ErrInvalidArgs,
		},
		"version": {
			Args:         []string{"-version"},
			WantErr:      cli.ErrExitVersion,
			WantInStderr: "devel",
		},
		"unknown flag": {
			Args:         []string{"-nope"},
			WantInStderr: "flag provided but not defined: -nope",
		},
	})
}

func TestParseDocComment(t *testing.T) {
	t.Parallel()

	src := []byte("/*\nRssmail mails feeds.\n\n\t$ rssmail run\n*/\npackage main\n\n/*\nignored\n*/\n")
	testutil.AssertEqual(t, cli.ParseDocComment(src), "Rssmail mails feeds.\n\n\t$ rssmail run\n")
}
