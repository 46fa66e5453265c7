package main

import (
	"flag"
	"fmt"
	"io"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"golang.org/x/term"

	"github.com/cosmicds/cds-api/core/apikey"
	"github.com/cosmicds/cds-api/core/hubble"
	"github.com/cosmicds/cds-api/core/roster"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db        *sqlx.DB
	out       io.Writer
	rosterSvc *roster.Service
	hubbleSvc *hubble.Service
	apiKeySvc *apikey.Service
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]                          - run a goose command (up, down, status, ...)")
	fmt.Fprintln(cli.out, "  student -username NAME [-email EMAIL] [-seed] [-dummy] - add a student")
	fmt.Fprintln(cli.out, "  class -educator ID -name NAME [-async] [-small] - add a class")
	fmt.Fprintln(cli.out, "  merge add|remove|show -class ID                 - manage a class's merge group")
	fmt.Fprintln(cli.out, "  override set|remove -class ID                   - manage a waiting room override")
	fmt.Fprintln(cli.out, "  ignore student|class -id ID [-story NAME]       - hide from cohorts and exports")
	fmt.Fprintln(cli.out, "  apikey create -client NAME                      - issue an API key")
	fmt.Fprintln(cli.out, "  apikey verify                                   - check an API key, prompted next")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "student":
		return cli.addStudent(args[2:])
	case "class":
		return cli.addClass(args[2:])
	case "merge":
		return cli.merge(args[2:])
	case "override":
		return cli.override(args[2:])
	case "ignore":
		return cli.ignore(args[2:])
	case "apikey":
		return cli.apiKey(args[2:])
	default:
		cli.printUsage()
		return errHelp
	}
}

// subcommand splits "ACTION [FLAGS]" and parses the flags. It returns errHelp when the action is missing.
func subcommand(fs *flag.FlagSet, args []string) (string, error) {
	if len(args) == 0 {
		fs.Usage()
		return "", errHelp
	}
	if err := fs.Parse(args[1:]); err != nil {
		return "", err
	}
	return args[0], nil
}

// prompt reads a secret without echoing it.
func (cli *commandLine) prompt(label string) (string, error) {
	fmt.Fprint(cli.out, label)
	b, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
