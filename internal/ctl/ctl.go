// Package ctl implements medledgerctl, the operator tool for a running
// medledger server. It verifies patient hash chains, queries the audit
// trail and moves record documents through the same REST API the
// portal clients use.
package ctl

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
)

// loginFunc builds an authenticated client. Subcommands call it only
// after their flags parse, so a bad invocation fails before the tool
// prompts for a password.
type loginFunc func() (*Client, error)

// Run parses the command line and executes one subcommand.
//
//	medledgerctl -s http://localhost:8080 -e admin@clinic.example verify -patient <id> -kind records
func Run(ctx context.Context, args []string, out io.Writer) error {
	global := flag.NewFlagSet("medledgerctl", flag.ContinueOnError)
	global.SetOutput(out)
	serverURL := global.String("s", "http://localhost:8080", "medledger server base URL")
	email := global.String("e", "", "login email")
	if err := global.Parse(args); err != nil {
		return err
	}

	rest := global.Args()
	if len(rest) == 0 {
		printUsage(out)
		return errors.New("missing command")
	}

	login := func() (*Client, error) {
		if *email == "" {
			return nil, errors.New("login email required (-e)")
		}
		password, err := promptPassword(out)
		if err != nil {
			return nil, err
		}
		client := NewClient(*serverURL)
		if err := client.Login(ctx, *email, password); err != nil {
			return nil, err
		}
		return client, nil
	}

	cmd, cmdArgs := rest[0], rest[1:]
	switch cmd {
	case "verify":
		return runVerify(ctx, login, cmdArgs, out)
	case "audit":
		return runAudit(ctx, login, cmdArgs, out)
	case "attach":
		return runAttach(ctx, login, cmdArgs, out)
	case "fetch":
		return runFetch(ctx, login, cmdArgs, out)
	default:
		printUsage(out)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: medledgerctl [-s server] [-e email] <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  verify  -patient <id> [-kind records|certificates]")
	fmt.Fprintln(w, "          walk a patient chain and report the first break")
	fmt.Fprintln(w, "  audit   [-actor <id>] [-action <kind>] [-from <ts>] [-to <ts>] [-limit <n>]")
	fmt.Fprintln(w, "          print audit trail events, newest first")
	fmt.Fprintln(w, "  attach  -record <id> -file <path>")
	fmt.Fprintln(w, "          upload a document and link it to a record")
	fmt.Fprintln(w, "  fetch   -record <id> [-out <path>]")
	fmt.Fprintln(w, "          download a record's document")
}
