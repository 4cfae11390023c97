package ctl

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
)

func runVerify(ctx context.Context, login loginFunc, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(out)
	patient := fs.String("patient", "", "patient id")
	kind := fs.String("kind", "records", "chain kind, records or certificates")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *patient == "" {
		return errors.New("verify: -patient is required")
	}

	client, err := login()
	if err != nil {
		return err
	}

	res, err := client.VerifyChain(ctx, *patient, *kind)
	if err != nil {
		return err
	}

	if res.Valid {
		fmt.Fprintf(out, "chain %s/%s: OK, %d entries\n", res.PatientID, res.Kind, res.Checked)
		return nil
	}

	b := res.Break
	fmt.Fprintf(out, "chain %s/%s: BROKEN at seq %d, entry %s\n", res.PatientID, res.Kind, b.Seq, b.EntryID)
	fmt.Fprintf(out, "  %s mismatch\n", b.Kind)
	fmt.Fprintf(out, "  expected %s\n", b.Expected)
	fmt.Fprintf(out, "  got      %s\n", b.Got)
	return errors.New("chain verification failed")
}
