package ctl

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/clinsafe/medledger/internal/netx"
)

func runAttach(ctx context.Context, login loginFunc, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("attach", flag.ContinueOnError)
	fs.SetOutput(out)
	record := fs.String("record", "", "record id")
	file := fs.String("file", "", "path of the document to upload")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *record == "" || *file == "" {
		return errors.New("attach: -record and -file are required")
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		return err
	}

	client, err := login()
	if err != nil {
		return err
	}

	key, uploadURL, err := client.PresignUpload(ctx, *record)
	if err != nil {
		return err
	}
	if err := netx.UploadToPresignedURL(ctx, uploadURL, data); err != nil {
		return err
	}

	fmt.Fprintf(out, "uploaded %s, %d bytes, key %s\n", *file, len(data), key)
	return nil
}
