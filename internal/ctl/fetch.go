package ctl

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/clinsafe/medledger/internal/filex"
	"github.com/clinsafe/medledger/internal/netx"
)

func runFetch(ctx context.Context, login loginFunc, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("fetch", flag.ContinueOnError)
	fs.SetOutput(out)
	record := fs.String("record", "", "record id")
	dest := fs.String("out", "", "output path, defaults to ./download/<record id>.bin")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *record == "" {
		return errors.New("fetch: -record is required")
	}

	client, err := login()
	if err != nil {
		return err
	}

	downloadURL, err := client.PresignDownload(ctx, *record)
	if err != nil {
		return err
	}
	data, err := netx.DownloadFromPresignedURL(ctx, downloadURL)
	if err != nil {
		return err
	}

	path := *dest
	if path == "" {
		dir, err := filex.EnsureSubDir("download")
		if err != nil {
			return err
		}
		path = filepath.Join(dir, *record+".bin")
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}

	fmt.Fprintf(out, "saved %d bytes to %s\n", len(data), path)
	return nil
}
