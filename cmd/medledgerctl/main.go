package main

import (
	"context"
	"fmt"
	"os"

	"github.com/clinsafe/medledger/internal/ctl"
)

func main() {
	ctx := context.Background()

	if err := ctl.Run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
