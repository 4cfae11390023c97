package ctl

import (
	"fmt"
	"io"
	"os"

	"github.com/clinsafe/medledger/internal/common"
	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword.
// In tests you can replace it with a stub to avoid touching the terminal.
var readPassword = term.ReadPassword

// promptPassword reads the login password from the terminal without
// echo. A newline is printed after the read to keep the output tidy.
// The terminal buffer is wiped once it has been copied out.
func promptPassword(w io.Writer) (string, error) {
	if _, err := fmt.Fprint(w, "Password: "); err != nil {
		return "", err
	}
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return "", err
	}
	password := string(pw)
	common.WipeByteArray(pw)
	return password, nil
}
