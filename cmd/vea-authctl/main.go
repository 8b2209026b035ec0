// Command vea-authctl performs offline administration against the portal's
// user file and refresh token store.
//
// Usage:
//
//	vea-authctl backfill      -users users.json [-dry-run]
//	vea-authctl set-password  -users users.json -id ID [store flags]
//	vea-authctl hash
//	vea-authctl verify        -hash HASH
//	vea-authctl encrypt       VALUE
//	vea-authctl decrypt       PAYLOAD
//	vea-authctl obfuscate     VALUE
//	vea-authctl deobfuscate   PAYLOAD
//	vea-authctl purge-refresh [store flags]
//	vea-authctl report
//
// decrypt also accepts legacy "obf:" payloads, which are only encoded.
//
// Store flags select the refresh token store whose sessions are revoked or
// purged: -refresh-file PATH, -sqlite PATH or -database-url URL. Engine
// settings come from the VEA_* environment variables.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"golang.org/x/term"
)

func main() {
	_ = godotenv.Load()

	a := &app{
		out:          os.Stdout,
		errOut:       os.Stderr,
		in:           bufio.NewReader(os.Stdin),
		readPassword: term.ReadPassword,
		stdinFd:      int(os.Stdin.Fd()),
	}

	err := a.run(context.Background(), os.Args[1:])
	switch {
	case err == nil:
	case errors.Is(err, errUsage):
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	case errors.Is(err, errNoMatch):
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	default:
		fmt.Fprintf(os.Stderr, "vea-authctl: %v\n", err)
		os.Exit(1)
	}
}
