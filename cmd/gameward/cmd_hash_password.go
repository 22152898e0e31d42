package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/jingkaihe/gameward/internal/errx"
	"github.com/jingkaihe/gameward/pkg/session"
)

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password",
	Short: "Hash a console password for auth.login.password or auth.start.password",
	Long: `Reads a password and prints its bcrypt hash for the config file.

On a terminal the password is prompted for without echo; otherwise the first
line of standard input is used.`,
	Args: cobra.NoArgs,
	RunE: runHashPassword,
}

func init() {
	rootCmd.AddCommand(hashPasswordCmd)
}

func runHashPassword(cmd *cobra.Command, args []string) error {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, "Password: ")
		password, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return errx.Wrap(ErrReadPassword, err)
		}
		return printHash(cmd.OutOrStdout(), string(password))
	}
	return hashPasswordFrom(os.Stdin, cmd.OutOrStdout())
}

func hashPasswordFrom(in io.Reader, out io.Writer) error {
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return errx.Wrap(ErrReadPassword, err)
	}
	return printHash(out, strings.TrimRight(line, "\r\n"))
}

func printHash(out io.Writer, password string) error {
	if password == "" {
		return ErrEmptyPassword
	}
	hash, err := session.HashPassword(password)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, hash)
	return err
}
