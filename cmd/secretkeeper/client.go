package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/panyam/secretkeeper/client"
	clientfs "github.com/panyam/secretkeeper/client/stores/fs"
)

// clientFlags are shared by every command that talks to a running server
type clientFlags struct {
	server       string
	sessionsPath string
	cookieName   string
}

func (f *clientFlags) register(cmd *cobra.Command) {
	server := os.Getenv("SECRETKEEPER_SERVER")
	if server == "" {
		server = "http://localhost:8080"
	}
	cmd.PersistentFlags().StringVar(&f.server, "server", server, "secretkeeper server URL")
	cmd.PersistentFlags().StringVar(&f.sessionsPath, "sessions", "", "sessions file (default: user config dir)")
	cmd.PersistentFlags().StringVar(&f.cookieName, "cookie-name", client.DefaultCookieName, "session cookie name (sessions.cookie_name on the server)")
}

func (f *clientFlags) client() (*client.Client, error) {
	store, err := clientfs.NewFSSessionStore(f.sessionsPath, "secretkeeper")
	if err != nil {
		return nil, err
	}
	return client.NewClient(f.server, store, client.WithCookieName(f.cookieName)), nil
}

// readPassword takes the password from the flag, SECRETKEEPER_PASSWORD or in.
// A terminal is prompted without echo; anything else (a pipe, a file) gives its
// first line.
func readPassword(flag string, in io.Reader, prompt io.Writer) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if env := os.Getenv("SECRETKEEPER_PASSWORD"); env != "" {
		return env, nil
	}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(prompt, "Password: ")
		pw, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		if len(pw) == 0 {
			return "", fmt.Errorf("no password given")
		}
		return string(pw), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("no password given")
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func newLoginCommand(flags *clientFlags, register bool) *cobra.Command {
	var password string
	use, short := "login USERNAME", "Sign in to a secretkeeper server"
	if register {
		use, short = "register USERNAME", "Create an account on a secretkeeper server and sign in"
	}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.client()
			if err != nil {
				return err
			}
			pw, err := readPassword(password, cmd.InOrStdin(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			authenticate := c.Login
			if register {
				authenticate = c.Register
			}
			session, err := authenticate(cmd.Context(), args[0], pw)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in to %s as %s\n", c.ServerURL(), session.Username)
			return nil
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (read from stdin if not set)")
	return cmd
}

func newLogoutCommand(flags *clientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session with a secretkeeper server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.client()
			if err != nil {
				return err
			}
			if err := c.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed out of %s\n", c.ServerURL())
			return nil
		},
	}
}

func newSecretsCommand(flags *clientFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Manage the signed in account's secrets",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List secrets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.client()
			if err != nil {
				return err
			}
			secrets, err := c.ListSecrets(cmd.Context())
			if err != nil {
				return err
			}
			for _, s := range secrets {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", s.ID, s.Text)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add TEXT",
		Short: "Add a secret",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.client()
			if err != nil {
				return err
			}
			secret, err := c.CreateSecret(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), secret.ID)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "edit ID TEXT",
		Short: "Replace the text of a secret",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.client()
			if err != nil {
				return err
			}
			_, err = c.UpdateSecret(cmd.Context(), args[0], strings.Join(args[1:], " "))
			return err
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rm ID",
		Short: "Delete a secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.client()
			if err != nil {
				return err
			}
			return c.DeleteSecret(cmd.Context(), args[0])
		},
	})
	return cmd
}

// addClientCommands adds login, register, logout and secrets under root
func addClientCommands(root *cobra.Command) {
	flags := &clientFlags{}
	for _, cmd := range []*cobra.Command{
		newLoginCommand(flags, false),
		newLoginCommand(flags, true),
		newLogoutCommand(flags),
		newSecretsCommand(flags),
	} {
		flags.register(cmd)
		root.AddCommand(cmd)
	}
}
