package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"moodify-server-go/client"
)

func loginCmd(opts *globalOptions) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("MOODIFY_PASSWORD")
			}
			session, err := opts.session()
			if err != nil {
				return err
			}
			ok, err := session.Login(cmd.Context(), email, password)
			if err != nil {
				return errors.New(client.MessageForError(err, opts.lang))
			}
			if !ok {
				return errors.New(client.Message(client.KeyInvalidCredentials, opts.lang))
			}
			success("Signed in as %s", session.Identity())
			return nil
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "Account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Account password (or MOODIFY_PASSWORD)")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func verifyCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check the stored session with the gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := opts.protected(cmd.Context())
			if err != nil {
				return err
			}
			success("Signed in as %s", session.Identity())
			return nil
		},
	}
}

func logoutCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := opts.session()
			if err != nil {
				return err
			}
			session.Logout()
			success("Signed out")
			return nil
		},
	}
}

func describeFailure(err error, lang string) error {
	if errors.Is(err, errRedirected) {
		return err
	}
	return fmt.Errorf("%s", client.MessageForError(err, lang))
}
