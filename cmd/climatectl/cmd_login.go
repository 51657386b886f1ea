package main

import (
	"fmt"

	"github.com/sierrasoftworks/humane-errors-go"
	"github.com/spf13/cobra"
)

var (
	loginUsername string
	loginPassword string
	loginRegister bool
)

func init() {
	cmdLogin.Flags().StringVarP(&loginUsername, "username", "u", "", "Username.")
	cmdLogin.Flags().StringVarP(&loginPassword, "password", "p", "", "Password.")
	cmdLogin.Flags().BoolVar(&loginRegister, "register", false, "Create the account first.")
	_ = cmdLogin.MarkFlagRequired("username")
	_ = cmdLogin.MarkFlagRequired("password")

	rootCmd.AddCommand(cmdLogin)
}

var cmdLogin = &cobra.Command{
	Use:     "login",
	Short:   "Obtain a bearer token and print it",
	Example: "export AIRCON_TOKEN=$(climatectl login -u me -p secret)",
	Args:    cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		client := clientFromContext(ctx)

		if loginRegister {
			if _, err := client.signUp(ctx, loginUsername, loginPassword); err != nil {
				return humane.Wrap(err, "failed to register",
					"the username may already be taken; try signing in without --register")
			}
		}

		token, err := client.signIn(ctx, loginUsername, loginPassword)
		if err != nil {
			return humane.Wrap(err, "failed to sign in",
				"check the username and password",
				"create the account with 'climatectl login --register' if it does not exist yet")
		}
		fmt.Println(token)
		return nil
	},
}
