package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	loginEmail    string
	loginPassword string
	loginQuiet    bool
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and print an access token",
	Long: `Log in with an operator email and password.

With --quiet only the token is printed, so it can be exported:

  export CUSTODY_TOKEN=$(custodyctl login --email a@b.c --password ... --quiet)`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := api.Login(rootCtx, loginEmail, loginPassword)
		if err != nil {
			return err
		}
		if loginQuiet {
			fmt.Println(res.AccessToken)
			return nil
		}
		return printJSON(res)
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "Operator email")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "Operator password")
	loginCmd.Flags().BoolVarP(&loginQuiet, "quiet", "q", false, "Print only the token")
	_ = loginCmd.MarkFlagRequired("email")
	_ = loginCmd.MarkFlagRequired("password")
	rootCmd.AddCommand(loginCmd)
}
