package main

import (
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"cheque-custody/backend/internal/client"
)

var (
	createNo       string
	createAmount   string
	createCurrency string
	createBank     string
	createBranch   string
	createPayer    string
	createPayee    string
	createDue      string

	forwardNotes string
	cancelReason string
)

var chequeCmd = &cobra.Command{
	Use:   "cheque",
	Short: "Create cheques and move them through custody",
}

var chequeCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Register a signed cheque",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := decimal.NewFromString(createAmount)
		if err != nil {
			return err
		}
		c, err := api.CreateCheque(rootCtx, client.CreateChequeInput{
			ChequeNo:  createNo,
			Amount:    amount,
			Currency:  createCurrency,
			Bank:      createBank,
			Branch:    createBranch,
			PayerName: createPayer,
			PayeeName: createPayee,
			DueDate:   createDue,
		})
		if err != nil {
			return err
		}
		return printJSON(c)
	},
}

var chequeGetCmd = &cobra.Command{
	Use:   "get <cheque-id>",
	Short: "Show a cheque",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := api.GetCheque(rootCtx, args[0])
		if err != nil {
			return err
		}
		return printJSON(c)
	},
}

var chequeMarkReadyCmd = &cobra.Command{
	Use:   "mark-ready <cheque-id>",
	Short: "Mark a signed cheque ready for dispatch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := api.MarkReady(rootCtx, args[0])
		if err != nil {
			return err
		}
		return printJSON(c)
	},
}

var chequeForwardCmd = &cobra.Command{
	Use:   "forward <cheque-id>",
	Short: "Forward a dispatched cheque to reception",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := api.ForwardToReception(rootCtx, args[0], forwardNotes)
		if err != nil {
			return err
		}
		return printJSON(c)
	},
}

var chequeCancelCmd = &cobra.Command{
	Use:   "cancel <cheque-id>",
	Short: "Cancel a cheque that has not been issued",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := api.Cancel(rootCtx, args[0], cancelReason)
		if err != nil {
			return err
		}
		return printJSON(c)
	},
}

var chequeAuditCmd = &cobra.Command{
	Use:   "audit <cheque-id>",
	Short: "Print the audit trail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := api.AuditTrail(rootCtx, args[0])
		if err != nil {
			return err
		}
		return printJSON(entries)
	},
}

var chequeCustodyCmd = &cobra.Command{
	Use:   "custody <cheque-id>",
	Short: "Print the chain of custody",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entries, err := api.CustodyTrail(rootCtx, args[0])
		if err != nil {
			return err
		}
		return printJSON(entries)
	},
}

func init() {
	f := chequeCreateCmd.Flags()
	f.StringVar(&createNo, "no", "", "Cheque number")
	f.StringVar(&createAmount, "amount", "", "Amount, e.g. 1250.50")
	f.StringVar(&createCurrency, "currency", "", "ISO currency (default INR)")
	f.StringVar(&createBank, "bank", "", "Drawee bank")
	f.StringVar(&createBranch, "branch", "", "Bank branch")
	f.StringVar(&createPayer, "payer", "", "Payer name")
	f.StringVar(&createPayee, "payee", "", "Payee name")
	f.StringVar(&createDue, "due", "", "Due date (YYYY-MM-DD)")
	for _, name := range []string{"no", "amount", "bank", "payer", "payee", "due"} {
		_ = chequeCreateCmd.MarkFlagRequired(name)
	}

	chequeForwardCmd.Flags().StringVar(&forwardNotes, "notes", "", "Dispatch notes")
	chequeCancelCmd.Flags().StringVar(&cancelReason, "reason", "", "Cancellation reason")
	_ = chequeCancelCmd.MarkFlagRequired("reason")

	chequeCmd.AddCommand(chequeCreateCmd, chequeGetCmd, chequeMarkReadyCmd, chequeForwardCmd,
		chequeCancelCmd, chequeAuditCmd, chequeCustodyCmd)
	rootCmd.AddCommand(chequeCmd)
}
