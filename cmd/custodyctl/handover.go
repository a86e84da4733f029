package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"cheque-custody/backend/internal/client"
)

var (
	otpChannel string
	otpContact string
	otpCode    string

	recipient client.Recipient

	overrideReason string
	rejectReason   string

	uploadKind string
)

var otpCmd = &cobra.Command{
	Use:   "otp",
	Short: "Hand a cheque over against a one-time code",
}

var otpGenerateCmd = &cobra.Command{
	Use:   "generate <cheque-id>",
	Short: "Send a handover code to the recipient",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ch, err := api.GenerateOTP(rootCtx, args[0], otpChannel, otpContact)
		if err != nil {
			return err
		}
		return printJSON(ch)
	},
}

var otpVerifyCmd = &cobra.Command{
	Use:   "verify <cheque-id>",
	Short: "Verify the code and record the handover",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := api.VerifyOTP(rootCtx, args[0], otpCode, recipient)
		if err != nil {
			return err
		}
		return printJSON(h)
	},
}

var otpPeekCmd = &cobra.Command{
	Use:    "peek <challenge-id>",
	Short:  "Read a code from a server running in dev OTP mode",
	Args:   cobra.ExactArgs(1),
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		code, err := api.DevOTP(rootCtx, args[0])
		if err != nil {
			return err
		}
		return printJSON(map[string]string{"otpId": args[0], "otpCode": code})
	},
}

var overrideCmd = &cobra.Command{
	Use:   "override",
	Short: "Request, decide, and complete approver overrides",
}

var overrideRequestCmd = &cobra.Command{
	Use:   "request <cheque-id>",
	Short: "Ask an approver to allow handover without a code",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := api.RequestOverride(rootCtx, args[0], overrideReason)
		if err != nil {
			return err
		}
		return printJSON(req)
	},
}

var overrideListCmd = &cobra.Command{
	Use:   "list <cheque-id>",
	Short: "List overrides for a cheque",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reqs, err := api.ListOverrides(rootCtx, args[0])
		if err != nil {
			return err
		}
		return printJSON(reqs)
	},
}

var overrideApproveCmd = &cobra.Command{
	Use:   "approve <override-id>",
	Short: "Approve a pending override",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := api.ApproveOverride(rootCtx, args[0])
		if err != nil {
			return err
		}
		return printJSON(req)
	},
}

var overrideRejectCmd = &cobra.Command{
	Use:   "reject <override-id>",
	Short: "Reject a pending override",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := api.RejectOverride(rootCtx, args[0], rejectReason)
		if err != nil {
			return err
		}
		return printJSON(req)
	},
}

var overrideCompleteCmd = &cobra.Command{
	Use:   "complete <cheque-id>",
	Short: "Record the handover under an approved override",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := api.CompleteOverride(rootCtx, args[0], recipient)
		if err != nil {
			return err
		}
		return printJSON(h)
	},
}

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a recipient photo or signature and print its reference",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		ref, err := api.Upload(rootCtx, uploadKind, filepath.Base(args[0]), f)
		if err != nil {
			return err
		}
		return printJSON(map[string]string{"path": ref})
	},
}

// addRecipientFlags binds the handover proof flags shared by otp verify and
// override complete.
func addRecipientFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&recipient.Name, "name", "", "Recipient name")
	f.StringVar(&recipient.IDType, "id-type", "", "Identity document type")
	f.StringVar(&recipient.IDNumber, "id-number", "", "Identity document number")
	f.StringVar(&recipient.PhotoPath, "photo", "", "Uploaded photo reference")
	f.StringVar(&recipient.SignaturePath, "signature", "", "Uploaded signature reference")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("id-type")
	_ = cmd.MarkFlagRequired("id-number")
}

func init() {
	otpGenerateCmd.Flags().StringVar(&otpChannel, "channel", "sms", "Delivery channel: sms, whatsapp, or email")
	otpGenerateCmd.Flags().StringVar(&otpContact, "to", "", "Recipient phone number or email")
	_ = otpGenerateCmd.MarkFlagRequired("to")
	otpVerifyCmd.Flags().StringVar(&otpCode, "code", "", "Code the recipient received")
	_ = otpVerifyCmd.MarkFlagRequired("code")
	addRecipientFlags(otpVerifyCmd)
	otpCmd.AddCommand(otpGenerateCmd, otpVerifyCmd, otpPeekCmd)

	overrideRequestCmd.Flags().StringVar(&overrideReason, "reason", "", "Why the code cannot be used")
	_ = overrideRequestCmd.MarkFlagRequired("reason")
	overrideRejectCmd.Flags().StringVar(&rejectReason, "reason", "", "Rejection reason")
	_ = overrideRejectCmd.MarkFlagRequired("reason")
	addRecipientFlags(overrideCompleteCmd)
	overrideCmd.AddCommand(overrideRequestCmd, overrideListCmd, overrideApproveCmd, overrideRejectCmd, overrideCompleteCmd)

	uploadCmd.Flags().StringVar(&uploadKind, "kind", "photo", "Artifact kind: photo or signature")

	rootCmd.AddCommand(otpCmd, overrideCmd, uploadCmd)
}
