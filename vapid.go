package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"socialsync/notify"
)

var vapidCmd = &cobra.Command{
	Use:   "vapid",
	Short: "Generate a VAPID key pair for web push",
	RunE: func(cmd *cobra.Command, args []string) error {
		privateKey, publicKey, err := notify.GenerateVAPIDKeys()
		if err != nil {
			return fmt.Errorf("failed to generate VAPID keys: %w", err)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Add these to your .env file:")
		fmt.Fprintf(out, "VAPID_PUBLIC_KEY=%s\n", publicKey)
		fmt.Fprintf(out, "VAPID_PRIVATE_KEY=%s\n", privateKey)
		fmt.Fprintln(out, "VAPID_EMAIL=mailto:you@example.com")
		return nil
	},
}
