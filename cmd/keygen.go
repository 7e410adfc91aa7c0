package cmd

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an ed25519 keypair for offline token signing",
	RunE: func(cmd *cobra.Command, args []string) error {
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return fmt.Errorf("generate keypair: %w", err)
		}

		fmt.Printf("FIELDSYNC_CREDENTIAL_PRIVATE_KEY=%s\n", base64.StdEncoding.EncodeToString(priv.Seed()))
		fmt.Printf("FIELDSYNC_CREDENTIAL_PUBLIC_KEY=%s\n", base64.StdEncoding.EncodeToString(pub))
		return nil
	},
}
