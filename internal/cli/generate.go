// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-sshtrust.
//
// go-sshtrust is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package cli

import (
	"github.com/jeremyhahn/go-sshtrust/pkg/adapters/audit"
	"github.com/jeremyhahn/go-sshtrust/pkg/adapters/logger"
	"github.com/jeremyhahn/go-sshtrust/pkg/model"
	"github.com/jeremyhahn/go-sshtrust/pkg/trust"
	"github.com/jeremyhahn/go-sshtrust/pkg/validation"
	"github.com/spf13/cobra"
)

func newGenerateCmd(a *app) *cobra.Command {
	var (
		credentials  string
		pubkeyPath   string
		privkeyPath  string
		issuerPath   string
		outputPath   string
		skipKeyCheck bool
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a certificate",
		Long: `Generate a certificate binding credentials to an OpenSSH public key.

Without --certificate the certificate is self-signed and --privkey must be
the private half of --pubkey. With --certificate the new certificate is
issued by the holder of that certificate and --privkey must be the issuer's
key. The certificate extension is set on --output.`,
		Example: `  sshtrust generate --credentials "Alice alice@example.com" \
    --pubkey ~/.ssh/id_ed25519.pub --privkey ~/.ssh/id_ed25519 --output alice`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			event := &audit.Event{EventType: audit.EventCertIssue, Subject: credentials}
			defer a.record(cmd, event, &err)

			if err := validation.ValidateCredentials(credentials); err != nil {
				return err
			}
			pubData, err := a.readFile(pubkeyPath)
			if err != nil {
				return err
			}
			pub, err := a.provider().LoadPublicKey(string(pubData))
			if err != nil {
				return err
			}

			var issuerText []byte
			if issuerPath != "" {
				if issuerText, err = a.readFile(issuerPath); err != nil {
					return err
				}
			}

			privText, err := a.readFile(privkeyPath)
			if err != nil {
				return err
			}

			var opts []trust.Option
			if skipKeyCheck {
				opts = append(opts, trust.WithoutKeyBinding())
			}
			certText, err := a.host(opts...).IssueText(credentials, pub.Text(), issuerText, privText, a.passphrase())
			if err != nil {
				return err
			}

			out := model.CertificatePath(outputPath)
			if err := a.writeFile(out, certText); err != nil {
				return err
			}

			event.Resource = out
			if issuerPath != "" {
				event.Metadata = map[string]any{"issuer_certificate": issuerPath}
			}
			a.log.Info("certificate generated",
				logger.String("subject", validation.SanitizeForLog(credentials)),
				logger.String("output", out))
			return a.printer.PrintWritten("certificate", out)
		},
	}

	cmd.Flags().StringVar(&credentials, "credentials", "", `credentials that will appear on the certificate, e.g. "Bob bob@example.com"`)
	cmd.Flags().StringVar(&pubkeyPath, "pubkey", "", "file containing the OpenSSH public key that will appear on the certificate")
	cmd.Flags().StringVar(&privkeyPath, "privkey", "", "file containing the private key that will sign the certificate")
	cmd.Flags().String("passphrase", "", "private key passphrase (or SSHTRUST_PASSPHRASE)")
	cmd.Flags().StringVar(&issuerPath, "certificate", "", "issuer certificate; omit for a self-signed certificate")
	cmd.Flags().StringVar(&outputPath, "output", "", "path of the generated certificate")
	cmd.Flags().BoolVar(&skipKeyCheck, "skip-key-check", false, "do not require the signing key to match the vouched-for public key")
	_ = cmd.MarkFlagRequired("credentials")
	_ = cmd.MarkFlagRequired("pubkey")
	_ = cmd.MarkFlagRequired("privkey")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}
