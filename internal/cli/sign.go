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
	"fmt"
	"path/filepath"

	"github.com/jeremyhahn/go-sshtrust/pkg/adapters/audit"
	"github.com/jeremyhahn/go-sshtrust/pkg/adapters/logger"
	"github.com/jeremyhahn/go-sshtrust/pkg/model"
	"github.com/jeremyhahn/go-sshtrust/pkg/trust"
	"github.com/spf13/cobra"
)

func newSignCmd(a *app) *cobra.Command {
	var (
		documentPath string
		certPath     string
		privkeyPath  string
		skipKeyCheck bool
	)

	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Create a detached signature for a document",
		Long: `Create a detached signature for a document using a private key and a
certificate. The signature is written next to the document with its
extension replaced by .signature.`,
		Example: `  sshtrust sign --document report.pdf --certificate alice.certificate \
    --privkey ~/.ssh/id_ed25519`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			event := &audit.Event{EventType: audit.EventDocumentSign, Resource: documentPath}
			defer a.record(cmd, event, &err)

			sigPath := model.SignaturePath(documentPath)
			if filepath.Clean(sigPath) == filepath.Clean(documentPath) {
				return fmt.Errorf("%w: signing %s would overwrite it", model.ErrIO, documentPath)
			}

			document, err := a.readFile(documentPath)
			if err != nil {
				return err
			}
			certText, err := a.readFile(certPath)
			if err != nil {
				return err
			}
			privText, err := a.readFile(privkeyPath)
			if err != nil {
				return err
			}

			var opts []trust.Option
			if skipKeyCheck {
				opts = append(opts, trust.WithoutKeyBinding())
			}
			sigText, err := a.host(opts...).SignDocumentText(document, certText, privText, a.passphrase())
			if err != nil {
				return err
			}

			if sig, perr := model.ParseDetachedSignature(sigText); perr == nil {
				event.Subject = sig.SignatoryCredentials
			}
			if err := a.writeFile(sigPath, sigText); err != nil {
				return err
			}

			a.log.Info("document signed",
				logger.String("document", documentPath),
				logger.String("signature", sigPath))
			return a.printer.PrintWritten("signature", sigPath)
		},
	}

	cmd.Flags().StringVar(&documentPath, "document", "", "document file to be signed")
	cmd.Flags().StringVar(&certPath, "certificate", "", "certificate of the signer")
	cmd.Flags().StringVar(&privkeyPath, "privkey", "", "file containing the private key that will sign the document")
	cmd.Flags().String("passphrase", "", "private key passphrase (or SSHTRUST_PASSPHRASE)")
	cmd.Flags().BoolVar(&skipKeyCheck, "skip-key-check", false, "do not require the signing key to match the certificate")
	_ = cmd.MarkFlagRequired("document")
	_ = cmd.MarkFlagRequired("certificate")
	_ = cmd.MarkFlagRequired("privkey")

	return cmd
}
