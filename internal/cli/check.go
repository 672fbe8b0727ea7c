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

	"github.com/jeremyhahn/go-sshtrust/pkg/adapters/audit"
	"github.com/jeremyhahn/go-sshtrust/pkg/model"
	"github.com/jeremyhahn/go-sshtrust/pkg/trust"
	"github.com/jeremyhahn/go-sshtrust/pkg/truststore"
	"github.com/spf13/cobra"
)

func newCheckCmd(a *app) *cobra.Command {
	var (
		documentPath  string
		signaturePath string
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate authenticity and integrity of a signed document",
		Long: `Check a document against its detached signature and the trust store.

The signatory is resolved to the first certificate, in lexicographic file
name order, whose subject credentials match. With --policy strict a
signatory matched by more than one certificate is an error. With
--require-chain the signer's issuer chain must lead to a valid self-signed
certificate in the trust store.`,
		Example: `  sshtrust check --document report.pdf --trust ~/.sshtrust/trusted`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			event := &audit.Event{EventType: audit.EventDocumentCheck, Resource: documentPath}
			defer a.record(cmd, event, &err)

			dir, err := a.trustDir()
			if err != nil {
				return err
			}
			policy, ok := trust.ParsePolicy(a.v.GetString(keyTrustPolicy))
			if !ok {
				return fmt.Errorf("unknown trust policy: %s", a.v.GetString(keyTrustPolicy))
			}

			document, err := a.readFile(documentPath)
			if err != nil {
				return err
			}
			if signaturePath == "" {
				signaturePath = model.SignaturePath(documentPath)
			}
			sigText, err := a.readFile(signaturePath)
			if err != nil {
				return err
			}
			sig, err := model.ParseDetachedSignature(sigText)
			if err != nil {
				return err
			}
			event.Subject = sig.SignatoryCredentials

			store, err := truststore.OpenFs(a.fs, dir, truststore.WithLogger(a.log))
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			certs, err := store.Certificates()
			if err != nil {
				return err
			}

			opts := []trust.Option{
				trust.WithLogger(a.log),
				trust.WithProvider(a.provider()),
				trust.WithPolicy(policy),
			}
			if a.v.GetBool(keyRequireChain) {
				opts = append(opts, trust.WithChainValidation(store))
			}

			res, err := trust.Verify(document, sig, certs, opts...)
			if err != nil {
				return err
			}

			event.Result = res.Outcome.String()
			event.Metadata = map[string]any{
				"trust_dir": dir,
				"policy":    policy.String(),
			}
			a.exitCode = outcomeExitCode(res.Outcome)
			return a.printer.PrintOutcome(documentPath, res)
		},
	}

	cmd.Flags().StringVar(&documentPath, "document", "", "document file to be checked")
	cmd.Flags().StringVar(&signaturePath, "signature", "", "detached signature (default is the document path with a .signature extension)")
	cmd.Flags().String("policy", "first", "resolution policy when several certificates match (first, strict)")
	cmd.Flags().Bool("require-chain", false, "require the signer's issuer chain to reach a trusted root")
	_ = cmd.MarkFlagRequired("document")

	return cmd
}

func outcomeExitCode(o trust.Outcome) int {
	switch o {
	case trust.OutcomeAuthentic:
		return ExitOK
	case trust.OutcomeCompromised:
		return ExitCompromised
	case trust.OutcomeNoTrustedCertificate:
		return ExitNoTrustedCertificate
	case trust.OutcomeBrokenChain:
		return ExitBrokenChain
	default:
		return ExitError
	}
}
