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

func newChainCmd(a *app) *cobra.Command {
	var (
		certPath string
		subject  string
	)

	cmd := &cobra.Command{
		Use:   "chain",
		Short: "Walk the issuer chain of a certificate",
		Long: `Walk the issuer chain of a certificate through the trust store, checking
every signature against the issuer's published key up to a self-signed
root. Either --certificate or --subject selects the starting certificate.
With --policy strict an issuer subject matched by more than one trusted
certificate breaks the chain.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			event := &audit.Event{EventType: audit.EventChainWalk, Resource: certPath, Subject: subject}
			defer a.record(cmd, event, &err)

			dir, err := a.trustDir()
			if err != nil {
				return err
			}
			policy, ok := trust.ParsePolicy(a.v.GetString(keyTrustPolicy))
			if !ok {
				return fmt.Errorf("unknown trust policy: %s", a.v.GetString(keyTrustPolicy))
			}
			store, err := truststore.OpenFs(a.fs, dir, truststore.WithLogger(a.log))
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			var cert *model.Certificate
			if certPath != "" {
				data, err := a.readFile(certPath)
				if err != nil {
					return err
				}
				if cert, err = model.ParseSignedCertificate(data); err != nil {
					return err
				}
			} else if cert, err = store.Lookup(subject); err != nil {
				return err
			}

			chain := trust.WalkChainPolicy(cert, store, a.provider(), policy)
			event.Subject = cert.SubjectCredentials
			event.Result = chain.State.String()
			if chain.State == trust.ChainBroken {
				a.exitCode = ExitBrokenChain
			}
			return a.printer.PrintChain(chain)
		},
	}

	cmd.Flags().StringVar(&certPath, "certificate", "", "certificate file to start from")
	cmd.Flags().StringVar(&subject, "subject", "", "subject credentials of a trusted certificate to start from")
	cmd.Flags().String("policy", "first", "issuer resolution policy when several certificates match (first, strict)")
	cmd.MarkFlagsOneRequired("certificate", "subject")
	cmd.MarkFlagsMutuallyExclusive("certificate", "subject")

	return cmd
}
