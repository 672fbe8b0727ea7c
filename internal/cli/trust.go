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
	"strings"

	"github.com/jeremyhahn/go-sshtrust/pkg/adapters/audit"
	"github.com/jeremyhahn/go-sshtrust/pkg/model"
	"github.com/jeremyhahn/go-sshtrust/pkg/truststore"
	"github.com/jeremyhahn/go-sshtrust/pkg/validation"
	"github.com/spf13/cobra"
)

func newTrustCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trust",
		Short: "Curate the trust store",
		Long: `List, add and remove trusted certificates. Checking a document never
modifies the trust store; these commands are the operator's tools for it.`,
	}

	cmd.AddCommand(newTrustListCmd(a))
	cmd.AddCommand(newTrustAddCmd(a))
	cmd.AddCommand(newTrustRemoveCmd(a))
	return cmd
}

func (a *app) openStore() (*truststore.Store, error) {
	dir, err := a.trustDir()
	if err != nil {
		return nil, err
	}
	return truststore.OpenFs(a.fs, dir, truststore.WithLogger(a.log))
}

func newTrustListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List trusted certificates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			entries, err := store.Entries()
			if err != nil {
				return err
			}

			var list []TrustEntry
			for name, cert := range entries {
				list = append(list, TrustEntry{
					Name:    name,
					Subject: cert.SubjectCredentials,
					Issuer:  cert.Issuer(),
				})
			}
			return a.printer.PrintTrustList(list)
		},
	}
}

func newTrustAddCmd(a *app) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "add <certificate>",
		Short: "Add a certificate to the trust store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			event := &audit.Event{EventType: audit.EventTrustAdd, Resource: args[0]}
			defer a.record(cmd, event, &err)

			data, err := a.readFile(args[0])
			if err != nil {
				return err
			}
			cert, err := model.ParseSignedCertificate(data)
			if err != nil {
				return err
			}
			event.Subject = cert.SubjectCredentials

			dir, err := a.trustDir()
			if err != nil {
				return err
			}
			if err := a.fs.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("%w: %v", model.ErrIO, err)
			}
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if name == "" {
				base := filepath.Base(args[0])
				name = strings.TrimSuffix(base, filepath.Ext(base))
			}
			if err := validation.ValidateEntryName(name); err != nil {
				return err
			}
			key, err := store.Add(name, cert)
			if err != nil {
				return err
			}
			event.Resource = key
			event.Metadata = map[string]any{"trust_dir": dir, "source": args[0]}
			return a.printer.PrintWritten("certificate", key)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "entry name in the trust store (default is the file name)")
	return cmd
}

func newTrustRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a certificate from the trust store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			event := &audit.Event{EventType: audit.EventTrustRemove, Resource: args[0]}
			defer a.record(cmd, event, &err)

			if err := validation.ValidateEntryName(args[0]); err != nil {
				return err
			}
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.Remove(args[0]); err != nil {
				return err
			}
			return a.printer.PrintSuccess("removed " + args[0])
		},
	}
}
