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
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/jeremyhahn/go-sshtrust/pkg/model"
	"github.com/jeremyhahn/go-sshtrust/pkg/trust"
)

// OutputFormat defines the output format type
type OutputFormat string

const (
	OutputFormatText OutputFormat = "text"
	OutputFormatJSON OutputFormat = "json"
)

// Printer handles formatted output
type Printer struct {
	format OutputFormat
	writer io.Writer

	good *color.Color
	bad  *color.Color
	warn *color.Color
}

// NewPrinter creates a new Printer. Colors apply to text output only.
func NewPrinter(format string, writer io.Writer, colorize bool) *Printer {
	p := &Printer{
		format: OutputFormat(strings.ToLower(format)),
		writer: writer,
		good:   color.New(color.FgGreen, color.Bold),
		bad:    color.New(color.FgRed, color.Bold),
		warn:   color.New(color.FgYellow),
	}
	for _, c := range []*color.Color{p.good, p.bad, p.warn} {
		if colorize {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// TrustEntry describes one trust store entry for listing
type TrustEntry struct {
	Name    string `json:"name"`
	Subject string `json:"subject"`
	Issuer  string `json:"issuer,omitempty"`
}

// PrintSuccess prints a success message
func (p *Printer) PrintSuccess(message string) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]any{
			"status":  "success",
			"message": message,
		})
	case OutputFormatText:
		fmt.Fprintln(p.writer, message)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintWritten reports a record written to path
func (p *Printer) PrintWritten(kind, path string) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]any{
			"status": "success",
			kind:     path,
		})
	case OutputFormatText:
		fmt.Fprintf(p.writer, "%s written to %s\n", kind, path)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintError prints an error message
func (p *Printer) PrintError(err error) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]any{
			"status": "error",
			"error":  err.Error(),
		})
	default:
		p.bad.Fprint(p.writer, "Error:")
		fmt.Fprintf(p.writer, " %v\n", err)
		return nil
	}
}

// PrintOutcome prints the result of a document check
func (p *Printer) PrintOutcome(document string, res *trust.Result) error {
	switch p.format {
	case OutputFormatJSON:
		out := map[string]any{
			"document": document,
			"outcome":  res.Outcome,
		}
		if res.Certificate != nil {
			out["signatory"] = res.Certificate.SubjectCredentials
		}
		if res.Chain != nil {
			out["chain"] = res.Chain
		}
		return p.printJSON(out)
	case OutputFormatText:
		switch res.Outcome {
		case trust.OutcomeAuthentic:
			p.good.Fprintln(p.writer, "The document is authentic")
		case trust.OutcomeCompromised:
			p.bad.Fprintln(p.writer, "The document is compromised")
		case trust.OutcomeNoTrustedCertificate:
			p.warn.Fprintln(p.writer, "No trusted certificate with given credentials found")
		case trust.OutcomeBrokenChain:
			p.bad.Fprintln(p.writer, "The document signature is valid but its certificate chain is broken")
		}
		if res.Certificate != nil {
			fmt.Fprintf(p.writer, "  Signatory: %s\n", res.Certificate.SubjectCredentials)
		}
		if res.Chain != nil {
			p.printChainText(res.Chain)
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintChain prints the result of a chain walk
func (p *Printer) PrintChain(chain *trust.Chain) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(chain)
	case OutputFormatText:
		p.printChainText(chain)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

func (p *Printer) printChainText(chain *trust.Chain) {
	c := p.good
	if chain.State == trust.ChainBroken {
		c = p.bad
	}
	fmt.Fprint(p.writer, "  Chain: ")
	c.Fprint(p.writer, chain.State.String())
	fmt.Fprintln(p.writer)
	if len(chain.Path) > 0 {
		fmt.Fprintf(p.writer, "  Path:  %s\n", strings.Join(chain.Path, " -> "))
	}
	if chain.Reason != "" {
		fmt.Fprintf(p.writer, "  Reason: %s\n", chain.Reason)
	}
}

// PrintCertificate prints the identity fields of a certificate
func (p *Printer) PrintCertificate(cert *model.Certificate) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]any{
			"subject_credentials": cert.SubjectCredentials,
			"public_key":          cert.PublicKey,
			"issuer_credentials":  cert.IssuerCredentials,
			"self_signed":         cert.IsSelfSigned(),
		})
	case OutputFormatText:
		fmt.Fprintf(p.writer, "Subject:    %s\n", cert.SubjectCredentials)
		if cert.IsSelfSigned() {
			fmt.Fprintln(p.writer, "Issuer:     (self-signed)")
		} else {
			fmt.Fprintf(p.writer, "Issuer:     %s\n", cert.Issuer())
		}
		fmt.Fprintf(p.writer, "Public key: %s\n", cert.PublicKey)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintTrustList prints the entries of a trust store
func (p *Printer) PrintTrustList(entries []TrustEntry) error {
	switch p.format {
	case OutputFormatJSON:
		if entries == nil {
			entries = []TrustEntry{}
		}
		return p.printJSON(map[string]any{
			"certificates": entries,
		})
	case OutputFormatText:
		if len(entries) == 0 {
			fmt.Fprintln(p.writer, "No trusted certificates found")
			return nil
		}
		fmt.Fprintf(p.writer, "%-30s %-30s %s\n", "ENTRY", "SUBJECT", "ISSUER")
		fmt.Fprintln(p.writer, strings.Repeat("-", 80))
		for _, e := range entries {
			issuer := e.Issuer
			if issuer == "" {
				issuer = "(self-signed)"
			}
			fmt.Fprintf(p.writer, "%-30s %-30s %s\n", e.Name, e.Subject, issuer)
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// printJSON prints data as JSON
func (p *Printer) printJSON(data any) error {
	encoder := json.NewEncoder(p.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
