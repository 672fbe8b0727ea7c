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

// Package cli implements the sshtrust command line: generate certificates,
// sign documents, check documents against a trust store, inspect issuer
// chains and curate the trust store.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jeremyhahn/go-sshtrust/internal/config"
	"github.com/jeremyhahn/go-sshtrust/pkg/adapters/audit"
	"github.com/jeremyhahn/go-sshtrust/pkg/adapters/logger"
	"github.com/jeremyhahn/go-sshtrust/pkg/correlation"
	"github.com/jeremyhahn/go-sshtrust/pkg/metrics"
	"github.com/jeremyhahn/go-sshtrust/pkg/model"
	"github.com/jeremyhahn/go-sshtrust/pkg/sshkey"
	"github.com/jeremyhahn/go-sshtrust/pkg/trust"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Process exit codes
const (
	ExitOK                   = 0
	ExitError                = 1
	ExitCompromised          = 2
	ExitNoTrustedCertificate = 3
	ExitBrokenChain          = 4
)

// Configuration keys shared by viper, the config file and flags
const (
	keyTrustDir        = "trust.dir"
	keyTrustPolicy     = "trust.policy"
	keyRequireChain    = "trust.require_chain"
	keyLogLevel        = "logging.level"
	keyLogFormat       = "logging.format"
	keyOutputFormat    = "output.format"
	keyOutputColor     = "output.color"
	keyMetricsTextfile = "metrics.textfile"
	keyAuditFile       = "audit.file"
	keyPassphrase      = "passphrase"
)

// filesystem is the filesystem every command reads and writes through.
// Tests swap in an afero.MemMapFs.
var filesystem = afero.NewOsFs()

// app carries the state of a single invocation
type app struct {
	fs     afero.Fs
	stdout io.Writer
	stderr io.Writer

	v          *viper.Viper
	cfg        *config.Config
	log        logger.Logger
	printer    *Printer
	audit      audit.Adapter
	configFile string
	verbose    bool
	noColor    bool
	exitCode   int
}

// Execute runs the command line with os.Args and returns the process exit code
func Execute() int {
	return run(os.Args[1:], os.Stdout, os.Stderr)
}

func run(args []string, stdout, stderr io.Writer) int {
	a := &app{
		fs:     filesystem,
		stdout: stdout,
		stderr: stderr,
		v:      viper.New(),
		log:    logger.NewNop(),
		audit:  audit.NewNop(),
	}

	rootCmd := newRootCmd(a)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.ExecuteContext(context.Background())
	a.flushMetrics()
	if cerr := a.audit.Close(); cerr != nil {
		a.log.Warn("failed to close audit trail", logger.Error(cerr))
	}
	if err != nil {
		a.handleError(err)
		return ExitError
	}
	return a.exitCode
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sshtrust",
		Short: "sshtrust - personal public-key trust over OpenSSH keys",
		Long: `sshtrust issues identity certificates over OpenSSH keys, produces
detached signatures over documents and checks documents against a
directory of trusted certificates.

Exit status of check:
  0  the document is authentic
  2  the document is compromised
  3  no trusted certificate matches the signatory
  4  the signature is valid but the certificate chain is broken
  1  any error`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "",
		"config file (default is $XDG_CONFIG_HOME/sshtrust/config.yaml)")
	flags.String("trust", "", "directory containing trusted certificates")
	flags.StringP("format", "f", "text", "output format (text, json)")
	flags.String("log-level", "warn", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text, json)")
	flags.String("metrics-textfile", "", "write run metrics to this node-exporter textfile")
	flags.String("audit-file", "", "append an audit event per operation to this JSONL file")
	flags.BoolVar(&a.noColor, "no-color", false, "disable colored output")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "verbose output (debug logging)")

	rootCmd.AddCommand(newGenerateCmd(a))
	rootCmd.AddCommand(newSignCmd(a))
	rootCmd.AddCommand(newCheckCmd(a))
	rootCmd.AddCommand(newChainCmd(a))
	rootCmd.AddCommand(newTrustCmd(a))
	rootCmd.AddCommand(newInspectCmd(a))
	rootCmd.AddCommand(newVersionCmd(a))

	return rootCmd
}

// flagBindings maps configuration keys to the flags that override them
var flagBindings = map[string]string{
	keyTrustDir:        "trust",
	keyTrustPolicy:     "policy",
	keyRequireChain:    "require-chain",
	keyLogLevel:        "log-level",
	keyLogFormat:       "log-format",
	keyOutputFormat:    "format",
	keyMetricsTextfile: "metrics-textfile",
	keyAuditFile:       "audit-file",
	keyPassphrase:      "passphrase",
}

// setup loads the configuration, layers flags over it and builds the logger
// and printer for the invocation.
func (a *app) setup(cmd *cobra.Command) error {
	path, explicit := a.configFile, a.configFile != ""
	if !explicit {
		path = config.DefaultPath()
	}
	cfg, err := config.LoadOptional(a.fs, path, explicit)
	if err != nil {
		return err
	}
	a.cfg = cfg

	a.v.SetDefault(keyTrustDir, cfg.Trust.Dir)
	a.v.SetDefault(keyTrustPolicy, cfg.Trust.Policy)
	a.v.SetDefault(keyRequireChain, cfg.Trust.RequireChain)
	a.v.SetDefault(keyLogLevel, cfg.Logging.Level)
	a.v.SetDefault(keyLogFormat, cfg.Logging.Format)
	a.v.SetDefault(keyOutputFormat, cfg.Output.Format)
	a.v.SetDefault(keyOutputColor, cfg.Output.Color)
	a.v.SetDefault(keyMetricsTextfile, cfg.Metrics.Textfile)
	a.v.SetDefault(keyAuditFile, cfg.Audit.File)
	if err := a.v.BindEnv(keyPassphrase, "SSHTRUST_PASSPHRASE"); err != nil {
		return err
	}

	if err := bindFlags(a.v, cmd.Flags()); err != nil {
		return err
	}

	format := strings.ToLower(a.v.GetString(keyOutputFormat))
	if format != string(OutputFormatText) && format != string(OutputFormatJSON) {
		return fmt.Errorf("unknown output format: %s", format)
	}
	a.printer = NewPrinter(format, a.stdout, a.v.GetBool(keyOutputColor) && !a.noColor)

	levelName := a.v.GetString(keyLogLevel)
	if a.verbose {
		levelName = "debug"
	}
	level, err := logger.ParseLevel(levelName)
	if err != nil {
		return err
	}
	logFormat := logger.FormatText
	if strings.EqualFold(a.v.GetString(keyLogFormat), string(logger.FormatJSON)) {
		logFormat = logger.FormatJSON
	}

	ctx, _ := correlation.Ensure(cmd.Context(), os.Getenv(correlation.EnvVar))
	cmd.SetContext(ctx)
	a.log = logger.NewSlogAdapter(&logger.SlogConfig{
		Writer: a.stderr,
		Level:  level,
		Format: logFormat,
	}).WithContext(ctx).With(logger.String("command", cmd.Name()))

	if path := a.v.GetString(keyAuditFile); path != "" {
		adapter, err := audit.NewJSONLAdapter(a.fs, path)
		if err != nil {
			return fmt.Errorf("%w: %v", model.ErrIO, err)
		}
		a.audit = adapter
	}

	a.log.Debug("configuration loaded",
		logger.String("config_file", path),
		logger.String("trust_dir", a.v.GetString(keyTrustDir)),
		logger.String("policy", a.v.GetString(keyTrustPolicy)))
	return nil
}

// bindFlags binds every known flag present on the command
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for key, name := range flagBindings {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return err
		}
	}
	return nil
}

// host returns a trust.Host wired to the invocation's logger
func (a *app) host(opts ...trust.Option) *trust.Host {
	h := trust.NewHost()
	h.Logger = a.log
	h.Options = opts
	return h
}

// provider returns the key provider used for loading keys
func (a *app) provider() sshkey.Provider {
	return sshkey.NewOpenSSH()
}

// passphrase returns the private key passphrase from --passphrase or
// SSHTRUST_PASSPHRASE, nil when neither is set
func (a *app) passphrase() []byte {
	if p := a.v.GetString(keyPassphrase); p != "" {
		return []byte(p)
	}
	return nil
}

// trustDir returns the configured trust store directory
func (a *app) trustDir() (string, error) {
	dir := a.v.GetString(keyTrustDir)
	if dir == "" {
		return "", fmt.Errorf("%w: trust store directory not set (use --trust or trust.dir)", model.ErrIO)
	}
	return dir, nil
}

// handleError prints an error to stderr
func (a *app) handleError(err error) {
	printer := a.printer
	if printer == nil {
		printer = NewPrinter(string(OutputFormatText), a.stderr, false)
	} else {
		printer = NewPrinter(string(printer.format), a.stderr, !a.noColor && a.v.GetBool(keyOutputColor))
	}
	_ = printer.PrintError(err) // Error printing to stderr is best-effort
	a.log.Debug("command failed", logger.Error(err), logger.String("kind", errorKind(err)))
}

// flushMetrics writes the run's metrics when a textfile is configured
func (a *app) flushMetrics() {
	if a.cfg == nil {
		return
	}
	path := a.v.GetString(keyMetricsTextfile)
	if path == "" {
		return
	}
	if err := metrics.WriteTextfile(a.fs, path); err != nil {
		a.log.Warn("failed to write metrics textfile", logger.Error(err))
	}
}

// record writes event to the audit trail once the command has finished.
// A non-nil *errp marks the event as failed.
func (a *app) record(cmd *cobra.Command, event *audit.Event, errp *error) {
	event.CorrelationID = correlation.GetCorrelationID(cmd.Context())
	if errp != nil && *errp != nil {
		event.Outcome = audit.OutcomeFailure
		event.Result = (*errp).Error()
	} else if event.Outcome == "" {
		event.Outcome = audit.OutcomeSuccess
	}
	if err := a.audit.LogEvent(cmd.Context(), event); err != nil {
		a.log.Warn("failed to write audit event",
			logger.String("event_type", string(event.EventType)),
			logger.Error(err))
	}
}

// errorKind names the error kind of err for logs
func errorKind(err error) string {
	for _, k := range []struct {
		err  error
		name string
	}{
		{model.ErrParse, "parse"},
		{model.ErrKey, "key"},
		{model.ErrCrypto, "crypto"},
		{model.ErrDecode, "decode"},
		{model.ErrIO, "io"},
		{model.ErrIdentityMismatch, "identity_mismatch"},
		{model.ErrAmbiguousSignatory, "ambiguous_signatory"},
	} {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "other"
}

// readFile reads path through the command filesystem
func (a *app) readFile(path string) ([]byte, error) {
	data, err := afero.ReadFile(a.fs, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrIO, err)
	}
	return data, nil
}

// writeFile writes data to path through the command filesystem
func (a *app) writeFile(path string, data []byte) error {
	if err := afero.WriteFile(a.fs, path, data, 0644); err != nil {
		return fmt.Errorf("%w: %v", model.ErrIO, err)
	}
	a.log.Debug("file written", logger.String("path", path), logger.Int("bytes", len(data)))
	return nil
}
