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
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jeremyhahn/go-sshtrust/internal/testutil"
	"github.com/jeremyhahn/go-sshtrust/pkg/adapters/audit"
	"github.com/jeremyhahn/go-sshtrust/pkg/model"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	workDir  = "/work"
	trustDir = "/trust"
)

// testEnv is an in-memory workspace holding key pairs and a trust store
type testEnv struct {
	t  *testing.T
	fs afero.Fs
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	for _, k := range []string{
		"SSHTRUST_TRUST_DIR", "SSHTRUST_TRUST_POLICY", "SSHTRUST_REQUIRE_CHAIN",
		"SSHTRUST_LOG_LEVEL", "SSHTRUST_LOG_FORMAT", "SSHTRUST_OUTPUT_FORMAT",
		"SSHTRUST_METRICS_TEXTFILE", "SSHTRUST_PASSPHRASE", "SSHTRUST_CORRELATION_ID", "SSHTRUST_AUDIT_FILE",
	} {
		t.Setenv(k, "")
	}

	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll(workDir, 0755))
	require.NoError(t, fs.MkdirAll(trustDir, 0755))

	orig := filesystem
	filesystem = fs
	t.Cleanup(func() { filesystem = orig })

	return &testEnv{t: t, fs: fs}
}

// keyPair writes a fresh ed25519 key pair as <name> and <name>.pub
func (e *testEnv) keyPair(name string, passphrase []byte) (priv, pub string) {
	e.t.Helper()
	kp, err := testutil.GenerateKeyPairWithPassphrase(testutil.KeyTypeEd25519, name+"@laptop", passphrase)
	require.NoError(e.t, err)

	priv = filepath.Join(workDir, name)
	pub = priv + ".pub"
	e.write(priv, string(kp.PrivateText))
	e.write(pub, kp.PublicText+"\n")
	return priv, pub
}

func (e *testEnv) write(path, content string) {
	e.t.Helper()
	require.NoError(e.t, afero.WriteFile(e.fs, path, []byte(content), 0644))
}

func (e *testEnv) read(path string) string {
	e.t.Helper()
	data, err := afero.ReadFile(e.fs, path)
	require.NoError(e.t, err)
	return string(data)
}

func (e *testEnv) exists(path string) bool {
	ok, err := afero.Exists(e.fs, path)
	require.NoError(e.t, err)
	return ok
}

// run executes the command line and returns the exit code and both streams
func (e *testEnv) run(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(append([]string{"--no-color"}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func (e *testEnv) mustRun(args ...string) string {
	e.t.Helper()
	code, stdout, stderr := e.run(args...)
	require.Equal(e.t, ExitOK, code, "stdout: %s\nstderr: %s", stdout, stderr)
	return stdout
}

// selfSigned generates a self-signed certificate for name and returns its path
func (e *testEnv) selfSigned(name, credentials string) (cert, priv string) {
	e.t.Helper()
	priv, pub := e.keyPair(name, nil)
	out := filepath.Join(workDir, name)
	e.mustRun("generate", "--credentials", credentials, "--pubkey", pub, "--privkey", priv, "--output", out)
	return out + ".certificate", priv
}

func TestGenerate_SelfSigned(t *testing.T) {
	env := newTestEnv(t)

	cert, _ := env.selfSigned("alice", "Alice alice@example.com")

	parsed, err := model.ParseSignedCertificate([]byte(env.read(cert)))
	require.NoError(t, err)
	assert.Equal(t, "Alice alice@example.com", parsed.SubjectCredentials)
	assert.True(t, parsed.IsSelfSigned())
	assert.Contains(t, parsed.PublicKey, "ssh-ed25519 ")
}

func TestGenerate_OutputExtensionReplaced(t *testing.T) {
	env := newTestEnv(t)
	priv, pub := env.keyPair("alice", nil)

	stdout := env.mustRun("generate", "--credentials", "Alice", "--pubkey", pub, "--privkey", priv,
		"--output", "/work/alice.toml")
	assert.Contains(t, stdout, "/work/alice.certificate")
	assert.True(t, env.exists("/work/alice.certificate"))
	assert.False(t, env.exists("/work/alice.toml"))
}

func TestGenerate_KeyMismatch(t *testing.T) {
	env := newTestEnv(t)
	_, pub := env.keyPair("alice", nil)
	mallory, _ := env.keyPair("mallory", nil)

	code, _, stderr := env.run("generate", "--credentials", "Alice", "--pubkey", pub, "--privkey", mallory,
		"--output", "/work/alice")
	assert.Equal(t, ExitError, code)
	assert.Contains(t, stderr, "Error:")
	assert.False(t, env.exists("/work/alice.certificate"))

	env.mustRun("generate", "--credentials", "Alice", "--pubkey", pub, "--privkey", mallory,
		"--output", "/work/alice", "--skip-key-check")
	assert.True(t, env.exists("/work/alice.certificate"))
}

func TestGenerate_Passphrase(t *testing.T) {
	env := newTestEnv(t)
	priv, pub := env.keyPair("alice", []byte("correct horse"))
	args := []string{"generate", "--credentials", "Alice", "--pubkey", pub, "--privkey", priv, "--output", "/work/alice"}

	code, _, _ := env.run(args...)
	assert.Equal(t, ExitError, code)

	env.mustRun(append(args, "--passphrase", "correct horse")...)

	require.NoError(t, env.fs.Remove("/work/alice.certificate"))
	t.Setenv("SSHTRUST_PASSPHRASE", "correct horse")
	env.mustRun(args...)
	assert.True(t, env.exists("/work/alice.certificate"))
}

func TestGenerate_MissingFlags(t *testing.T) {
	env := newTestEnv(t)
	code, _, stderr := env.run("generate", "--credentials", "Alice")
	assert.Equal(t, ExitError, code)
	assert.Contains(t, stderr, "required flag")
}

func TestSignAndCheck(t *testing.T) {
	env := newTestEnv(t)
	cert, priv := env.selfSigned("alice", "Alice alice@example.com")
	env.write("/work/report.txt", "quarterly numbers\n")

	stdout := env.mustRun("sign", "--document", "/work/report.txt", "--certificate", cert, "--privkey", priv)
	assert.Contains(t, stdout, "/work/report.signature")

	sig, err := model.ParseDetachedSignature([]byte(env.read("/work/report.signature")))
	require.NoError(t, err)
	assert.Equal(t, "Alice alice@example.com", sig.SignatoryCredentials)

	env.mustRun("--trust", trustDir, "trust", "add", cert)

	t.Run("authentic", func(t *testing.T) {
		code, stdout, _ := env.run("--trust", trustDir, "check", "--document", "/work/report.txt")
		assert.Equal(t, ExitOK, code)
		assert.Contains(t, stdout, "The document is authentic")
		assert.Contains(t, stdout, "Alice alice@example.com")
	})

	t.Run("json", func(t *testing.T) {
		code, stdout, _ := env.run("--trust", trustDir, "-f", "json", "check", "--document", "/work/report.txt")
		assert.Equal(t, ExitOK, code)

		var out map[string]any
		require.NoError(t, json.Unmarshal([]byte(stdout), &out))
		assert.Equal(t, "authentic", out["outcome"])
		assert.Equal(t, "Alice alice@example.com", out["signatory"])
	})

	t.Run("compromised", func(t *testing.T) {
		env.write("/work/tampered.txt", "quarterly numbers, revised\n")
		env.write("/work/tampered.signature", env.read("/work/report.signature"))

		code, stdout, _ := env.run("--trust", trustDir, "check", "--document", "/work/tampered.txt")
		assert.Equal(t, ExitCompromised, code)
		assert.Contains(t, stdout, "The document is compromised")
	})

	t.Run("explicit signature path", func(t *testing.T) {
		env.write("/work/copy.bin", "quarterly numbers\n")
		code, _, _ := env.run("--trust", trustDir, "check", "--document", "/work/copy.bin",
			"--signature", "/work/report.signature")
		assert.Equal(t, ExitOK, code)
	})

	t.Run("no trusted certificate", func(t *testing.T) {
		require.NoError(t, env.fs.MkdirAll("/empty", 0755))
		code, stdout, _ := env.run("--trust", "/empty", "check", "--document", "/work/report.txt")
		assert.Equal(t, ExitNoTrustedCertificate, code)
		assert.Contains(t, stdout, "No trusted certificate with given credentials found")
	})

	t.Run("missing trust store", func(t *testing.T) {
		code, _, stderr := env.run("--trust", "/missing", "check", "--document", "/work/report.txt")
		assert.Equal(t, ExitError, code)
		assert.Contains(t, stderr, "/missing")
	})

	t.Run("trust dir unset", func(t *testing.T) {
		code, _, stderr := env.run("check", "--document", "/work/report.txt")
		assert.Equal(t, ExitError, code)
		assert.Contains(t, stderr, "trust store directory not set")
	})

	t.Run("trust dir from environment", func(t *testing.T) {
		t.Setenv("SSHTRUST_TRUST_DIR", trustDir)
		code, _, _ := env.run("check", "--document", "/work/report.txt")
		assert.Equal(t, ExitOK, code)
	})
}

func TestCheck_MalformedSignature(t *testing.T) {
	env := newTestEnv(t)
	env.write("/work/doc.txt", "hello")
	env.write("/work/doc.signature", "not = [toml")

	code, _, stderr := env.run("--trust", trustDir, "check", "--document", "/work/doc.txt")
	assert.Equal(t, ExitError, code)
	assert.Contains(t, stderr, "Error:")
}

func TestCheck_StrictPolicy(t *testing.T) {
	env := newTestEnv(t)
	cert, priv := env.selfSigned("alice", "Alice")
	impostor, _ := env.selfSigned("impostor", "Alice")
	env.write("/work/doc.txt", "hello")
	env.mustRun("sign", "--document", "/work/doc.txt", "--certificate", cert, "--privkey", priv)

	env.mustRun("--trust", trustDir, "trust", "add", cert, "--name", "b-alice")
	env.mustRun("--trust", trustDir, "trust", "add", impostor, "--name", "a-impostor")

	// First match in name order is the impostor, whose key does not verify.
	code, _, _ := env.run("--trust", trustDir, "check", "--document", "/work/doc.txt")
	assert.Equal(t, ExitCompromised, code)

	code, _, stderr := env.run("--trust", trustDir, "check", "--document", "/work/doc.txt", "--policy", "strict")
	assert.Equal(t, ExitError, code)
	assert.Contains(t, stderr, "multiple trusted certificates")

	code, _, _ = env.run("--trust", trustDir, "check", "--document", "/work/doc.txt", "--policy", "bogus")
	assert.Equal(t, ExitError, code)
}

func TestCheck_RequireChain(t *testing.T) {
	env := newTestEnv(t)
	rootCert, rootPriv := env.selfSigned("root", "Root CA")
	bobPriv, bobPub := env.keyPair("bob", nil)

	env.mustRun("generate", "--credentials", "Bob", "--pubkey", bobPub, "--privkey", rootPriv,
		"--certificate", rootCert, "--output", "/work/bob")
	bobCert := "/work/bob.certificate"

	env.write("/work/doc.txt", "hello")
	env.mustRun("sign", "--document", "/work/doc.txt", "--certificate", bobCert, "--privkey", bobPriv)
	env.mustRun("--trust", trustDir, "trust", "add", bobCert)

	code, _, _ := env.run("--trust", trustDir, "check", "--document", "/work/doc.txt")
	assert.Equal(t, ExitOK, code)

	code, stdout, _ := env.run("--trust", trustDir, "check", "--document", "/work/doc.txt", "--require-chain")
	assert.Equal(t, ExitBrokenChain, code)
	assert.Contains(t, stdout, "broken")

	env.mustRun("--trust", trustDir, "trust", "add", rootCert)
	code, stdout, _ = env.run("--trust", trustDir, "check", "--document", "/work/doc.txt", "--require-chain")
	assert.Equal(t, ExitOK, code)
	assert.Contains(t, stdout, "Bob -> Root CA")

	t.Run("chain command", func(t *testing.T) {
		code, stdout, _ := env.run("--trust", trustDir, "chain", "--certificate", bobCert)
		assert.Equal(t, ExitOK, code)
		assert.Contains(t, stdout, "chained")

		code, stdout, _ = env.run("--trust", trustDir, "-f", "json", "chain", "--subject", "Root CA")
		assert.Equal(t, ExitOK, code)
		var out map[string]any
		require.NoError(t, json.Unmarshal([]byte(stdout), &out))
		assert.Equal(t, "root", out["state"])

		require.NoError(t, env.fs.MkdirAll("/lonely", 0755))
		code, _, _ = env.run("--trust", "/lonely", "chain", "--certificate", bobCert)
		assert.Equal(t, ExitBrokenChain, code)

		code, _, _ = env.run("--trust", trustDir, "chain")
		assert.Equal(t, ExitError, code)
	})
}

func TestSign_RefusesToOverwriteDocument(t *testing.T) {
	env := newTestEnv(t)
	cert, priv := env.selfSigned("alice", "Alice")
	env.write("/work/notes.signature", "precious")

	code, _, _ := env.run("sign", "--document", "/work/notes.signature", "--certificate", cert, "--privkey", priv)
	assert.Equal(t, ExitError, code)
	assert.Equal(t, "precious", env.read("/work/notes.signature"))
}

func TestSign_DocumentWithoutExtension(t *testing.T) {
	env := newTestEnv(t)
	cert, priv := env.selfSigned("alice", "Alice")
	env.write("/work/README", "read me")

	env.mustRun("sign", "--document", "/work/README", "--certificate", cert, "--privkey", priv)
	assert.True(t, env.exists("/work/README.signature"))
}

func TestTrustCommands(t *testing.T) {
	env := newTestEnv(t)
	alice, _ := env.selfSigned("alice", "Alice alice@example.com")

	stdout := env.mustRun("--trust", trustDir, "trust", "list")
	assert.Contains(t, stdout, "No trusted certificates found")

	stdout = env.mustRun("--trust", trustDir, "trust", "add", alice)
	assert.Contains(t, stdout, "alice.certificate")
	assert.True(t, env.exists("/trust/alice.certificate"))

	code, _, stderr := env.run("--trust", trustDir, "trust", "add", alice)
	assert.Equal(t, ExitError, code)
	assert.Contains(t, stderr, "already exists")

	env.write("/trust/junk.certificate", "garbage")
	env.write("/trust/notes.txt", "not a certificate")

	stdout = env.mustRun("--trust", trustDir, "trust", "list")
	assert.Contains(t, stdout, "Alice alice@example.com")
	assert.Contains(t, stdout, "(self-signed)")
	assert.NotContains(t, stdout, "junk")
	assert.NotContains(t, stdout, "notes")

	stdout = env.mustRun("--trust", trustDir, "-f", "json", "trust", "list")
	var out struct {
		Certificates []TrustEntry `json:"certificates"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	require.Len(t, out.Certificates, 1)
	assert.Equal(t, "alice.certificate", out.Certificates[0].Name)

	env.mustRun("--trust", trustDir, "trust", "remove", "alice")
	assert.False(t, env.exists("/trust/alice.certificate"))

	code, _, _ = env.run("--trust", trustDir, "trust", "remove", "alice")
	assert.Equal(t, ExitError, code)
}

func TestTrustCommands_DottedNames(t *testing.T) {
	env := newTestEnv(t)
	alice, _ := env.selfSigned("alice", "Alice")

	env.mustRun("--trust", trustDir, "trust", "add", alice)
	code, _, _ := env.run("--trust", trustDir, "trust", "remove", "alice.backup")
	assert.Equal(t, ExitError, code)
	assert.True(t, env.exists("/trust/alice.certificate"))

	env.mustRun("--trust", trustDir, "trust", "add", alice, "--name", "alice.v2")
	assert.True(t, env.exists("/trust/alice.v2.certificate"))
	assert.True(t, env.exists("/trust/alice.certificate"))

	env.mustRun("--trust", trustDir, "trust", "remove", "alice.v2")
	assert.False(t, env.exists("/trust/alice.v2.certificate"))
	assert.True(t, env.exists("/trust/alice.certificate"))
}

func TestChain_StrictPolicy(t *testing.T) {
	env := newTestEnv(t)
	rootCert, rootPriv := env.selfSigned("root", "Root CA")
	impostor, _ := env.selfSigned("impostor", "Root CA")
	_, bobPub := env.keyPair("bob", nil)
	env.mustRun("generate", "--credentials", "Bob", "--pubkey", bobPub, "--privkey", rootPriv,
		"--certificate", rootCert, "--output", "/work/bob")

	env.mustRun("--trust", trustDir, "trust", "add", rootCert, "--name", "a-root")
	env.mustRun("--trust", trustDir, "trust", "add", impostor, "--name", "b-impostor")

	code, _, _ := env.run("--trust", trustDir, "chain", "--certificate", "/work/bob.certificate")
	assert.Equal(t, ExitOK, code)

	code, stdout, _ := env.run("--trust", trustDir, "chain", "--certificate", "/work/bob.certificate", "--policy", "strict")
	assert.Equal(t, ExitBrokenChain, code)
	assert.Contains(t, stdout, "ambiguous")
}

func TestTrustAdd_CreatesDirectory(t *testing.T) {
	env := newTestEnv(t)
	alice, _ := env.selfSigned("alice", "Alice")

	env.mustRun("--trust", "/new/store", "trust", "add", alice, "--name", "friend")
	assert.True(t, env.exists("/new/store/friend.certificate"))
}

func TestTrustAdd_RejectsUnsigned(t *testing.T) {
	env := newTestEnv(t)
	env.write("/work/unsigned.certificate", "subject_credentials = \"Alice\"\npublic_key = \"k\"\n")

	code, _, _ := env.run("--trust", trustDir, "trust", "add", "/work/unsigned.certificate")
	assert.Equal(t, ExitError, code)
}

func TestInspect(t *testing.T) {
	env := newTestEnv(t)
	alice, _ := env.selfSigned("alice", "Alice alice@example.com")

	stdout := env.mustRun("inspect", alice)
	assert.Contains(t, stdout, "Subject:    Alice alice@example.com")
	assert.Contains(t, stdout, "(self-signed)")
}

func TestConfigFile(t *testing.T) {
	env := newTestEnv(t)
	cert, priv := env.selfSigned("alice", "Alice")
	env.write("/work/doc.txt", "hello")
	env.mustRun("sign", "--document", "/work/doc.txt", "--certificate", cert, "--privkey", priv)
	env.mustRun("--trust", trustDir, "trust", "add", cert)

	env.write("/etc/sshtrust.yaml", "trust:\n  dir: /trust\noutput:\n  format: json\n")

	code, stdout, _ := env.run("--config", "/etc/sshtrust.yaml", "check", "--document", "/work/doc.txt")
	assert.Equal(t, ExitOK, code)
	assert.True(t, strings.HasPrefix(strings.TrimSpace(stdout), "{"))

	// Flags win over the file.
	code, stdout, _ = env.run("--config", "/etc/sshtrust.yaml", "-f", "text", "check", "--document", "/work/doc.txt")
	assert.Equal(t, ExitOK, code)
	assert.Contains(t, stdout, "The document is authentic")

	code, _, _ = env.run("--config", "/etc/missing.yaml", "version")
	assert.Equal(t, ExitError, code)
}

func TestUnknownOutputFormat(t *testing.T) {
	env := newTestEnv(t)
	code, _, stderr := env.run("-f", "xml", "version")
	assert.Equal(t, ExitError, code)
	assert.Contains(t, stderr, "unknown output format")
}

func TestVerboseLogging(t *testing.T) {
	env := newTestEnv(t)
	t.Setenv("SSHTRUST_CORRELATION_ID", "run-42")
	cert, priv := env.selfSigned("alice", "Alice")
	env.write("/work/doc.txt", "hello")

	code, _, stderr := env.run("-v", "--log-format", "json", "sign", "--document", "/work/doc.txt",
		"--certificate", cert, "--privkey", priv)
	require.Equal(t, ExitOK, code)
	assert.Contains(t, stderr, `"correlation_id":"run-42"`)
	assert.Contains(t, stderr, `"command":"sign"`)
}

func TestMetricsTextfile(t *testing.T) {
	env := newTestEnv(t)
	path := filepath.Join(workDir, "sshtrust.prom")

	env.selfSigned("alice", "Alice")
	env.mustRun("--metrics-textfile", path, "version")

	assert.Contains(t, env.read(path), "sshtrust_operations_total")
}

func TestVersion(t *testing.T) {
	env := newTestEnv(t)

	stdout := env.mustRun("version")
	assert.Contains(t, stdout, "sshtrust version "+Version)

	stdout = env.mustRun("-f", "json", "version")
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.Equal(t, Version, out["version"])
}

func TestInputValidation(t *testing.T) {
	env := newTestEnv(t)
	alice, _ := env.selfSigned("alice", "Alice")
	priv, pub := env.keyPair("bob", nil)

	code, _, stderr := env.run("generate", "--credentials", "  ", "--pubkey", pub, "--privkey", priv, "--output", "/work/bob")
	assert.Equal(t, ExitError, code)
	assert.Contains(t, stderr, "credentials cannot be empty")

	code, _, stderr = env.run("--trust", trustDir, "trust", "add", alice, "--name", "../escape")
	assert.Equal(t, ExitError, code)
	assert.Contains(t, stderr, "path traversal")
	assert.False(t, env.exists("/escape.certificate"))

	code, _, _ = env.run("--trust", trustDir, "trust", "remove", "../alice")
	assert.Equal(t, ExitError, code)
}

func TestAuditTrail(t *testing.T) {
	env := newTestEnv(t)
	t.Setenv("SSHTRUST_AUDIT_FILE", "/var/log/sshtrust/audit.jsonl")
	t.Setenv("SSHTRUST_CORRELATION_ID", "audit-run")

	cert, priv := env.selfSigned("alice", "Alice")
	env.write("/work/doc.txt", "hello")
	env.mustRun("sign", "--document", "/work/doc.txt", "--certificate", cert, "--privkey", priv)
	env.mustRun("--trust", trustDir, "trust", "add", cert)
	env.mustRun("--trust", trustDir, "check", "--document", "/work/doc.txt")

	env.write("/work/doc.txt", "tampered")
	code, _, _ := env.run("--trust", trustDir, "check", "--document", "/work/doc.txt")
	require.Equal(t, ExitCompromised, code)

	code, _, _ = env.run("--trust", trustDir, "trust", "remove", "nobody")
	require.Equal(t, ExitError, code)

	events, err := audit.ReadJSONL(env.fs, "/var/log/sshtrust/audit.jsonl", nil)
	require.NoError(t, err)
	require.Len(t, events, 6)

	types := make([]audit.EventType, len(events))
	for i, e := range events {
		types[i] = e.EventType
		assert.Equal(t, "audit-run", e.CorrelationID)
	}
	assert.Equal(t, []audit.EventType{
		audit.EventCertIssue,
		audit.EventDocumentSign,
		audit.EventTrustAdd,
		audit.EventDocumentCheck,
		audit.EventDocumentCheck,
		audit.EventTrustRemove,
	}, types)

	assert.Equal(t, "Alice", events[0].Subject)
	assert.Equal(t, "/work/alice.certificate", events[0].Resource)
	assert.Equal(t, "Alice", events[1].Subject)
	assert.Equal(t, "alice.certificate", events[2].Resource)
	assert.Equal(t, "authentic", events[3].Result)
	assert.Equal(t, audit.OutcomeSuccess, events[4].Outcome)
	assert.Equal(t, "compromised", events[4].Result)
	assert.Equal(t, audit.OutcomeFailure, events[5].Outcome)
	assert.NotEmpty(t, events[5].Result)
}
