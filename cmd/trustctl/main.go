// Command trustctl is a thin front end over the generate/seal/audit
// operations this module implements, in the teacher's own flag-based
// style (cli/commands.go, cli/sign.go, cli/verify.go): one FlagSet per
// subcommand, a Usage func printing examples, osExit as a package var so
// tests can intercept process exit.
package main

import (
	"context"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/sealbound/trustpipe/auditor"
	"github.com/sealbound/trustpipe/canon"
	"github.com/sealbound/trustpipe/cms"
	"github.com/sealbound/trustpipe/config"
	"github.com/sealbound/trustpipe/hsm"
	"github.com/sealbound/trustpipe/lifecycle"
	"github.com/sealbound/trustpipe/report"
	"github.com/sealbound/trustpipe/semantic"
)

var osExit = os.Exit

func usage() {
	fmt.Printf("Usage: %s <command> [options] <args>\n\n", os.Args[0])
	fmt.Println("Commands:")
	fmt.Println("  generate  Canonicalize Document Content and emit content.json/bindings.json")
	fmt.Println("  seal      Drive a rendered PDF/A-3b through the PAdES lifecycle")
	fmt.Println("  audit     Run the Artifact Integrity Audit + Seal Trust Verification on a sealed PDF")
	fmt.Println("")
	fmt.Printf("Use '%s <command> -h' for command-specific help\n", os.Args[0])
	osExit(1)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}
	switch os.Args[1] {
	case "generate":
		generateCommand()
	case "seal":
		sealCommand()
	case "audit":
		auditCommand()
	default:
		usage()
	}
}

func generateCommand() {
	flags := flag.NewFlagSet("generate", flag.ExitOnError)
	content := flags.String("content", "", "path to the Document Content JSON file")
	mode := flags.String("mode", "draft", "generation_mode: draft or final")
	outContent := flags.String("out-content", "content.json", "path to write the canonicalized content.json")
	outBindings := flags.String("out-bindings", "bindings.json", "path to write bindings.json")

	flags.Usage = func() {
		fmt.Printf("Usage: %s generate [options]\n\n", os.Args[0])
		fmt.Println("Canonicalize Document Content and derive its content hash.")
		fmt.Println("\nOptions:")
		flags.PrintDefaults()
		fmt.Println("\nExamples:")
		fmt.Printf("  %s generate -content draft.json -mode final\n", os.Args[0])
	}

	if err := flags.Parse(os.Args[2:]); err != nil {
		log.Fatalf("failed to parse generate flags: %v", err)
	}
	if *content == "" {
		flags.Usage()
		osExit(1)
		return
	}

	raw, err := os.ReadFile(*content)
	if err != nil {
		log.Fatalf("read content file: %v", err)
	}

	canonical, err := canon.CanonicalizeJSON(raw)
	if err != nil {
		log.Fatalf("canonicalize content: %v", err)
	}
	if err := os.WriteFile(*outContent, canonical, 0o644); err != nil {
		log.Fatalf("write %s: %v", *outContent, err)
	}

	bindings := map[string]interface{}{
		"content_hash":    canon.ContentHash(canonical),
		"hash_algorithm":  "SHA-256",
		"generation_mode": *mode,
	}
	bindingsJSON, err := json.Marshal(bindings)
	if err != nil {
		log.Fatalf("marshal bindings: %v", err)
	}
	canonicalBindings, err := canon.CanonicalizeJSON(bindingsJSON)
	if err != nil {
		log.Fatalf("canonicalize bindings: %v", err)
	}
	if err := os.WriteFile(*outBindings, canonicalBindings, 0o644); err != nil {
		log.Fatalf("write %s: %v", *outBindings, err)
	}

	log.Printf("wrote %s and %s (content_hash=%s)", *outContent, *outBindings, bindings["content_hash"])
}

func sealCommand() {
	flags := flag.NewFlagSet("seal", flag.ExitOnError)
	in := flags.String("in", "", "path to the rendered, unsigned PDF/A-3b")
	out := flags.String("out", "", "path to write the sealed PDF")
	configPath := flags.String("config", config.DefaultLocation, "path to the trustpipe TOML config file")
	chainPath := flags.String("chain", "", "path to a PEM bundle of intermediate certificates (less the signer leaf)")
	enableLTA := flags.Bool("enable-lta", true, "append the DSS+VRI and document timestamp revisions (DocMDP /P=2)")
	correlationID := flags.String("correlation-id", "trustctl", "correlation ID sent to the HSM with every request")

	flags.Usage = func() {
		fmt.Printf("Usage: %s seal [options]\n\n", os.Args[0])
		fmt.Println("Drive a rendered PDF/A-3b through the certification -> DSS -> timestamp lifecycle.")
		fmt.Println("\nOptions:")
		flags.PrintDefaults()
		fmt.Println("\nExamples:")
		fmt.Printf("  %s seal -in rendered.pdf -out sealed.pdf -config trustpipe.conf\n", os.Args[0])
	}

	if err := flags.Parse(os.Args[2:]); err != nil {
		log.Fatalf("failed to parse seal flags: %v", err)
	}
	if *in == "" || *out == "" {
		flags.Usage()
		osExit(1)
		return
	}

	config.Read(*configPath)

	raw, err := os.ReadFile(*in)
	if err != nil {
		log.Fatalf("read input PDF: %v", err)
	}

	client := hsm.NewClient(config.Settings.HSM.Endpoint, config.Settings.HSM.KeyName, tokenFuncFor(config.Settings.HSM.TokenEnvVar))

	ctx := context.Background()
	signer, err := hsm.NewSigner(ctx, client, *correlationID)
	if err != nil {
		log.Fatalf("bootstrap HSM signer: %v", err)
	}

	var chain []*x509.Certificate
	if *chainPath != "" {
		chain, err = loadCertChain(*chainPath)
		if err != nil {
			log.Fatalf("load intermediate chain: %v", err)
		}
	}

	sealed, err := lifecycle.Seal(ctx, raw, lifecycle.SealOptions{
		EnableLTAUpdates: *enableLTA,
		Certification: cms.CertificationOptions{
			Signer:      signer,
			Chain:       chain,
			SigningTime: time.Now().UTC(),
		},
		DSS: cms.DSSOptions{
			Certs: append([]*x509.Certificate{signer.Certificate()}, chain...),
		},
		Timestamp: cms.TSAOptions{
			URL:      config.Settings.TSA.URL,
			Username: config.Settings.TSA.Username,
			Password: config.Settings.TSA.Password,
		},
	})
	if err != nil {
		log.Fatalf("seal: %v", err)
	}

	if err := os.WriteFile(*out, sealed.Raw, 0o644); err != nil {
		log.Fatalf("write sealed PDF: %v", err)
	}
	log.Printf("sealed PDF written to %s (state=%s)", *out, sealed.State)
}

func auditCommand() {
	flags := flag.NewFlagSet("audit", flag.ExitOnError)
	in := flags.String("in", "", "path to the sealed PDF to audit")
	configPath := flags.String("config", config.DefaultLocation, "path to the trustpipe TOML config file")

	flags.Usage = func() {
		fmt.Printf("Usage: %s audit [options]\n\n", os.Args[0])
		fmt.Println("Run the Artifact Integrity Audit and Seal Trust Verification and print the VerificationReport as JSON.")
		fmt.Println("\nOptions:")
		flags.PrintDefaults()
		fmt.Println("\nExamples:")
		fmt.Printf("  %s audit -in sealed.pdf -config trustpipe.conf\n", os.Args[0])
	}

	if err := flags.Parse(os.Args[2:]); err != nil {
		log.Fatalf("failed to parse audit flags: %v", err)
	}
	if *in == "" {
		flags.Usage()
		osExit(1)
		return
	}

	config.Read(*configPath)

	raw, err := os.ReadFile(*in)
	if err != nil {
		log.Fatalf("read input PDF: %v", err)
	}

	trustRoots, err := loadTrustRoots(config.Settings.TrustRoots)
	if err != nil {
		log.Fatalf("load trust roots: %v", err)
	}

	rep, err := auditor.Audit(context.Background(), raw, auditor.Options{
		STV:      auditor.NewSTVVerifier(trustRoots),
		Semantic: semanticOptionsFor(config.Settings.Semantic),
		Emitter:  report.NewLogEmitter(nil),
	})
	if err != nil {
		log.Fatalf("audit: %v", err)
	}

	out, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		log.Fatalf("marshal report: %v", err)
	}
	fmt.Println(string(out))

	if rep.Status != report.AuditStatusPass {
		osExit(1)
	}
}

// semanticOptionsFor wires the semantic pipeline into the audit command
// using config.Settings.Semantic.ExecutorURL: an HTTPJSONExecutor when an
// endpoint is configured, a NullExecutor (plumbing exercised, no remote
// call) when the operator has not configured one yet. Either way the
// pipeline's frozen DefaultProtocol runs and contributes advisory_signals.
func semanticOptionsFor(cfg config.Semantic) *auditor.SemanticOptions {
	var executor semantic.PassExecutor = semantic.NullExecutor{}
	if cfg.ExecutorURL != "" {
		executor = &semantic.HTTPJSONExecutor{URL: cfg.ExecutorURL}
	}
	return &auditor.SemanticOptions{
		Protocol: semantic.DefaultProtocol,
		Executor: executor,
	}
}

// tokenFuncFor reads a bearer token from the named environment variable at
// call time, matching the teacher's preference for late-bound secrets over
// baking them into a long-lived struct field.
func tokenFuncFor(envVar string) func(ctx context.Context) (string, error) {
	if envVar == "" {
		return nil
	}
	return func(ctx context.Context) (string, error) {
		token := os.Getenv(envVar)
		if token == "" {
			return "", fmt.Errorf("trustctl: environment variable %s is not set", envVar)
		}
		return token, nil
	}
}

func loadCertChain(path string) ([]*x509.Certificate, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parsePEMCertificates(raw)
}

func loadTrustRoots(paths []string) (*x509.CertPool, error) {
	pool := x509.NewCertPool()
	for _, p := range paths {
		raw, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read trust root bundle %s: %w", p, err)
		}
		if !pool.AppendCertsFromPEM(raw) {
			return nil, fmt.Errorf("no certificates found in trust root bundle %s", p)
		}
	}
	return pool, nil
}

// parsePEMCertificates decodes every "CERTIFICATE" PEM block in raw, in
// file order, matching the teacher's own LoadCertificateChain technique in
// cli/sign.go of building an ordered chain from a bundle file rather than
// relying on x509.CertPool (which does not expose its members).
func parsePEMCertificates(raw []byte) ([]*x509.Certificate, error) {
	var out []*x509.Certificate
	rest := raw
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse certificate: %w", err)
		}
		out = append(out, cert)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no PEM-encoded certificates found")
	}
	return out, nil
}
