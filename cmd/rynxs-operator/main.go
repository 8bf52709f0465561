// Command rynxs-operator is the CLI surface for inspecting and verifying
// an operator-core event log (spec §6): log tail/inspect, checkpoint
// create/verify, replay, and audit-report. Grounded on the teacher's
// cmd/helm/main.go dispatcher (testable Run(args, stdout, stderr) int,
// flag.NewFlagSet per subcommand, --json output toggle), retargeted from
// HELM's evidence-pack/conformance surface onto this event log's.
package main

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rynxs/operator-core/pkg/checkpoint"
	"github.com/rynxs/operator-core/pkg/config"
	"github.com/rynxs/operator-core/pkg/engine"
	"github.com/rynxs/operator-core/pkg/errs"
	"github.com/rynxs/operator-core/pkg/eventstore"
	"github.com/rynxs/operator-core/pkg/reducer"
	"github.com/rynxs/operator-core/pkg/replay"
	"github.com/rynxs/operator-core/pkg/verifier"
)

// Exit codes (spec §6): 0 success, 1 verification/logic failure, 2
// I/O or usage failure.
const (
	ExitOK        = 0
	ExitFailed    = 1
	ExitUsageOrIO = 2
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the CLI entrypoint, factored out from main for testability.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stdout)
		return ExitUsageOrIO
	}

	switch args[1] {
	case "log":
		return runLogCmd(args[2:], stdout, stderr)
	case "checkpoint":
		return runCheckpointCmd(args[2:], stdout, stderr)
	case "replay":
		return runReplayCmd(args[2:], stdout, stderr)
	case "audit-report":
		return runAuditReportCmd(args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return ExitOK
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return ExitUsageOrIO
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "rynxs-operator — deterministic event-sourced controller")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "  rynxs-operator <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "COMMANDS:")
	fmt.Fprintln(w, "  log tail|inspect         Read the event log (--from, --to, --event-type)")
	fmt.Fprintln(w, "  checkpoint create|verify Create or verify a signed snapshot (--log, --out, --key, --full)")
	fmt.Fprintln(w, "  replay                   Fold the log into state (--until, --show-state)")
	fmt.Fprintln(w, "  audit-report             Build a decision proof (--at-seq, --format json|md|text)")
	fmt.Fprintln(w, "  help                     Show this help")
}

func openStoreFromEnv(ctx context.Context) (eventstore.Store, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	store, err := engine.OpenStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return store, cfg, nil
}

// --- log ---

func runLogCmd(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, "Usage: rynxs-operator log <tail|inspect> [flags]")
		return ExitUsageOrIO
	}
	switch args[0] {
	case "tail":
		return runLogTail(args[1:], stdout, stderr)
	case "inspect":
		return runLogInspect(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown log subcommand: %s\n", args[0])
		return ExitUsageOrIO
	}
}

func runLogTail(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("log tail", flag.ContinueOnError)
	fs.SetOutput(stderr)
	from := fs.Int64("from", 0, "inclusive starting seq")
	to := fs.Int64("to", 0, "inclusive ending seq (0 = no upper bound)")
	eventType := fs.String("event-type", "", "filter to this event type only")
	if err := fs.Parse(args); err != nil {
		return ExitUsageOrIO
	}

	ctx := context.Background()
	store, _, err := openStoreFromEnv(ctx)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return ExitUsageOrIO
	}

	events, err := store.Read(ctx, eventstore.ReadOptions{FromSeq: *from})
	if err != nil {
		fmt.Fprintln(stderr, err)
		return ExitUsageOrIO
	}

	for _, e := range events {
		seq, _ := e.RequireSeq()
		if *to != 0 && seq > *to {
			break
		}
		if *eventType != "" && e.Type != *eventType {
			continue
		}
		data, _ := json.Marshal(e)
		fmt.Fprintln(stdout, string(data))
	}
	return ExitOK
}

func runLogInspect(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("log inspect", flag.ContinueOnError)
	fs.SetOutput(stderr)
	seq := fs.Int64("seq", 0, "seq to inspect (required)")
	if err := fs.Parse(args); err != nil {
		return ExitUsageOrIO
	}

	ctx := context.Background()
	store, _, err := openStoreFromEnv(ctx)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return ExitUsageOrIO
	}

	events, err := store.Read(ctx, eventstore.ReadOptions{FromSeq: *seq})
	if err != nil {
		fmt.Fprintln(stderr, err)
		return ExitUsageOrIO
	}
	for _, e := range events {
		s, _ := e.RequireSeq()
		if s == *seq {
			data, _ := json.MarshalIndent(e, "", "  ")
			fmt.Fprintln(stdout, string(data))
			return ExitOK
		}
	}
	fmt.Fprintf(stderr, "no event at seq %d\n", *seq)
	return ExitUsageOrIO
}

// --- checkpoint ---

func runCheckpointCmd(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, "Usage: rynxs-operator checkpoint <create|verify> [flags]")
		return ExitUsageOrIO
	}
	switch args[0] {
	case "create":
		return runCheckpointCreate(args[1:], stdout, stderr)
	case "verify":
		return runCheckpointVerify(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown checkpoint subcommand: %s\n", args[0])
		return ExitUsageOrIO
	}
}

func runCheckpointCreate(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("checkpoint create", flag.ContinueOnError)
	fs.SetOutput(stderr)
	outDir := fs.String("out", "./checkpoints", "checkpoint directory")
	keyPath := fs.String("key", "", "Ed25519 private key path (defaults to RYNXS_CHECKPOINT_KEY_PATH)")
	generateKey := fs.Bool("generate-key", false, "generate a fresh keypair at --key if missing")
	at := fs.Int64("at", 0, "seq to checkpoint at (0 = tail)")
	if err := fs.Parse(args); err != nil {
		return ExitUsageOrIO
	}

	ctx := context.Background()
	store, cfg, err := openStoreFromEnv(ctx)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return ExitUsageOrIO
	}
	if *keyPath == "" {
		*keyPath = cfg.CheckpointKeyPath
	}

	signer, err := loadOrGenerateSigner(*keyPath, *generateKey)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return ExitUsageOrIO
	}

	rdcr := reducer.NewUniverseReducer(true)
	var toSeq *int64
	if *at != 0 {
		toSeq = at
	}
	result, err := replay.NewEngine(store, rdcr).Run(ctx, replay.Options{ToSeq: toSeq})
	if err != nil {
		fmt.Fprintln(stderr, err)
		return ExitUsageOrIO
	}
	if result.AppliedCount == 0 {
		fmt.Fprintln(stderr, "checkpoint: log is empty, nothing to checkpoint")
		return ExitUsageOrIO
	}

	stateBytes, stateHash, err := checkpoint.Snapshot(result.State)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return ExitUsageOrIO
	}
	cp, err := signer.Sign(result.LastSeq, result.LastHash, stateBytes, stateHash, result.LastSeq)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return ExitUsageOrIO
	}

	cpStore, err := checkpoint.Open(*outDir)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return ExitUsageOrIO
	}
	if err := cpStore.Save(cp); err != nil {
		fmt.Fprintln(stderr, err)
		return ExitUsageOrIO
	}

	fmt.Fprintf(stdout, "checkpoint saved: event_index=%d event_hash=%s pubkey_id=%s\n", cp.EventIndex, cp.EventHash, cp.PubkeyID)
	return ExitOK
}

func runCheckpointVerify(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("checkpoint verify", flag.ContinueOnError)
	fs.SetOutput(stderr)
	logDir := fs.String("log", "", "checkpoint directory to search (required)")
	keyPath := fs.String("key", "", "Ed25519 public key path (defaults to RYNXS_CHECKPOINT_KEY_PATH.pub)")
	full := fs.Bool("full", false, "run full verification (state_hash, log lookup, replay)")
	atSeq := fs.Int64("at-seq", 0, "verify the checkpoint at-or-before this seq (required)")
	if err := fs.Parse(args); err != nil {
		return ExitUsageOrIO
	}
	if *logDir == "" {
		fmt.Fprintln(stderr, "Error: --log is required")
		return ExitUsageOrIO
	}

	ctx := context.Background()
	if *keyPath == "" {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintln(stderr, err)
			return ExitUsageOrIO
		}
		*keyPath = cfg.CheckpointKeyPath + ".pub"
	}
	pub, err := loadPublicKey(*keyPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return ExitUsageOrIO
	}

	cpStore, err := checkpoint.Open(*logDir)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return ExitUsageOrIO
	}
	cp, ok, err := cpStore.FindAtOrBefore(*atSeq)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return ExitUsageOrIO
	}
	if !ok {
		fmt.Fprintf(stderr, "no checkpoint at or before seq %d\n", *atSeq)
		return ExitUsageOrIO
	}

	mode := checkpoint.ModeSignature
	var store eventstore.Store
	var rdcr *reducer.Reducer
	if *full {
		mode = checkpoint.ModeFull
		store, _, err = openStoreFromEnv(ctx)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return ExitUsageOrIO
		}
		rdcr = reducer.NewUniverseReducer(true)
	}

	result, err := checkpoint.VerifyCheckpoint(ctx, cp, pub, mode, store, rdcr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return ExitUsageOrIO
	}

	for _, step := range result.Steps {
		fmt.Fprintf(stdout, "%-32s %v  %s\n", step.Step, step.Passed, step.Detail)
	}
	if !result.Valid {
		fmt.Fprintln(stdout, "INVALID")
		return ExitFailed
	}
	fmt.Fprintln(stdout, "VALID")
	return ExitOK
}

// --- replay ---

func runReplayCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	fs.SetOutput(stderr)
	until := fs.Int64("until", 0, "stop replay at this seq (0 = end of log)")
	showState := fs.Bool("show-state", false, "print the folded state as JSON")
	if err := fs.Parse(args); err != nil {
		return ExitUsageOrIO
	}

	ctx := context.Background()
	store, _, err := openStoreFromEnv(ctx)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return ExitUsageOrIO
	}

	rdcr := reducer.NewUniverseReducer(true)
	var toSeq *int64
	if *until != 0 {
		toSeq = until
	}
	result, err := replay.NewEngine(store, rdcr).Run(ctx, replay.Options{ToSeq: toSeq})
	if err != nil {
		fmt.Fprintln(stderr, err)
		return ExitUsageOrIO
	}

	fmt.Fprintf(stdout, "replayed %d events, last_seq=%d last_hash=%s\n", result.AppliedCount, result.LastSeq, result.LastHash)
	if *showState {
		data, err := json.MarshalIndent(result.State, "", "  ")
		if err != nil {
			fmt.Fprintln(stderr, err)
			return ExitUsageOrIO
		}
		fmt.Fprintln(stdout, string(data))
	}
	return ExitOK
}

// --- audit-report ---

func runAuditReportCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("audit-report", flag.ContinueOnError)
	fs.SetOutput(stderr)
	atSeq := fs.Int64("at-seq", 0, "seq of the ActionsDecided event to report on (required)")
	format := fs.String("format", "text", "output format: json|md|text")
	summary := fs.Bool("summary", false, "print only the valid/invalid summary line")
	keyPath := fs.String("key", "", "Ed25519 public key path for checkpoint signature verification (optional)")
	cpDir := fs.String("checkpoints", "", "checkpoint directory (optional)")
	if err := fs.Parse(args); err != nil {
		return ExitUsageOrIO
	}

	ctx := context.Background()
	store, _, err := openStoreFromEnv(ctx)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return ExitUsageOrIO
	}

	var cpStore *checkpoint.Store
	if *cpDir != "" {
		cpStore, err = checkpoint.Open(*cpDir)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return ExitUsageOrIO
		}
	}

	var pub ed25519.PublicKey
	if *keyPath != "" {
		pub, err = loadPublicKey(*keyPath)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return ExitUsageOrIO
		}
	}

	proof, err := verifier.BuildDecisionProof(ctx, store, cpStore, pub, *atSeq)
	if err != nil {
		var mismatch verifier.ChainMismatch
		var pmismatch verifier.PointerMismatch
		if errors.As(err, &mismatch) || errors.As(err, &pmismatch) {
			fmt.Fprintln(stderr, err)
			return ExitFailed
		}
		fmt.Fprintln(stderr, err)
		return ExitUsageOrIO
	}

	if *summary {
		if proof.Valid {
			fmt.Fprintln(stdout, "VALID")
			return ExitOK
		}
		fmt.Fprintln(stdout, "INVALID")
		return ExitFailed
	}

	switch *format {
	case "json":
		data, _ := json.MarshalIndent(proof, "", "  ")
		fmt.Fprintln(stdout, string(data))
	case "md":
		fmt.Fprintf(stdout, "# Decision proof: seq %d\n\n", proof.Trigger.Seq)
		fmt.Fprintf(stdout, "- trigger type: %s\n", proof.Trigger.Type)
		fmt.Fprintf(stdout, "- actions: %d\n", len(proof.ActionsDecided.ActionIDs))
		fmt.Fprintf(stdout, "- checkpoint found: %v\n", proof.Checkpoint.Found)
		fmt.Fprintf(stdout, "- valid: %v\n", proof.Valid)
	default:
		fmt.Fprintf(stdout, "trigger: seq=%d type=%s spec_hash=%s\n", proof.Trigger.Seq, proof.Trigger.Type, proof.Trigger.SpecHash)
		fmt.Fprintf(stdout, "actions_decided: actions_hash=%s count=%d\n", proof.ActionsDecided.ActionsHash, len(proof.ActionsDecided.ActionIDs))
		for _, r := range proof.ActionResults {
			fmt.Fprintf(stdout, "  action %s: found=%v result=%s via=%s\n", r.ActionID, r.Found, r.ResultCode, r.FromEvent)
		}
		fmt.Fprintf(stdout, "checkpoint: found=%v event_index=%d signature_valid=%v\n", proof.Checkpoint.Found, proof.Checkpoint.EventIndex, proof.Checkpoint.SignatureValid)
		fmt.Fprintf(stdout, "valid: %v\n", proof.Valid)
	}

	if !proof.Valid {
		return ExitFailed
	}
	return ExitOK
}

// --- key loading ---

func loadOrGenerateSigner(path string, generate bool) (*checkpoint.Signer, error) {
	priv, err := readPrivateKey(path)
	if err == nil {
		return checkpoint.SignerFromPrivateKey(priv), nil
	}
	if !generate {
		return nil, errs.ConfigWrap(err, "checkpoint: load private key %s failed (pass --generate-key to create one)", path)
	}

	signer, err := checkpoint.GenerateSigner()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, errs.StorageWrap(err, "checkpoint: mkdir for key path failed")
	}
	if err := os.WriteFile(path, signer.PrivateKeyBytes(), 0o600); err != nil {
		return nil, errs.StorageWrap(err, "checkpoint: write private key %s failed", path)
	}
	if err := os.WriteFile(path+".pub", signer.PublicKey(), 0o644); err != nil {
		return nil, errs.StorageWrap(err, "checkpoint: write public key %s.pub failed", path)
	}
	return signer, nil
}

func readPrivateKey(path string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) != ed25519.PrivateKeySize {
		return nil, errs.Config("checkpoint: key file %s is not a raw ed25519 private key", path)
	}
	return ed25519.PrivateKey(data), nil
}

func loadPublicKey(path string) (ed25519.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.ConfigWrap(err, "checkpoint: load public key %s failed", path)
	}
	if len(data) != ed25519.PublicKeySize {
		return nil, errs.Config("checkpoint: key file %s is not a raw ed25519 public key", path)
	}
	return ed25519.PublicKey(data), nil
}
