// Copyright 2025 sigaid authors
//
// sigaid is the agent-side CLI: generate and unlock a keyfile, acquire and
// release leases against an Authority, append state-chain entries, print a
// proof bundle, and render an identity's deterministic face.
package main

import (
	"bufio"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"flag"
	"fmt"
	"os"
	"time"

	"golang.org/x/term"

	"github.com/sigaid/core/authorityclient"
	"github.com/sigaid/core/face"
	"github.com/sigaid/core/identity"
	"github.com/sigaid/core/lease"
	"github.com/sigaid/core/pkg/config"
	"github.com/sigaid/core/proof"
	"github.com/sigaid/core/statechain"
	"github.com/sigaid/core/wire"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "keygen":
		err = runKeygen(args)
	case "agent-id":
		err = runAgentID(args)
	case "register":
		err = runRegister(args)
	case "lease-acquire":
		err = runLeaseAcquire(args)
	case "lease-release":
		err = runLeaseRelease(args)
	case "state-append":
		err = runStateAppend(args)
	case "proof":
		err = runProof(args)
	case "face":
		err = runFace(args)
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "sigaid: unknown command %q\n\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "sigaid: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("sigaid - the sigaid agent CLI")
	fmt.Println()
	fmt.Println("Usage: sigaid <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  keygen         generate a new keyfile")
	fmt.Println("  agent-id       print the agent_id encoded by a keyfile")
	fmt.Println("  register       register this agent with the Authority")
	fmt.Println("  lease-acquire  acquire the exclusive lease (token and session_id are not printed)")
	fmt.Println("  lease-release  release a held lease")
	fmt.Println("  state-append   append one state-chain entry")
	fmt.Println("  proof          build and print a proof bundle")
	fmt.Println("  face           render the deterministic identity face")
}

func readPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	if term.IsTerminal(int(os.Stdin.Fd())) {
		pw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		return pw, err
	}
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return nil, err
	}
	return []byte(line), nil
}

func runKeygen(args []string) error {
	fs := flag.NewFlagSet("keygen", flag.ExitOnError)
	path := fs.String("keyfile", "", "output keyfile path")
	fs.Parse(args)
	if *path == "" {
		return fmt.Errorf("-keyfile is required")
	}

	kp, err := identity.Generate()
	if err != nil {
		return fmt.Errorf("generate keypair: %w", err)
	}
	password, err := readPassword("keyfile password: ")
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	if err := kp.ToKeyfile(*path, password, identity.DefaultKDFParams); err != nil {
		return fmt.Errorf("write keyfile: %w", err)
	}

	agentID, err := kp.AgentID()
	if err != nil {
		return fmt.Errorf("encode agent_id: %w", err)
	}
	fmt.Printf("wrote %s\nagent_id: %s\npublic_key_base64: %s\n", *path, agentID, base64.StdEncoding.EncodeToString(kp.PublicKey()))
	return nil
}

func loadKeypair(path string) (*identity.KeyPair, error) {
	password, err := readPassword("keyfile password: ")
	if err != nil {
		return nil, fmt.Errorf("read password: %w", err)
	}
	kp, err := identity.FromKeyfile(path, password)
	if err != nil {
		return nil, fmt.Errorf("unlock keyfile: %w", err)
	}
	return kp, nil
}

func runAgentID(args []string) error {
	fs := flag.NewFlagSet("agent-id", flag.ExitOnError)
	path := fs.String("keyfile", "", "keyfile path")
	fs.Parse(args)
	if *path == "" {
		return fmt.Errorf("-keyfile is required")
	}
	kp, err := loadKeypair(*path)
	if err != nil {
		return err
	}
	defer kp.Zeroize()
	agentID, err := kp.AgentID()
	if err != nil {
		return err
	}
	fmt.Println(agentID)
	return nil
}

func runRegister(args []string) error {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	path := fs.String("keyfile", "", "keyfile path")
	fs.Parse(args)
	if *path == "" {
		return fmt.Errorf("-keyfile is required")
	}

	cfg, err := config.LoadClientConfig()
	if err != nil {
		return err
	}
	kp, err := loadKeypair(*path)
	if err != nil {
		return err
	}
	defer kp.Zeroize()

	agentID, err := kp.AgentID()
	if err != nil {
		return err
	}

	client := authorityclient.New(cfg.AuthorityURL, cfg.APIKey)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	resp, err := client.RegisterAgent(ctx, wire.AgentRegisterRequest{
		AgentID:         agentID.String(),
		PublicKeyBase64: base64.StdEncoding.EncodeToString(kp.PublicKey()),
	})
	if err != nil {
		return fmt.Errorf("register: %w", err)
	}
	fmt.Printf("registered %s at %s\n", resp.AgentID, resp.RegisteredAt)
	return nil
}

func runLeaseAcquire(args []string) error {
	fs := flag.NewFlagSet("lease-acquire", flag.ExitOnError)
	path := fs.String("keyfile", "", "keyfile path")
	fs.Parse(args)
	if *path == "" {
		return fmt.Errorf("-keyfile is required")
	}

	cfg, err := config.LoadClientConfig()
	if err != nil {
		return err
	}
	kp, err := loadKeypair(*path)
	if err != nil {
		return err
	}
	defer kp.Zeroize()

	agentID, err := kp.AgentID()
	if err != nil {
		return err
	}

	transport := authorityclient.New(cfg.AuthorityURL, cfg.APIKey)
	client := lease.NewClient(transport, agentID.String(), kp)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := client.Acquire(ctx, cfg.LeaseTTL); err != nil {
		return fmt.Errorf("acquire lease: %w", err)
	}
	fmt.Println("lease acquired; it is not renewed after this command exits")
	if !cfg.AutoRenew {
		fmt.Fprintln(os.Stderr, "warning: SIGAID_AUTO_RENEW=false has no effect here; lease.Client always auto-renews until released")
	}
	return nil
}

func runLeaseRelease(args []string) error {
	fs := flag.NewFlagSet("lease-release", flag.ExitOnError)
	agentID := fs.String("agent-id", "", "agent_id")
	sessionID := fs.String("session-id", "", "session_id of the lease holder")
	token := fs.String("token", "", "current lease token")
	fs.Parse(args)
	if *agentID == "" || *sessionID == "" || *token == "" {
		return fmt.Errorf("-agent-id, -session-id and -token are all required")
	}

	cfg, err := config.LoadClientConfig()
	if err != nil {
		return err
	}
	transport := authorityclient.New(cfg.AuthorityURL, cfg.APIKey)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := transport.Release(ctx, *agentID, wire.ReleaseRequest{SessionID: *sessionID, Token: *token}); err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	fmt.Println("lease released")
	return nil
}

func runStateAppend(args []string) error {
	fs := flag.NewFlagSet("state-append", flag.ExitOnError)
	path := fs.String("keyfile", "", "keyfile path")
	leaseToken := fs.String("lease-token", "", "active lease token")
	actionType := fs.String("action-type", "", "action_type")
	summary := fs.String("summary", "", "human-readable action summary")
	payload := fs.String("payload", "", "raw payload bytes, UTF-8")
	fs.Parse(args)
	if *path == "" || *leaseToken == "" || *actionType == "" {
		return fmt.Errorf("-keyfile, -lease-token and -action-type are required")
	}

	cfg, err := config.LoadClientConfig()
	if err != nil {
		return err
	}
	kp, err := loadKeypair(*path)
	if err != nil {
		return err
	}
	defer kp.Zeroize()

	agentID, err := kp.AgentID()
	if err != nil {
		return err
	}

	transport := authorityclient.New(cfg.AuthorityURL, cfg.APIKey)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	head, err := transport.Head(ctx, agentID.String())
	prevSequence := int64(-1)
	prevHash := statechain.ZeroHash
	if err == nil {
		prevSequence = head.Sequence
		decoded, derr := base64.StdEncoding.DecodeString(head.EntryHashBase64)
		if derr != nil || len(decoded) != 32 {
			return fmt.Errorf("decode current head hash: %w", derr)
		}
		copy(prevHash[:], decoded)
	}

	seed, err := kp.Seed()
	if err != nil {
		return err
	}
	priv := ed25519.NewKeyFromSeed(seed[:])
	entry, err := statechain.NewEntry(priv, kp.PublicKey(), prevSequence, prevHash, *actionType, *summary, []byte(*payload))
	if err != nil {
		return fmt.Errorf("build entry: %w", err)
	}

	stored, err := transport.AppendState(ctx, agentID.String(), *leaseToken, entry.ToWire())
	if err != nil {
		return fmt.Errorf("append state: %w", err)
	}
	fmt.Printf("appended sequence=%d entry_hash=%s\n", stored.Sequence, stored.EntryHashBase64)
	return nil
}

func runProof(args []string) error {
	fs := flag.NewFlagSet("proof", flag.ExitOnError)
	path := fs.String("keyfile", "", "keyfile path")
	leaseToken := fs.String("lease-token", "", "active lease token")
	challengeB64 := fs.String("challenge", "", "base64-encoded challenge issued by the verifying service")
	fs.Parse(args)
	if *path == "" || *leaseToken == "" || *challengeB64 == "" {
		return fmt.Errorf("-keyfile, -lease-token and -challenge are required")
	}

	cfg, err := config.LoadClientConfig()
	if err != nil {
		return err
	}
	kp, err := loadKeypair(*path)
	if err != nil {
		return err
	}
	defer kp.Zeroize()

	agentID, err := kp.AgentID()
	if err != nil {
		return err
	}

	challenge, err := base64.StdEncoding.DecodeString(*challengeB64)
	if err != nil {
		return fmt.Errorf("decode challenge: %w", err)
	}

	transport := authorityclient.New(cfg.AuthorityURL, cfg.APIKey)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	headResp, err := transport.Head(ctx, agentID.String())
	if err != nil {
		return fmt.Errorf("fetch state head: %w", err)
	}
	historyResp, err := transport.History(ctx, agentID.String())
	if err != nil {
		return fmt.Errorf("fetch state history: %w", err)
	}
	var headEntry statechain.Entry
	for _, e := range historyResp.Entries {
		if e.Sequence == headResp.Sequence {
			headEntry, err = statechain.EntryFromWire(e)
			if err != nil {
				return fmt.Errorf("decode head entry: %w", err)
			}
		}
	}
	if headEntry.Sequence != headResp.Sequence {
		return fmt.Errorf("could not locate head entry sequence %d in history page", headResp.Sequence)
	}

	bundle, err := proof.Build(kp, *leaseToken, headEntry, challenge, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("build proof bundle: %w", err)
	}

	raw := bundle.ToWire()
	fmt.Printf("agent_id: %s\n", raw.AgentID)
	fmt.Printf("bundle_timestamp: %s\n", raw.BundleTimestamp)
	fmt.Printf("bundle_signature_base64: %s\n", raw.BundleSignatureBase64)
	return nil
}

func runFace(args []string) error {
	fs := flag.NewFlagSet("face", flag.ExitOnError)
	agentID := fs.String("agent-id", "", "agent_id to render")
	size := fs.Int("size", 256, "SVG canvas size")
	animated := fs.Bool("animated", false, "include CSS animation defs")
	fs.Parse(args)
	if *agentID == "" {
		return fmt.Errorf("-agent-id is required")
	}

	pub, err := identity.Parse(*agentID)
	if err != nil {
		return fmt.Errorf("parse agent_id: %w", err)
	}
	f := face.FromBytes(pub)
	fmt.Println(f.ToVectorGraphic(*size, *animated))
	fmt.Fprintf(os.Stderr, "fingerprint: %s\n", f.Fingerprint())
	fmt.Fprintf(os.Stderr, "description: %s\n", f.FullDescription())
	return nil
}
