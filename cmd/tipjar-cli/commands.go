package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"tipjar/cmd/internal/passphrase"
	"tipjar/config"
	"tipjar/crypto"
	"tipjar/rpc"
)

const defaultTokenTTL = 24 * time.Hour

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string, stderr io.Writer) bool {
	if err := fs.Parse(args); err != nil {
		return false
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(stderr, "Error: unexpected positional arguments")
		return false
	}
	return true
}

func required(stderr io.Writer, flagName, value string) (string, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		fmt.Fprintf(stderr, "Error: --%s is required\n", flagName)
		return "", false
	}
	return trimmed, true
}

func runRegister(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("register", stderr)
	var name string
	fs.StringVar(&name, "name", "", "display name shown to tippers")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	if strings.TrimSpace(name) == "" {
		fmt.Fprintln(stderr, "Error: --name is required")
		return 1
	}
	if !requireToken(stderr) {
		return 1
	}
	if err := tipjarRPCCall("tipjar_registerCreator", map[string]interface{}{"displayName": name}, nil); err != nil {
		return handleCallError(stderr, err)
	}
	fmt.Fprintf(stdout, "Registered creator %q\n", name)
	return 0
}

func runRename(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("rename", stderr)
	var name string
	fs.StringVar(&name, "name", "", "new display name")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	if strings.TrimSpace(name) == "" {
		fmt.Fprintln(stderr, "Error: --name is required")
		return 1
	}
	if !requireToken(stderr) {
		return 1
	}
	if err := tipjarRPCCall("tipjar_updateDisplayName", map[string]interface{}{"newName": name}, nil); err != nil {
		return handleCallError(stderr, err)
	}
	fmt.Fprintf(stdout, "Display name updated to %q\n", name)
	return 0
}

func runTip(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("tip", stderr)
	var to, amount, msg string
	fs.StringVar(&to, "to", "", "bech32 address of the creator")
	fs.StringVar(&amount, "amount", "", "amount in base units")
	fs.StringVar(&msg, "message", "", "optional message attached to the tip")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	recipient, ok := required(stderr, "to", to)
	if !ok {
		return 1
	}
	value, ok := required(stderr, "amount", amount)
	if !ok {
		return 1
	}
	if !requireToken(stderr) {
		return 1
	}
	params := map[string]interface{}{"recipient": recipient, "amount": value}
	// An explicitly empty --message still attaches a message.
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "message" {
			params["message"] = msg
		}
	})
	var result rpc.SendTipResult
	if err := tipjarRPCCall("tipjar_sendTip", params, &result); err != nil {
		return handleCallError(stderr, err)
	}
	fmt.Fprintf(stdout, "Tip #%d sent: %s to %s\n", result.ID, formatAmount(value), recipient)
	return 0
}

func runCreator(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("creator", stderr)
	var addr string
	fs.StringVar(&addr, "addr", "", "bech32 address of the creator")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	account, ok := required(stderr, "addr", addr)
	if !ok {
		return 1
	}
	var result *rpc.CreatorResult
	if err := tipjarRPCCall("tipjar_getCreatorInfo", map[string]interface{}{"account": account}, &result); err != nil {
		return handleCallError(stderr, err)
	}
	if result == nil {
		fmt.Fprintf(stdout, "%s is not a registered creator\n", account)
		return 0
	}
	writeJSON(stdout, result)
	return 0
}

func runTipInfo(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("tip-info", stderr)
	var id uint64
	fs.Uint64Var(&id, "id", 0, "tip id")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	if id == 0 {
		fmt.Fprintln(stderr, "Error: --id is required")
		return 1
	}
	var result *rpc.TipResult
	if err := tipjarRPCCall("tipjar_getTip", map[string]interface{}{"id": id}, &result); err != nil {
		return handleCallError(stderr, err)
	}
	if result == nil {
		fmt.Fprintf(stdout, "Tip #%d does not exist\n", id)
		return 0
	}
	writeJSON(stdout, result)
	return 0
}

func runTipIDs(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("tip-ids", stderr)
	var creator string
	fs.StringVar(&creator, "creator", "", "bech32 address of the creator")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	account, ok := required(stderr, "creator", creator)
	if !ok {
		return 1
	}
	var ids []uint64
	if err := tipjarRPCCall("tipjar_getCreatorTipIds", map[string]interface{}{"account": account}, &ids); err != nil {
		return handleCallError(stderr, err)
	}
	if ids == nil {
		ids = []uint64{}
	}
	writeJSON(stdout, ids)
	return 0
}

func runRecent(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("recent", stderr)
	var creator string
	var limit uint64
	fs.StringVar(&creator, "creator", "", "bech32 address of the creator")
	fs.Uint64Var(&limit, "limit", 10, "maximum number of tips to return")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	account, ok := required(stderr, "creator", creator)
	if !ok {
		return 1
	}
	var tips []*rpc.TipResult
	if err := tipjarRPCCall("tipjar_getRecentTips", map[string]interface{}{"creator": account, "limit": limit}, &tips); err != nil {
		return handleCallError(stderr, err)
	}
	if len(tips) == 0 {
		fmt.Fprintln(stdout, "No tips yet")
		return 0
	}
	for _, tip := range tips {
		line := fmt.Sprintf("#%d  %s  from %s  at height %d", tip.ID, formatAmount(tip.Amount), tip.Tipper, tip.CreatedAtHeight)
		if tip.Message != nil {
			line += fmt.Sprintf("  %q", *tip.Message)
		}
		fmt.Fprintln(stdout, line)
	}
	return 0
}

func runStats(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("stats", stderr)
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	var result rpc.PlatformStatsResult
	if err := tipjarRPCCall("tipjar_getPlatformStats", nil, &result); err != nil {
		return handleCallError(stderr, err)
	}
	fmt.Fprintf(stdout, "Total tips:   %s\n", printer.Sprintf("%d", result.TotalTips))
	fmt.Fprintf(stdout, "Total volume: %s\n", formatAmount(result.TotalVolume))
	return 0
}

func runTipperStats(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("tipper-stats", stderr)
	var creator, tipper string
	fs.StringVar(&creator, "creator", "", "bech32 address of the creator")
	fs.StringVar(&tipper, "tipper", "", "bech32 address of the tipper")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	creatorAddr, ok := required(stderr, "creator", creator)
	if !ok {
		return 1
	}
	tipperAddr, ok := required(stderr, "tipper", tipper)
	if !ok {
		return 1
	}
	var result *rpc.TipperStatsResult
	params := map[string]interface{}{"creator": creatorAddr, "tipper": tipperAddr}
	if err := tipjarRPCCall("tipjar_getTipperStats", params, &result); err != nil {
		return handleCallError(stderr, err)
	}
	if result == nil {
		fmt.Fprintf(stdout, "%s has not tipped %s\n", tipperAddr, creatorAddr)
		return 0
	}
	writeJSON(stdout, result)
	return 0
}

func runBalance(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("balance", stderr)
	var addr string
	fs.StringVar(&addr, "addr", "", "bech32 address to inspect")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	account, ok := required(stderr, "addr", addr)
	if !ok {
		return 1
	}
	var result rpc.BalanceResult
	if err := tipjarRPCCall("tipjar_getBalance", map[string]interface{}{"account": account}, &result); err != nil {
		return handleCallError(stderr, err)
	}
	fmt.Fprintf(stdout, "%s: %s\n", result.Address, formatAmount(result.Balance))
	return 0
}

func runFaucet(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("faucet", stderr)
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	if !requireToken(stderr) {
		return 1
	}
	var result rpc.BalanceResult
	if err := tipjarRPCCall("tipjar_faucet", nil, &result); err != nil {
		return handleCallError(stderr, err)
	}
	fmt.Fprintf(stdout, "Faucet credited %s; balance now %s\n", result.Address, formatAmount(result.Balance))
	return 0
}

func runStatus(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("status", stderr)
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	var result rpc.StatusResult
	if err := tipjarRPCCall("tipjar_status", nil, &result); err != nil {
		return handleCallError(stderr, err)
	}
	fmt.Fprintf(stdout, "Height:      %d\n", result.Height)
	fmt.Fprintf(stdout, "Tip counter: %d\n", result.TipCounter)
	return 0
}

func runToken(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("token", stderr)
	var addr, label, configPath string
	var ttl time.Duration
	fs.StringVar(&addr, "addr", "", "bech32 address the token authenticates")
	fs.StringVar(&label, "label", "", "derive the address from a development label instead of --addr")
	fs.StringVar(&configPath, "config", "", "read the signing secret from a daemon config file")
	fs.DurationVar(&ttl, "ttl", defaultTokenTTL, "token lifetime; zero issues a token without expiry")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	account, ok := resolveAccount(stderr, addr, label)
	if !ok {
		return 1
	}
	secret, err := signingSecret(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	token, err := rpc.IssueToken(secret, account, ttl)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, token)
	return 0
}

func runAddress(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("address", stderr)
	var label string
	fs.StringVar(&label, "label", "", "label to derive the address from")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	trimmed, ok := required(stderr, "label", label)
	if !ok {
		return 1
	}
	fmt.Fprintln(stdout, crypto.FormatAccount(crypto.DeriveAccount(trimmed)))
	return 0
}

func resolveAccount(stderr io.Writer, addr, label string) ([20]byte, bool) {
	addr = strings.TrimSpace(addr)
	label = strings.TrimSpace(label)
	switch {
	case addr != "" && label != "":
		fmt.Fprintln(stderr, "Error: --addr and --label are mutually exclusive")
		return [20]byte{}, false
	case label != "":
		return crypto.DeriveAccount(label), true
	case addr == "":
		fmt.Fprintln(stderr, "Error: --addr or --label is required")
		return [20]byte{}, false
	}
	account, err := crypto.ParseAccount(addr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: invalid --addr: %v\n", err)
		return [20]byte{}, false
	}
	return account, true
}

// signingSecret reads the JWT secret from the config file when one is named
// and otherwise from TIPJAR_JWT_SECRET or an interactive prompt.
func signingSecret(configPath string) (string, error) {
	if path := strings.TrimSpace(configPath); path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("config %s: %w", path, err)
		}
		cfg, err := config.Load(path)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(cfg.RPC.JWTSecret) == "" {
			return "", fmt.Errorf("config %s has no RPC JWT secret", path)
		}
		return cfg.RPC.JWTSecret, nil
	}
	return passphrase.NewSource("TIPJAR_JWT_SECRET", "JWT signing secret").Get()
}
