package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"tipjar/rpc"
)

var rpcEndpoint = defaultRPCEndpoint() // Defaults to localhost, can be overridden via RPC_URL or --rpc flag
var rpcAuthToken = os.Getenv("TIPJAR_RPC_TOKEN")

const rpcTimeout = 15 * time.Second

var printer = message.NewPrinter(language.English)

// tipjarRPCCall is swapped out by tests.
var tipjarRPCCall = callTipjarRPC

func main() {
	args, err := applyGlobalFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(run(args, os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprintln(stdout, usage())
		return 0
	}
	switch args[0] {
	case "register":
		return runRegister(args[1:], stdout, stderr)
	case "rename":
		return runRename(args[1:], stdout, stderr)
	case "tip":
		return runTip(args[1:], stdout, stderr)
	case "creator":
		return runCreator(args[1:], stdout, stderr)
	case "tip-info":
		return runTipInfo(args[1:], stdout, stderr)
	case "tip-ids":
		return runTipIDs(args[1:], stdout, stderr)
	case "recent":
		return runRecent(args[1:], stdout, stderr)
	case "stats":
		return runStats(args[1:], stdout, stderr)
	case "tipper-stats":
		return runTipperStats(args[1:], stdout, stderr)
	case "balance":
		return runBalance(args[1:], stdout, stderr)
	case "faucet":
		return runFaucet(args[1:], stdout, stderr)
	case "status":
		return runStatus(args[1:], stdout, stderr)
	case "token":
		return runToken(args[1:], stdout, stderr)
	case "address":
		return runAddress(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage())
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		fmt.Fprintln(stderr, usage())
		return 1
	}
}

func usage() string {
	return strings.TrimSpace(`Usage:
  tipjar-cli [--rpc URL] <command> [flags]

Ledger commands (require TIPJAR_RPC_TOKEN):
  register      Register the caller as a creator
  rename        Change the caller's display name
  tip           Send a tip to a registered creator
  faucet        Credit the caller's development balance

Read commands:
  creator       Show a creator profile
  tip-info      Show a tip by id
  tip-ids       List the tip ids received by a creator
  recent        List a creator's most recent tips
  stats         Show platform totals
  tipper-stats  Show what a tipper has sent a creator
  balance       Show an account balance
  status        Show ledger height and tip counter

Tools:
  token         Mint a caller token from the JWT signing secret
  address       Derive a development address from a label

Environment:
  RPC_URL           overrides the default endpoint
  TIPJAR_RPC_TOKEN  bearer token sent with every call`)
}

func defaultRPCEndpoint() string {
	if v := strings.TrimSpace(os.Getenv("RPC_URL")); v != "" {
		return v
	}
	return "http://127.0.0.1:8545"
}

func applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--rpc" {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for --rpc")
			}
			rpcEndpoint = args[i+1]
			i++
			continue
		}
		if strings.HasPrefix(arg, "--rpc=") {
			rpcEndpoint = strings.TrimPrefix(arg, "--rpc=")
			continue
		}
		out = append(out, arg)
	}
	return out, nil
}

func callTipjarRPC(method string, params interface{}, out interface{}) error {
	ctx, cancel := context.WithTimeout(context.Background(), rpcTimeout)
	defer cancel()
	return rpc.NewClient(rpcEndpoint, rpcAuthToken).Call(ctx, method, params, out)
}

func requireToken(stderr io.Writer) bool {
	if strings.TrimSpace(rpcAuthToken) == "" {
		fmt.Fprintln(stderr, "Error: TIPJAR_RPC_TOKEN is required; mint one with `tipjar-cli token`")
		return false
	}
	return true
}

func handleCallError(w io.Writer, err error) int {
	if err == nil {
		return 0
	}
	var rpcErr *rpc.RPCError
	if errors.As(err, &rpcErr) {
		fmt.Fprintf(w, "RPC error %d: %s\n", rpcErr.Code, rpcErr.Message)
		return 1
	}
	fmt.Fprintf(w, "RPC call failed: %v\n", err)
	return 1
}

func writeJSON(w io.Writer, v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(w, "%v\n", v)
		return
	}
	fmt.Fprintln(w, string(data))
}

// formatAmount groups the digits of a decimal amount.
func formatAmount(amount string) string {
	v, ok := new(big.Int).SetString(strings.TrimSpace(amount), 10)
	if !ok {
		return amount
	}
	if v.IsInt64() {
		return printer.Sprintf("%d", v.Int64())
	}
	return v.String()
}
