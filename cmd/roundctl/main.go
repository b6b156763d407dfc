package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/holiman/uint256"

	"roundledger/native/rounds"
)

type globalOptions struct {
	url    string
	token  string
	caller string
	env    string
}

func defaultGlobals() globalOptions {
	url := strings.TrimSpace(os.Getenv("ROUNDLEDGER_URL"))
	if url == "" {
		url = "http://localhost:8080"
	}
	env := strings.TrimSpace(os.Getenv("ROUNDLEDGER_ENV"))
	if env == "" {
		env = "dev"
	}
	return globalOptions{
		url:   url,
		token: os.Getenv("ROUNDLEDGER_TOKEN"),
		env:   env,
	}
}

// newAPI is replaced in tests.
var newAPI = func(opts globalOptions) (api, error) { return newClient(opts) }

type api interface {
	do(method, path string, body interface{}) (json.RawMessage, error)
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	opts := defaultGlobals()
	args, err := applyGlobalFlags(args, &opts)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	if args[0] == "token" {
		return runToken(args[1:], stdout, stderr)
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		fmt.Fprintln(stderr, usage())
		return 1
	}
	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	fs.SetOutput(stderr)
	build := cmd.flags(fs)
	if err := fs.Parse(args[1:]); err != nil {
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(stderr, "Error: unexpected positional arguments")
		return 1
	}
	req, err := build()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	client, err := newAPI(opts)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	result, err := client.do(req.method, req.path, req.body)
	if err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) {
			fmt.Fprintf(stderr, "Error: %s\n", apiErr.Error())
			return 2
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if req.render != nil {
		if result, err = req.render(result); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	}
	writeResult(stdout, result)
	return 0
}

func applyGlobalFlags(args []string, opts *globalOptions) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		var target *string
		var name string
		for flagName, ptr := range map[string]*string{"--url": &opts.url, "--token": &opts.token, "--caller": &opts.caller, "--env": &opts.env} {
			if arg == flagName || strings.HasPrefix(arg, flagName+"=") {
				target, name = ptr, flagName
				break
			}
		}
		if target == nil {
			out = append(out, arg)
			continue
		}
		if strings.HasPrefix(arg, name+"=") {
			*target = strings.TrimPrefix(arg, name+"=")
			continue
		}
		if i+1 >= len(args) {
			return nil, fmt.Errorf("missing value for %s", name)
		}
		*target = args[i+1]
		i++
	}
	return out, nil
}

type request struct {
	method string
	path   string
	body   interface{}
	// render rewrites the response before it is printed.
	render func(json.RawMessage) (json.RawMessage, error)
}

type command struct {
	summary string
	flags   func(fs *flag.FlagSet) func() (request, error)
}

var commands = map[string]command{
	"config": {
		summary: "show the ledger configuration",
		flags:   static(http.MethodGet, "/v1/config"),
	},
	"round": {
		summary: "show the current round and phase",
		flags:   static(http.MethodGet, "/v1/rounds/current"),
	},
	"round-data": {
		summary: "show entries, masks and settlement of a round",
		flags: func(fs *flag.FlagSet) func() (request, error) {
			round := fs.Uint64("round", 0, "round id")
			slots := fs.Bool("slots", false, "print only the qualified and excluded slots decoded from the packed mask word")
			return func() (request, error) {
				req := request{method: http.MethodGet, path: fmt.Sprintf("/v1/rounds/%d", *round)}
				if *slots {
					req.render = decodeSlots
				}
				return req, nil
			}
		},
	},
	"invites": {
		summary: "count the entries a profile invited in a round",
		flags: func(fs *flag.FlagSet) func() (request, error) {
			round := fs.Uint64("round", 0, "round id")
			profile := fs.Uint64("profile", 0, "profile id")
			return func() (request, error) {
				return request{method: http.MethodGet, path: fmt.Sprintf("/v1/rounds/%d/invites/%d", *round, *profile)}, nil
			}
		},
	},
	"profile-rounds": {
		summary: "list the rounds a profile staked in",
		flags: func(fs *flag.FlagSet) func() (request, error) {
			profile := fs.Uint64("profile", 0, "profile id")
			return func() (request, error) {
				return request{method: http.MethodGet, path: fmt.Sprintf("/v1/profiles/%d/rounds", *profile)}, nil
			}
		},
	},
	"balance": {
		summary: "show the bank balance of an address",
		flags: func(fs *flag.FlagSet) func() (request, error) {
			addr := fs.String("address", "", "hex address")
			return func() (request, error) {
				if strings.TrimSpace(*addr) == "" {
					return request{}, fmt.Errorf("--address is required")
				}
				return request{method: http.MethodGet, path: "/v1/balances/" + strings.TrimSpace(*addr)}, nil
			}
		},
	},
	"stake": {
		summary: "stake a profile into the current round",
		flags: func(fs *flag.FlagSet) func() (request, error) {
			round := fs.Uint64("round", 0, "round id")
			profile := fs.Uint64("profile", 0, "profile id")
			owner := fs.String("owner", "", "profile owner (defaults to the caller)")
			inviter := fs.String("inviter", "", "profile id of the inviter")
			return func() (request, error) {
				body := map[string]interface{}{"profileId": *profile}
				if trimmed := strings.TrimSpace(*owner); trimmed != "" {
					body["owner"] = trimmed
				}
				if trimmed := strings.TrimSpace(*inviter); trimmed != "" {
					id, err := strconv.ParseUint(trimmed, 10, 64)
					if err != nil {
						return request{}, fmt.Errorf("--inviter must be a profile id")
					}
					body["inviter"] = id
				}
				return request{method: http.MethodPost, path: fmt.Sprintf("/v1/rounds/%d/stake", *round), body: body}, nil
			}
		},
	},
	"qualify": {
		summary: "mark slots as qualified (app role)",
		flags:   maskFlags("qualify"),
	},
	"exclude": {
		summary: "mark slots as excluded (app role)",
		flags:   maskFlags("exclude"),
	},
	"claim": {
		summary: "claim the payout of a slot",
		flags: func(fs *flag.FlagSet) func() (request, error) {
			round := fs.Uint64("round", 0, "round id")
			slot := fs.Uint64("slot", 0, "slot index")
			profile := fs.Uint64("profile", 0, "profile id")
			return func() (request, error) {
				body := map[string]uint64{"slot": *slot, "profileId": *profile}
				return request{method: http.MethodPost, path: fmt.Sprintf("/v1/rounds/%d/claim", *round), body: body}, nil
			}
		},
	},
	"withdraw-fee": {
		summary: "forward the reward fee of a settled round (wallet role)",
		flags: func(fs *flag.FlagSet) func() (request, error) {
			round := fs.Uint64("round", 0, "round id")
			return func() (request, error) {
				return request{method: http.MethodPost, path: fmt.Sprintf("/v1/rounds/%d/fee", *round)}, nil
			}
		},
	},
	"halt": {
		summary: "engage the circuit breaker (owner)",
		flags:   static(http.MethodPost, "/v1/admin/halt"),
	},
	"resume": {
		summary: "release the circuit breaker (owner)",
		flags:   static(http.MethodPost, "/v1/admin/resume"),
	},
	"withdraw": {
		summary: "sweep custody to the owner while halted (owner)",
		flags:   static(http.MethodPost, "/v1/admin/withdraw"),
	},
	"schedule": {
		summary: "restart the schedule with new durations (owner)",
		flags: func(fs *flag.FlagSet) func() (request, error) {
			open := fs.Uint64("open", 0, "open phase seconds")
			freeze := fs.Uint64("freeze", 0, "freeze phase seconds")
			gap := fs.Uint64("gap", 0, "seconds between round starts")
			return func() (request, error) {
				body := map[string]uint64{"open": *open, "freeze": *freeze, "gap": *gap}
				return request{method: http.MethodPost, path: "/v1/admin/schedule", body: body}, nil
			}
		},
	},
	"set": {
		summary: "update a configuration parameter (owner)",
		flags: func(fs *flag.FlagSet) func() (request, error) {
			param := fs.String("param", "", "stakeValue, gasFee, rewardFee, maxProfiles, firstNFree, app or wallet")
			value := fs.String("value", "", "new value")
			return func() (request, error) {
				name := strings.TrimSpace(*param)
				if name == "" {
					return request{}, fmt.Errorf("--param is required")
				}
				return request{method: http.MethodPut, path: "/v1/admin/config/" + name, body: map[string]string{"value": *value}}, nil
			}
		},
	},
}

func static(method, path string) func(fs *flag.FlagSet) func() (request, error) {
	return func(*flag.FlagSet) func() (request, error) {
		return func() (request, error) { return request{method: method, path: path}, nil }
	}
}

func maskFlags(action string) func(fs *flag.FlagSet) func() (request, error) {
	return func(fs *flag.FlagSet) func() (request, error) {
		round := fs.Uint64("round", 0, "round id")
		mask := fs.String("mask", "", "slot bitmask, decimal or 0b/0x prefixed")
		return func() (request, error) {
			parsed, err := strconv.ParseUint(strings.TrimSpace(*mask), 0, 64)
			if err != nil {
				return request{}, fmt.Errorf("--mask: %v", err)
			}
			return request{method: http.MethodPost, path: fmt.Sprintf("/v1/rounds/%d/%s", *round, action), body: map[string]uint64{"mask": parsed}}, nil
		}
	}
}

type slotsView struct {
	RoundID   uint64   `json:"roundId"`
	Packed    string   `json:"packed"`
	Qualified []uint64 `json:"qualified"`
	Excluded  []uint64 `json:"excluded"`
}

// decodeSlots expands the packed mask word of a round-data response into
// slot lists.
func decodeSlots(raw json.RawMessage) (json.RawMessage, error) {
	var data struct {
		RoundID uint64       `json:"roundId"`
		Packed  *uint256.Int `json:"packed"`
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode round data: %w", err)
	}
	if data.Packed == nil {
		return nil, fmt.Errorf("round data has no packed mask word")
	}
	qualify, exclude := rounds.UnpackMasks(data.Packed)
	return json.Marshal(slotsView{
		RoundID:   data.RoundID,
		Packed:    data.Packed.Hex(),
		Qualified: maskSlots(qualify),
		Excluded:  maskSlots(exclude),
	})
}

func maskSlots(mask uint64) []uint64 {
	slots := []uint64{}
	for slot := uint64(0); mask != 0; slot++ {
		if mask&1 == 1 {
			slots = append(slots, slot)
		}
		mask >>= 1
	}
	return slots
}

func writeResult(w io.Writer, result json.RawMessage) {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, result, "", "  "); err != nil {
		fmt.Fprintln(w, strings.TrimSpace(string(result)))
		return
	}
	fmt.Fprintln(w, pretty.String())
}

func usage() string {
	var b strings.Builder
	b.WriteString("Usage: roundctl [--url URL] [--token JWT] [--caller ADDR] [--env ENV] <command> [flags]\n\nCommands:\n")
	names := []string{
		"config", "round", "round-data", "invites", "profile-rounds", "balance",
		"stake", "qualify", "exclude", "claim", "withdraw-fee",
		"halt", "resume", "withdraw", "schedule", "set",
	}
	for _, name := range names {
		fmt.Fprintf(&b, "  %-15s %s\n", name, commands[name].summary)
	}
	fmt.Fprintf(&b, "  %-15s %s\n", "token", "mint a signed caller token")
	return b.String()
}
