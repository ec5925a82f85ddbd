// Command ctmwatch connects to the bridge's TCP port and prints every agent
// record it receives. An optional query asks the bridge to refresh agents.
package main

import (
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/dennisdiepolder/monti/ctmbridge/internal/payload"
	"github.com/dennisdiepolder/monti/ctmbridge/internal/types"
)

type options struct {
	addr     string
	query    string
	useTLS   bool
	insecure bool
	jsonOut  bool
	noColor  bool
	timeout  time.Duration
}

func parseFlags(args []string) (*options, error) {
	opts := &options{}
	flagSet := pflag.NewFlagSet("ctmwatch", pflag.ContinueOnError)
	flagSet.StringVarP(&opts.addr, "addr", "a", "localhost:42100", "bridge TCP address")
	flagSet.StringVarP(&opts.query, "query", "q", "", `query to send after connecting, e.g. "5000-1001,5000-1002"`)
	flagSet.BoolVar(&opts.useTLS, "tls", false, "connect with TLS")
	flagSet.BoolVar(&opts.insecure, "insecure", false, "skip TLS certificate verification")
	flagSet.BoolVar(&opts.jsonOut, "json", false, "print one JSON object per record")
	flagSet.BoolVar(&opts.noColor, "no-color", false, "disable coloured output")
	flagSet.DurationVar(&opts.timeout, "timeout", 5*time.Second, "connect timeout")

	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}
	return opts, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	if opts.noColor {
		color.NoColor = true
	}

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(opts *options) error {
	conn, err := dial(opts)
	if err != nil {
		return err
	}
	defer conn.Close()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		conn.Close()
	}()

	color.New(color.FgCyan).Fprintf(os.Stderr, "connected to %s\n", opts.addr)

	if opts.query != "" {
		if _, err := io.WriteString(conn, opts.query+"\n"); err != nil {
			return fmt.Errorf("sending query: %w", err)
		}
	}

	err = watch(conn, os.Stdout, opts.jsonOut)
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func dial(opts *options) (net.Conn, error) {
	d := &net.Dialer{Timeout: opts.timeout}
	if opts.useTLS {
		conn, err := tls.DialWithDialer(d, "tcp", opts.addr, &tls.Config{InsecureSkipVerify: opts.insecure})
		if err != nil {
			return nil, fmt.Errorf("connecting to %s: %w", opts.addr, err)
		}
		return conn, nil
	}
	conn, err := d.Dial("tcp", opts.addr)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", opts.addr, err)
	}
	return conn, nil
}

// watch prints records from r until the stream ends.
func watch(r io.Reader, w io.Writer, jsonOut bool) error {
	dec := payload.NewDecoder(r)
	enc := json.NewEncoder(w)
	for {
		rec, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("decoding record: %w", err)
		}

		if jsonOut {
			if err := enc.Encode(rec); err != nil {
				return err
			}
			continue
		}
		fmt.Fprintln(w, formatRecord(rec))
	}
}

func stateColor(state uint16) *color.Color {
	switch state {
	case types.AgentAvailable:
		return color.New(color.FgGreen)
	case types.AgentTalking, types.AgentHold, types.AgentReserved:
		return color.New(color.FgYellow)
	case types.AgentNotReady, types.AgentLogout:
		return color.New(color.FgRed)
	default:
		return color.New(color.FgWhite)
	}
}

func formatRecord(rec types.AgentRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-10s %-8s ", rec.AgentID, rec.Extension)
	b.WriteString(stateColor(rec.AgentState).Sprintf("%-14s", types.AgentStateName(rec.AgentState)))
	if rec.StateStartedAt > 0 {
		fmt.Fprintf(&b, " since %s", time.Unix(rec.StateStartedAt, 0).Format(time.TimeOnly))
	}
	if rec.ReasonCode != 0 {
		fmt.Fprintf(&b, " reason=%d", rec.ReasonCode)
	}
	if rec.SkillGroupID != 0 {
		fmt.Fprintf(&b, " skill_group=%d", rec.SkillGroupID)
	}
	return b.String()
}
