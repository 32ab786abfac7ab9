package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/term"

	"github.com/codefionn/extbridge/internal/bridgeclient"
	"github.com/codefionn/extbridge/internal/config"
	"github.com/codefionn/extbridge/internal/logger"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `Usage: extbridgectl <command> [options]

Commands:
  ping     Check that the bridge answers
  send     Send one action request and print the reply
  listen   Print broadcast events until interrupted; the bridge only
           notifies peers whose extension profile enables notifications
  status   Show connected peers and bridge uptime

Common options:
  -socket PATH   Socket path or pipe name (default: configured or platform default)
  -key KEY       Client session key (default: generated)
  -timeout DUR   Request timeout (default 30s)
`)
}

func run(args []string) error {
	level := os.Getenv("EXTBRIDGE_LOG_LEVEL")
	if level == "" {
		level = "warn"
	}
	logger.InitWithLogger(logger.NewWriter(logger.ParseLevel(level), os.Stderr, ""))

	if len(args) == 0 {
		usage()
		return errors.New("missing command")
	}

	switch args[0] {
	case "ping":
		return cmdPing(args[1:])
	case "send":
		return cmdSend(args[1:])
	case "listen":
		return cmdListen(args[1:])
	case "status":
		return cmdStatus(args[1:])
	case "help", "-h", "--help":
		usage()
		return nil
	default:
		usage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

type commonFlags struct {
	socket  string
	key     string
	timeout time.Duration
}

func newFlagSet(name string, cf *commonFlags) *flag.FlagSet {
	fs := flag.NewFlagSet("extbridgectl "+name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.StringVar(&cf.socket, "socket", "", "Socket path or pipe name")
	fs.StringVar(&cf.key, "key", "", "Client session key")
	fs.DurationVar(&cf.timeout, "timeout", 30*time.Second, "Request timeout")
	return fs
}

// newClient builds an unconnected client from the common flags, reading
// the daemon configuration for the socket path when none is given.
func newClient(cf *commonFlags) (*bridgeclient.Client, error) {
	socket := cf.socket
	if socket == "" {
		cfg, err := config.Load(config.GetConfigPath())
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		socket = cfg.Socket.GetSocketPath()
	}

	key := cf.key
	if key == "" {
		key = uuid.New().String()
	}

	clientCfg := bridgeclient.DefaultConfig(socket, key)
	clientCfg.RequestTimeout = cf.timeout
	return bridgeclient.NewClientWithConfig(clientCfg)
}

func connect(client *bridgeclient.Client, cf *commonFlags) error {
	ctx, cancel := context.WithTimeout(context.Background(), cf.timeout)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to bridge: %w", err)
	}
	return nil
}

func cmdPing(args []string) error {
	cf := &commonFlags{}
	fs := newFlagSet("ping", cf)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := newClient(cf)
	if err != nil {
		return err
	}
	defer client.Close()

	start := time.Now()
	if err := connect(client, cf); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cf.timeout)
	defer cancel()
	if err := client.Ping(ctx); err != nil {
		return err
	}
	fmt.Printf("pong in %s\n", time.Since(start).Round(time.Microsecond))
	return nil
}

func cmdSend(args []string) error {
	cf := &commonFlags{}
	fs := newFlagSet("send", cf)
	action := fs.String("action", "", "Action name to invoke (required)")
	data := fs.String("data", "", "JSON value sent as the request data")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *action == "" {
		return errors.New("send requires -action")
	}

	var payload interface{}
	if *data != "" {
		var raw json.RawMessage
		if err := json.Unmarshal([]byte(*data), &raw); err != nil {
			return fmt.Errorf("-data is not valid JSON: %w", err)
		}
		payload = raw
	}

	client, err := newClient(cf)
	if err != nil {
		return err
	}
	defer client.Close()
	if err := connect(client, cf); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cf.timeout)
	defer cancel()
	result, err := client.Call(ctx, *action, payload)
	if err != nil {
		return err
	}
	printJSON(result)
	return nil
}

func cmdListen(args []string) error {
	cf := &commonFlags{}
	fs := newFlagSet("listen", cf)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := newClient(cf)
	if err != nil {
		return err
	}
	defer client.Close()

	lost := make(chan error, 1)
	client.SetEventCallback(func(ev bridgeclient.Event) {
		line, err := json.Marshal(ev)
		if err != nil {
			return
		}
		fmt.Println(string(line))
	})
	client.SetConnectionLostCallback(func(err error) {
		lost <- err
	})

	if err := connect(client, cf); err != nil {
		return err
	}
	if term.IsTerminal(int(os.Stderr.Fd())) {
		fmt.Fprintln(os.Stderr, "listening for events, Ctrl-C to stop")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		return nil
	case err := <-lost:
		return fmt.Errorf("connection lost: %w", err)
	}
}

func cmdStatus(args []string) error {
	cf := &commonFlags{}
	fs := newFlagSet("status", cf)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := newClient(cf)
	if err != nil {
		return err
	}
	defer client.Close()
	if err := connect(client, cf); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cf.timeout)
	defer cancel()
	result, err := client.Call(ctx, "status", nil)
	if err != nil {
		return err
	}

	var status struct {
		Peers []struct {
			ConnID                uint64 `json:"connID"`
			AppName               string `json:"appName"`
			ExtensionName         string `json:"extensionName"`
			PID                   int    `json:"pid"`
			SupportsNotifications bool   `json:"supportsNotifications"`
		} `json:"peers"`
		Uptime string `json:"uptime"`
	}
	if err := json.Unmarshal(result, &status); err != nil {
		printJSON(result)
		return nil
	}

	fmt.Printf("uptime: %s\npeers:  %d\n", status.Uptime, len(status.Peers))
	for _, p := range status.Peers {
		line := fmt.Sprintf("  #%d %s pid=%d", p.ConnID, p.AppName, p.PID)
		if p.ExtensionName != "" {
			line += " extension=" + p.ExtensionName
		}
		if p.SupportsNotifications {
			line += " notifications"
		}
		fmt.Println(line)
	}
	return nil
}

func printJSON(raw json.RawMessage) {
	if len(raw) == 0 {
		fmt.Println("(no data)")
		return
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		fmt.Println(string(raw))
		return
	}
	fmt.Println(buf.String())
}
