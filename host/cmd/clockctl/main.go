// clockctl talks to a goclock over its serial console. It can push a
// YAML provisioning file, pull the device state, sync the clock from
// host time, or drop into an interactive shell where any dictionary
// command can be typed directly.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/shlex"
	"github.com/joho/godotenv"

	"goclock/host/client"
	"goclock/host/serial"
)

func main() {
	// A .env next to the binary can hold CLOCKCTL_DEVICE etc.
	_ = godotenv.Load()

	device := flag.String("device", envOr("CLOCKCTL_DEVICE", "/dev/ttyACM0"), "serial device of the clock")
	baud := flag.Int("baud", envIntOr("CLOCKCTL_BAUD", 115200), "baud rate (ignored over USB CDC)")
	timeout := flag.Duration("timeout", 2*time.Second, "per-command response timeout")
	oneshot := flag.String("c", "", "run one console command and exit")
	flag.Parse()

	cfg := serial.DefaultConfig(*device)
	cfg.Baud = *baud

	fmt.Printf("Connecting to %s...\n", *device)
	cl, err := client.ConnectWithConfig(cfg, *timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer cl.Close()

	dict := cl.Dict()
	fmt.Printf("Connected: %s (%d commands)\n", dict.Version, len(dict.Commands))

	if *oneshot != "" {
		exitOn(runLine(cl, *oneshot, *timeout))
		return
	}

	switch flag.Arg(0) {
	case "push":
		if flag.Arg(1) == "" {
			fmt.Fprintln(os.Stderr, "usage: clockctl push <file.yaml>")
			os.Exit(1)
		}
		exitOn(runPush(cl, flag.Arg(1), *timeout))
	case "pull":
		exitOn(runPull(cl, *timeout))
	case "sync":
		exitOn(runSync(cl, *timeout))
	case "":
		runShell(cl, *timeout)
	default:
		// Anything else is a console command with its arguments
		exitOn(runLine(cl, strings.Join(flag.Args(), " "), *timeout))
	}
}

func exitOn(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func runShell(cl *client.Client, timeout time.Duration) {
	fmt.Println("Interactive console. Type 'help' for commands, 'quit' to exit.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts, err := shlex.Split(line)
		if err != nil {
			fmt.Printf("  parse error: %v\n", err)
			continue
		}

		switch parts[0] {
		case "quit", "exit", "q":
			return
		case "help", "?":
			printHelp(cl.Dict())
		case "dict":
			printDict(cl.Dict())
		case "raw":
			fmt.Println(string(cl.RawDictionary()))
		case "pull":
			shellErr(runPull(cl, timeout))
		case "sync":
			shellErr(runSync(cl, timeout))
		case "push":
			if len(parts) < 2 {
				fmt.Println("  usage: push <file.yaml>")
				continue
			}
			shellErr(runPush(cl, parts[1], timeout))
		default:
			responses, err := cl.Call(parts[0], parts[1:], timeout)
			if err != nil {
				fmt.Printf("  error: %v\n", err)
				continue
			}
			printResponses(responses)
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "input error: %v\n", err)
	}
}

func shellErr(err error) {
	if err != nil {
		fmt.Printf("  error: %v\n", err)
	}
}

// runLine executes one console command line and fails on a negative
// result
func runLine(cl *client.Client, line string, timeout time.Duration) error {
	parts, err := shlex.Split(line)
	if err != nil {
		return err
	}
	if len(parts) == 0 {
		return fmt.Errorf("empty command")
	}
	responses, err := cl.Call(parts[0], parts[1:], timeout)
	if err != nil {
		return err
	}
	printResponses(responses)
	if ok, msg, found := client.Result(responses); found && !ok {
		return fmt.Errorf("%s failed: %s", parts[0], msg)
	}
	return nil
}

func runPush(cl *client.Client, path string, timeout time.Duration) error {
	p, err := client.LoadProvision(path)
	if err != nil {
		return err
	}
	fmt.Printf("Pushing %s (%d alarms)...\n", path, len(p.Alarms))
	if err := cl.Push(p, timeout); err != nil {
		return err
	}
	fmt.Println("Done.")
	return nil
}

// runPull reads the full device state, one query at a time
func runPull(cl *client.Client, timeout time.Duration) error {
	queries := []string{"get_status", "get_time", "get_config", "get_temp", "list_alarms", "dump_events"}
	for _, name := range queries {
		responses, err := cl.Call(name, nil, timeout)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		fmt.Printf("%s:\n", name)
		printResponses(responses)
	}
	return nil
}

func runSync(cl *client.Client, timeout time.Duration) error {
	utc := time.Now().UTC().Unix()
	responses, err := cl.Call("set_time", []string{fmt.Sprintf("utc=%d", utc)}, timeout)
	if err != nil {
		return err
	}
	printResponses(responses)
	if ok, msg, found := client.Result(responses); found && !ok {
		return fmt.Errorf("set_time failed: %s", msg)
	}
	fmt.Println("Clock set from host time.")
	return nil
}

func printResponses(responses []*client.Response) {
	if len(responses) == 0 {
		fmt.Println("  (no response)")
		return
	}
	for _, r := range responses {
		fmt.Println("  " + r.String())
	}
}

func printHelp(dict *client.Dictionary) {
	fmt.Println("Built-in commands:")
	fmt.Println("  push <file>  - apply a YAML provisioning file")
	fmt.Println("  pull         - read the full device state")
	fmt.Println("  sync         - set the clock from host time")
	fmt.Println("  dict         - show the device dictionary summary")
	fmt.Println("  raw          - dump the dictionary JSON")
	fmt.Println("  quit         - exit")
	fmt.Println()
	fmt.Println("Device commands (args as name=value or positional):")
	for _, name := range dict.CommandNames() {
		fmt.Println("  " + name)
	}
}

func printDict(dict *client.Dictionary) {
	fmt.Printf("firmware: %s\n", dict.Version)
	fmt.Printf("built with: %s\n", dict.BuildVersions)

	names := make([]string, 0, len(dict.Config))
	for name := range dict.Config {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %s = %s\n", name, dict.Config[name])
	}
	fmt.Printf("%d commands, %d responses, %d enumerations\n",
		len(dict.Commands), len(dict.Responses), len(dict.Enumerations))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
