package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/shlex"

	"rcadc/host/mcu"
	"rcadc/protocol"
)

// shell is an interactive command loop against the device.
func shell() {
	c := loadConfig()
	m := connect(c)
	defer m.Close()

	m.PrintDictionary(os.Stdout)
	fmt.Println("Enter commands (type 'help' for available commands, 'quit' to exit):")
	scanner := bufio.NewScanner(os.Stdin)
	ctx := context.Background()

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
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}
		if len(parts) == 0 {
			continue
		}

		switch parts[0] {
		case "quit", "exit", "q":
			return
		case "help", "?":
			printHelp()
		case "dict":
			m.PrintDictionary(os.Stdout)
		case "raw":
			raw := m.GetDictionaryRaw()
			fmt.Printf("Raw dictionary data (%d bytes):\n%s\n", len(raw), string(raw))
		case "get_clock":
			err = query(ctx, m, "get_clock", nil, "clock")
		case "get_uptime":
			err = query(ctx, m, "get_uptime", nil, "uptime")
		case "get_config":
			err = query(ctx, m, "get_config", nil, "config")
		case "calibration":
			var cal mcu.Calibration
			if cal, err = m.Calibration(ctx); err == nil {
				fmt.Printf("offset A %d, offset B %d, mask 0x%08x, phase %d, ready %v\n",
					cal.OffsetA, cal.OffsetB, cal.Mask, cal.Phase, cal.Ready)
			}
		case "stats":
			err = query(ctx, m, "get_capture_stats", nil, "capture_stats")
		case "read":
			n := maxRead(m)
			if len(parts) > 1 {
				n, err = strconv.Atoi(parts[1])
			}
			if err == nil {
				var block []byte
				if block, err = m.ReadSamples(ctx, n); err == nil {
					printBlock(block)
				}
			}
		case "events":
			var resps []*mcu.Response
			if resps, err = m.Collect(ctx, "dump_events", nil, "events_done"); err == nil {
				for _, r := range resps {
					fmt.Println(r)
				}
			}
		case "debug":
			on := uint32(0)
			if len(parts) > 1 && parts[1] == "on" {
				on = 1
			}
			err = m.SendCommand("set_debug", func(out protocol.OutputBuffer) {
				protocol.EncodeVLQUint(out, on)
			})
		default:
			fmt.Printf("Unknown command: %s (type 'help' for available commands)\n", parts[0])
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
		os.Exit(1)
	}
}

func query(ctx context.Context, m *mcu.MCU, cmd string, args func(protocol.OutputBuffer), want string) error {
	resp, err := m.Query(ctx, cmd, args, want)
	if err != nil {
		return err
	}
	fmt.Println(resp)
	return nil
}

func printHelp() {
	fmt.Println("\nAvailable commands:")
	fmt.Println("  help           - Show this help message")
	fmt.Println("  dict           - Print dictionary summary")
	fmt.Println("  raw            - Print raw dictionary data")
	fmt.Println("  get_clock      - Get MCU clock")
	fmt.Println("  get_uptime     - Get MCU uptime")
	fmt.Println("  get_config     - Get shutdown/ready state")
	fmt.Println("  calibration    - Show ring offsets")
	fmt.Println("  stats          - Show read/tear/timeout counters")
	fmt.Println("  read [n]       - Read one block (no retry)")
	fmt.Println("  events         - Dump the device event ring")
	fmt.Println("  debug on|off   - Toggle device debug output")
	fmt.Println("  quit/exit/q    - Exit the program")
	fmt.Println()
}
