package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/theckman/yacspin"

	"rcadc/capture"
	"rcadc/host/mcu"
	"rcadc/host/recorder"
	"rcadc/host/server"
)

// Version is the version number. Typically injected via ldflags.
var Version = "0.2.0"

func root() {
	str := `rcadc-host talks to the rcadc capture firmware over USB serial.

Usage:
	rcadc-host <command> [args]

Commands:
	run                serve /samples, /calibration and /stats over HTTP
	read [n]           print one block of n interleaved bytes
	record [seconds]   record continuously to a stereo WAV file
	inspect <file>     summarise a recording
	shell              interactive command loop
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `rcadc-host reads its configuration from rcadc.yml in the working directory,
then from RCADC_* environment variables (RCADC_DEVICE=/dev/ttyACM1 etc).
"rcadc-host mkconf" writes the effective configuration as a starting point.

Each block is one half of the capture ring: up to 1350 A/B sample pairs,
0..128 each. A read that races the DMA engine is reported as a tear and
retried with exponential backoff for up to retrymaxelapsed milliseconds.`
	fmt.Println(str)
}

func pversion() {
	fmt.Printf("rcadc-host version %v\n", Version)
}

// connect opens the device and fetches its dictionary.
func connect(c Config) *mcu.MCU {
	m := mcu.NewMCU()
	m.SetLogger(log.New(os.Stderr, "mcu: ", log.LstdFlags))
	if err := m.ConnectWithConfig(c.serial()); err != nil {
		log.Fatal(err)
	}
	if err := m.RetrieveDictionary(); err != nil {
		m.Close()
		log.Fatal(err)
	}
	return m
}

func maxRead(m *mcu.MCU) int {
	n, err := m.MaxRead()
	if err != nil {
		log.Printf("%v, using %d", err, capture.DefaultConfig().MaxRead)
		return capture.DefaultConfig().MaxRead
	}
	return n
}

func run() {
	c := loadConfig()
	m := connect(c)
	defer m.Close()

	srv := server.New(m, c.server(maxRead(m)))
	log.Println("now listening for requests at ", c.Addr)
	log.Fatal(http.ListenAndServe(c.Addr, srv.Routes()))
}

func readOnce(args []string) {
	c := loadConfig()
	m := connect(c)
	defer m.Close()

	n := maxRead(m)
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil {
			log.Fatalf("read: %v", err)
		}
		n = v
	}
	block, err := m.ReadSamplesRetry(context.Background(), n, mcu.DefaultBackOff(c.retry()))
	if err != nil {
		log.Fatal(err)
	}
	printBlock(block)
}

func printBlock(block []byte) {
	a, b := mcu.Split(block)
	for i := range a {
		fmt.Printf("%4d %3d %3d\n", i, a[i], b[i])
	}
}

func record(args []string) {
	c := loadConfig()
	seconds := c.RecordSeconds
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil {
			log.Fatalf("record: %v", err)
		}
		seconds = v
	}
	m := connect(c)
	defer m.Close()

	rate, err := m.SampleRate()
	if err != nil {
		log.Fatal(err)
	}
	rec, err := recorder.New(c.RecordPath, rate)
	if err != nil {
		log.Fatal(err)
	}
	n := maxRead(m)

	spinner, err := yacspin.New(yacspin.Config{
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[11],
		Suffix:            " recording",
		SuffixAutoColon:   true,
		StopCharacter:     "✓",
		StopColors:        []string{"fgGreen"},
		StopFailCharacter: "✗",
		StopFailColors:    []string{"fgRed"},
	})
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, time.Duration(seconds)*time.Second)
	defer cancel()

	spinner.Start()
	err = recordLoop(ctx, m, rec, n, c.retry(), func() {
		spinner.Message(fmt.Sprintf("%d blocks, %d dropped", rec.Blocks(), rec.Dropped()))
	})
	if err != nil {
		spinner.StopFailMessage(err.Error())
		spinner.StopFail()
		log.Fatal(err)
	}
	if err := rec.Close(); err != nil {
		spinner.StopFailMessage(err.Error())
		spinner.StopFail()
		log.Fatal(err)
	}
	spinner.StopMessage(fmt.Sprintf("%d samples to %s, %d blocks dropped", rec.Samples(), c.RecordPath, rec.Dropped()))
	spinner.Stop()
}

// recordLoop reads blocks until ctx ends. A block still torn after its
// retries is counted as dropped; anything else stops the recording.
func recordLoop(ctx context.Context, m *mcu.MCU, rec *recorder.Recorder, n int, retry time.Duration, progress func()) error {
	for ctx.Err() == nil {
		block, err := m.ReadSamplesRetry(ctx, n, mcu.DefaultBackOff(retry))
		switch {
		case err == nil:
			if err := rec.Write(block); err != nil {
				return err
			}
		case capture.Retryable(err):
			rec.Drop()
		case ctx.Err() != nil:
			return nil
		default:
			return err
		}
		progress()
	}
	return nil
}

func inspect(args []string) {
	path := loadConfig().RecordPath
	if len(args) > 0 {
		path = args[0]
	}
	f, err := os.Open(path)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	info, err := recorder.Inspect(f)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("%s: %d channels, %d Hz, %d bit, %d frames, %v\n",
		path, info.Channels, info.SampleRate, info.BitDepth, info.Frames, info.Duration)
	for i, m := range info.Means {
		fmt.Printf("  channel %c mean %.1f\n", 'A'+i, m)
	}
}

func main() {
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	cmd := strings.ToLower(args[1])
	switch cmd {
	case "help":
		help()
	case "mkconf":
		mkconf()
	case "conf":
		printconf()
	case "run":
		run()
	case "read":
		readOnce(args[2:])
	case "record":
		record(args[2:])
	case "shell":
		shell()
	case "inspect":
		inspect(args[2:])
	case "version":
		pversion()
	default:
		log.Fatal(errors.New("unknown command " + cmd))
	}
}
