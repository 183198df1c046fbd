package main

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"

	yml "gopkg.in/yaml.v2"

	"rcadc/host/serial"
	"rcadc/host/server"
)

// Config is the host configuration. Values come from the defaults below,
// then rcadc.yml, then RCADC_* environment variables.
type Config struct {
	Device          string  `koanf:"device" yaml:"device"`
	Baud            int     `koanf:"baud" yaml:"baud"`
	ReadTimeoutMs   int     `koanf:"readtimeoutms" yaml:"readtimeoutms"`
	Addr            string  `koanf:"addr" yaml:"addr"`
	ReadsPerSecond  float64 `koanf:"readspersecond" yaml:"readspersecond"`
	Burst           int     `koanf:"burst" yaml:"burst"`
	RetryMaxElapsed int     `koanf:"retrymaxelapsed" yaml:"retrymaxelapsed"` // ms
	RecordSeconds   int     `koanf:"recordseconds" yaml:"recordseconds"`
	RecordPath      string  `koanf:"recordpath" yaml:"recordpath"`
}

func defaultConfig() Config {
	return Config{
		Device:          "/dev/ttyACM0",
		Baud:            250000,
		ReadTimeoutMs:   100,
		Addr:            ":8000",
		ReadsPerSecond:  40,
		Burst:           4,
		RetryMaxElapsed: 250,
		RecordSeconds:   10,
		RecordPath:      "rcadc.wav",
	}
}

var (
	// ConfigFileName is what it sounds like
	ConfigFileName = "rcadc.yml"
	k              = koanf.New(".")
)

func setupconfig() {
	k.Load(structs.Provider(defaultConfig(), "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		if !strings.Contains(err.Error(), "no such") {
			log.Fatalf("error loading config: %v", err)
		}
	}
	k.Load(env.Provider("RCADC_", ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, "RCADC_"))
	}), nil)
}

func loadConfig() Config {
	c := Config{}
	if err := k.Unmarshal("", &c); err != nil {
		log.Fatal(err)
	}
	return c
}

func (c Config) serial() *serial.Config {
	cfg := serial.DefaultConfig(c.Device)
	cfg.Baud = c.Baud
	cfg.ReadTimeout = time.Duration(c.ReadTimeoutMs) * time.Millisecond
	return cfg
}

func (c Config) retry() time.Duration {
	return time.Duration(c.RetryMaxElapsed) * time.Millisecond
}

func (c Config) server(maxRead int) server.Config {
	return server.Config{
		MaxRead:         maxRead,
		ReadsPerSecond:  c.ReadsPerSecond,
		Burst:           c.Burst,
		RetryMaxElapsed: c.retry(),
	}
}

func mkconf() {
	c := loadConfig()
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	if err := yml.NewEncoder(f).Encode(c); err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	c := loadConfig()
	if err := yml.NewEncoder(os.Stdout).Encode(c); err != nil {
		log.Fatal(err)
	}
}
