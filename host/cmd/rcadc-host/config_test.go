package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/knadh/koanf"
)

func withConfigFile(t *testing.T, contents string) {
	t.Helper()
	oldName, oldK := ConfigFileName, k
	t.Cleanup(func() { ConfigFileName, k = oldName, oldK })

	ConfigFileName = filepath.Join(t.TempDir(), "rcadc.yml")
	if contents != "" {
		if err := os.WriteFile(ConfigFileName, []byte(contents), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	k = koanf.New(".")
}

func TestConfigDefaults(t *testing.T) {
	withConfigFile(t, "")
	setupconfig()
	c := loadConfig()
	if c != defaultConfig() {
		t.Errorf("config %+v, expected defaults %+v", c, defaultConfig())
	}
}

func TestConfigLayers(t *testing.T) {
	withConfigFile(t, "device: /dev/ttyACM3\nbaud: 115200\naddr: \":7000\"\n")
	t.Setenv("RCADC_ADDR", ":9000")
	t.Setenv("RCADC_READSPERSECOND", "12.5")
	setupconfig()
	c := loadConfig()
	t.Logf("%+v", c)

	if c.Device != "/dev/ttyACM3" || c.Baud != 115200 {
		t.Errorf("file values not applied: %+v", c)
	}
	if c.Addr != ":9000" || c.ReadsPerSecond != 12.5 {
		t.Errorf("environment did not override: %+v", c)
	}
	if c.RecordPath != "rcadc.wav" {
		t.Errorf("default lost: %+v", c)
	}

	sc := c.serial()
	if sc.Device != "/dev/ttyACM3" || sc.ReadTimeout != 100*time.Millisecond {
		t.Errorf("serial config %+v", sc)
	}
	srv := c.server(2700)
	if srv.MaxRead != 2700 || srv.RetryMaxElapsed != 250*time.Millisecond || srv.Burst != 4 {
		t.Errorf("server config %+v", srv)
	}
}
