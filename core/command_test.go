package core

import (
	"errors"
	"testing"

	"rcadc/protocol"
)

func TestCommandRegistry(t *testing.T) {
	registry := NewCommandRegistry()

	var called bool
	id := registry.Register("test_command", "arg=%u", func(data *[]byte) error {
		called = true
		return nil
	})
	if id != 0 {
		t.Errorf("Expected first command to have ID 0, got %d", id)
	}

	cmd, ok := registry.GetCommand(id)
	if !ok || cmd.Name != "test_command" {
		t.Fatalf("Failed to retrieve registered command: %v", cmd)
	}
	if cmd.Signature() != "test_command arg=%u" {
		t.Errorf("Unexpected signature %q", cmd.Signature())
	}

	var data []byte
	if err := registry.Dispatch(id, &data); err != nil {
		t.Errorf("Dispatch failed: %v", err)
	}
	if !called {
		t.Error("Command handler was not called")
	}

	err := registry.Dispatch(999, &data)
	if !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("Expected ErrUnknownCommand, got %v", err)
	}
	t.Logf("unknown command: %v", err)
}

func TestCommandRegistryIDs(t *testing.T) {
	registry := NewCommandRegistry()

	id1 := registry.Register("command1", "arg1=%u", func(data *[]byte) error { return nil })
	id2 := registry.Register("response1", "val=%u", nil)
	id3 := registry.Register("command2", "", func(data *[]byte) error { return nil })
	again := registry.Register("command1", "other=%c", nil)

	if id1 != 0 || id2 != 1 || id3 != 2 {
		t.Errorf("Command IDs not sequential: %d, %d, %d", id1, id2, id3)
	}
	if again != id1 {
		t.Errorf("Re-registering returned %d, expected %d", again, id1)
	}
	if registry.Count() != 3 {
		t.Errorf("Expected 3 entries, got %d", registry.Count())
	}

	resp, _ := registry.GetCommandByName("response1")
	if !resp.IsResponse() {
		t.Error("response1 should be a response")
	}
	// A response echoed back by the host is ignored.
	var data []byte
	if err := registry.Dispatch(id2, &data); err != nil {
		t.Errorf("Dispatching a response: %v", err)
	}

	want := "command1 arg1=%u\nresponse1 val=%u\ncommand2\n"
	if got := registry.GetDictionary(); got != want {
		t.Errorf("Dictionary text:\n%s\nexpected:\n%s", got, want)
	}
}

func TestCommandWithArguments(t *testing.T) {
	registry := NewCommandRegistry()

	var receivedValue uint32
	id := registry.Register("test_args", "value=%u", func(data *[]byte) error {
		val, err := protocol.DecodeVLQUint(data)
		if err != nil {
			return err
		}
		receivedValue = val
		return nil
	})

	output := protocol.NewScratchOutput()
	protocol.EncodeVLQUint(output, 12345)
	data := output.Result()

	if err := registry.Dispatch(id, &data); err != nil {
		t.Errorf("Dispatch failed: %v", err)
	}
	if receivedValue != 12345 {
		t.Errorf("Expected value 12345, got %d", receivedValue)
	}
}

func TestBootstrapIDs(t *testing.T) {
	withFreshRegistry(t)
	InitCoreCommands()

	for name, want := range map[string]uint16{"identify_response": 0, "identify": 1} {
		cmd, ok := globalRegistry.GetCommandByName(name)
		if !ok || cmd.ID != want {
			t.Errorf("%s: expected ID %d, got %v", name, want, cmd)
		}
	}
}

func TestCoreCommands(t *testing.T) {
	withFreshRegistry(t)
	InitCoreCommands()

	SetTime(0)
	TimerInit()
	SetTime(123456)

	resps := collectResponses(t, func() {
		call(t, "get_clock")
		call(t, "get_uptime")
		call(t, "get_config")
	})
	if len(resps) != 3 {
		t.Fatalf("expected 3 responses, got %d", len(resps))
	}
	if resps[0].name != "clock" || resps[0].args[0] != 123456 {
		t.Errorf("clock: %+v", resps[0])
	}
	if resps[1].name != "uptime" || resps[1].args[0] != 0 || resps[1].args[1] != 123456 {
		t.Errorf("uptime: %+v", resps[1])
	}
	// not shut down, no capture session
	if resps[2].name != "config" || resps[2].args[0] != 0 || resps[2].args[1] != 0 {
		t.Errorf("config: %+v", resps[2])
	}
}

func TestEmergencyStop(t *testing.T) {
	withFreshRegistry(t)
	InitCoreCommands()

	stops := 0
	OnShutdown(func() { stops++ })

	call(t, "emergency_stop")
	call(t, "emergency_stop")
	if stops != 1 {
		t.Errorf("shutdown hooks ran %d times", stops)
	}
	if !IsShutdown() {
		t.Error("expected shutdown latched")
	}

	resps := collectResponses(t, func() { call(t, "get_config") })
	if resps[0].args[0] != 1 {
		t.Errorf("config reports is_shutdown=%d", resps[0].args[0])
	}

	ResetFirmwareState()
	if IsShutdown() {
		t.Error("reset did not clear shutdown")
	}
}

func TestSetDebug(t *testing.T) {
	withFreshRegistry(t)
	InitCoreCommands()
	defer SetDebugEnabled(false)
	defer SetDebugWriter(func(string) {})

	var lines []string
	SetDebugWriter(func(s string) { lines = append(lines, s) })

	DebugPrintln("hidden")
	call(t, "set_debug", 1)
	DebugPrintln("shown")
	call(t, "set_debug", 0)
	DebugPrintln("hidden again")

	if len(lines) != 1 || lines[0] != "shown" {
		t.Errorf("debug output %q", lines)
	}
}

func TestReset(t *testing.T) {
	withFreshRegistry(t)
	InitCoreCommands()
	defer func() { resetPending = 0; globalResetHandler = nil }()

	resets := 0
	SetResetHandler(func() { resets++ })

	CheckPendingReset()
	if resets != 0 {
		t.Fatal("reset ran without a request")
	}
	call(t, "reset")
	CheckPendingReset()
	if resets != 1 {
		t.Errorf("expected reset, got %d", resets)
	}
}
