package core

import (
	"goclock/protocol"
	"testing"
)

func TestCommandRegistry(t *testing.T) {
	registry := NewCommandRegistry()

	var called bool
	handler := func(data *[]byte) error {
		called = true
		return nil
	}

	id := registry.Register("test_command", "arg=%u", handler)

	if id != 0 {
		t.Errorf("Expected first command to have ID 0, got %d", id)
	}

	cmd, ok := registry.GetCommand(id)
	if !ok {
		t.Error("Failed to retrieve registered command")
	}

	if cmd.Name != "test_command" {
		t.Errorf("Expected command name 'test_command', got '%s'", cmd.Name)
	}

	var data []byte
	err := registry.Dispatch(id, &data)
	if err != nil {
		t.Errorf("Dispatch failed: %v", err)
	}

	if !called {
		t.Error("Command handler was not called")
	}

	// Unknown command
	err = registry.Dispatch(999, &data)
	if err == nil {
		t.Error("Expected error for unknown command ID")
	}
}

func TestCommandRegistryMultiple(t *testing.T) {
	registry := NewCommandRegistry()

	id1 := registry.Register("command1", "arg1=%u", func(data *[]byte) error { return nil })
	id2 := registry.Register("command2", "arg2=%u", func(data *[]byte) error { return nil })
	id3 := registry.Register("command3", "arg3=%u", func(data *[]byte) error { return nil })

	if id1 != 0 || id2 != 1 || id3 != 2 {
		t.Errorf("Command IDs not sequential: %d, %d, %d", id1, id2, id3)
	}

	for i := uint16(0); i < 3; i++ {
		if _, ok := registry.GetCommand(i); !ok {
			t.Errorf("Command %d not found", i)
		}
	}
	if registry.Count() != 3 {
		t.Errorf("Count = %d, want 3", registry.Count())
	}
}

func TestCommandRegistryDuplicateName(t *testing.T) {
	registry := NewCommandRegistry()

	first := registry.Register("same", "a=%u", func(data *[]byte) error { return nil })
	second := registry.Register("same", "b=%u", func(data *[]byte) error { return nil })

	if first != second {
		t.Errorf("Duplicate registration changed the ID: %d then %d", first, second)
	}
	if registry.Count() != 1 {
		t.Errorf("Count = %d, want 1", registry.Count())
	}
}

func TestCommandRegistryByName(t *testing.T) {
	registry := NewCommandRegistry()
	registry.Register("get_status", "", func(data *[]byte) error { return nil })

	cmd, ok := registry.GetCommandByName("get_status")
	if !ok || cmd.Name != "get_status" {
		t.Error("lookup by name failed")
	}
	if _, ok := registry.GetCommandByName("nope"); ok {
		t.Error("unknown name should not resolve")
	}
}

func TestResponsesAreNotDispatchable(t *testing.T) {
	registry := NewCommandRegistry()
	id := registry.RegisterResponse("status", "uptime=%u")

	var data []byte
	if err := registry.Dispatch(id, &data); err == nil {
		t.Error("Expected error dispatching a response")
	}
}

func TestCommandRegistryDictionary(t *testing.T) {
	registry := NewCommandRegistry()

	registry.Register("get_uptime", "", func(data *[]byte) error { return nil })
	registry.Register("set_config", "key=%c value=%u", func(data *[]byte) error { return nil })
	registry.RegisterResponse("uptime", "clock=%u")

	dict := registry.GetDictionary()
	if dict != "get_uptime\nset_config key=%c value=%u\nuptime clock=%u\n" {
		t.Errorf("Dictionary text wrong:\n%s", dict)
	}

	commands, responses := registry.GetCommandsAndResponses()
	if len(commands) != 2 || len(responses) != 1 {
		t.Errorf("split = %d commands, %d responses", len(commands), len(responses))
	}
	if commands["set_config key=%c value=%u"] != 1 {
		t.Error("command format string or ID wrong")
	}
	if responses["uptime clock=%u"] != 2 {
		t.Error("response format string or ID wrong")
	}
}

func TestCommandWithArguments(t *testing.T) {
	registry := NewCommandRegistry()

	var receivedValue uint32

	handler := func(data *[]byte) error {
		val, err := protocol.DecodeVLQUint(data)
		if err != nil {
			return err
		}
		receivedValue = val
		return nil
	}

	id := registry.Register("test_args", "value=%u", handler)

	output := protocol.NewScratchOutput()
	protocol.EncodeVLQUint(output, 12345)
	data := output.Result()

	err := registry.Dispatch(id, &data)
	if err != nil {
		t.Errorf("Dispatch failed: %v", err)
	}

	if receivedValue != 12345 {
		t.Errorf("Expected value 12345, got %d", receivedValue)
	}
}
