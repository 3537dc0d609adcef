package network

import "testing"

func TestShellAddrConfigurator_SetAddress(t *testing.T) {
	builder := NewMockCommandBuilder()
	cfg := NewShellAddrConfigurator(builder)

	if err := cfg.SetAddress("wlan1", "192.168.50.1/24"); err != nil {
		t.Fatalf("SetAddress: %v", err)
	}

	last := builder.LastCommand()
	if last == nil || last.Name != "ip" {
		t.Fatalf("expected an `ip` invocation, got %+v", last)
	}
}

func TestShellAddrConfigurator_LinkUp(t *testing.T) {
	builder := NewMockCommandBuilder()
	cfg := NewShellAddrConfigurator(builder)

	if err := cfg.LinkUp("wlan1"); err != nil {
		t.Fatalf("LinkUp: %v", err)
	}

	last := builder.LastCommand()
	if last == nil || last.Args[len(last.Args)-1] != "up" {
		t.Fatalf("expected final arg 'up', got %+v", last)
	}
}

func TestShellAddrConfigurator_PropagatesError(t *testing.T) {
	builder := NewMockCommandBuilder()
	builder.ExecutorFactory = func(name string, args []string) *MockCommandExecutor {
		return &MockCommandExecutor{Err: ErrApManagerFailed}
	}
	cfg := NewShellAddrConfigurator(builder)

	if err := cfg.SetAddress("wlan1", "10.0.0.1/24"); err == nil {
		t.Fatal("expected error to propagate")
	}
}

func TestShellAddrConfigurator_LinkDown(t *testing.T) {
	builder := NewMockCommandBuilder()
	cfg := NewShellAddrConfigurator(builder)

	if err := cfg.LinkDown("wlan1"); err != nil {
		t.Fatalf("LinkDown: %v", err)
	}

	last := builder.LastCommand()
	if last == nil || last.Args[len(last.Args)-1] != "down" {
		t.Fatalf("expected final arg 'down', got %+v", last)
	}
}

func TestCidrFor(t *testing.T) {
	cidr, err := cidrFor("192.168.50.1", "255.255.255.0")
	if err != nil {
		t.Fatalf("cidrFor: %v", err)
	}
	if cidr != "192.168.50.1/24" {
		t.Errorf("cidrFor = %q, want 192.168.50.1/24", cidr)
	}

	if _, err := cidrFor("192.168.50.1", "not-a-mask"); err == nil {
		t.Fatal("expected error for invalid netmask")
	}
}
