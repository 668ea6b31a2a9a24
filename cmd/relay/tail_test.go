package main

import (
	"strings"
	"testing"
)

func TestTail_RejectsUnknownTopic(t *testing.T) {
	t.Setenv("RELAY_NATS_URL", "nats://localhost:4222")

	rootCmd.SetArgs([]string{"tail", "announcements"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "unknown topic") {
		t.Errorf("error %q does not mention the unknown topic", err)
	}
}

func TestTail_RequiresNATSURL(t *testing.T) {
	t.Setenv("RELAY_NATS_URL", "")

	rootCmd.SetArgs([]string{"tail"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "RELAY_NATS_URL") {
		t.Errorf("error %q does not name the missing variable", err)
	}
}
