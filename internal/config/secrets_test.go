package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeSecret(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "secret.txt")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func TestResolveSecret(t *testing.T) {
	tests := []struct {
		name string
		env  string
		file string // file content; "" means no _FILE variable
		want string
	}{
		{"env only", "env-value", "", "env-value"},
		{"file only", "", "file-value\n", "file-value"},
		{"file wins over env", "env-value", "file-value", "file-value"},
		{"neither set", "", "", ""},
		{"trims whitespace", "", "  secret-value  \n\n", "secret-value"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			const envName = "TEST_SIM_SECRET"
			t.Setenv(envName, tt.env)
			t.Setenv(envName+"_FILE", "")
			if tt.file != "" {
				t.Setenv(envName+"_FILE", writeSecret(t, tt.file))
			}

			got, err := ResolveSecret(envName)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveSecret_EmptyFile(t *testing.T) {
	t.Setenv("TEST_SIM_EMPTY_FILE", "")
	t.Setenv("TEST_SIM_EMPTY_FILE_FILE", writeSecret(t, ""))

	value, err := ResolveSecret("TEST_SIM_EMPTY_FILE")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != "" {
		t.Errorf("got %q, want empty string", value)
	}
}

func TestResolveSecret_FileNotFound(t *testing.T) {
	t.Setenv("TEST_SIM_MISSING_FILE", "/nonexistent/path/to/secret")

	if _, err := ResolveSecret("TEST_SIM_MISSING"); err == nil {
		t.Error("expected error when file does not exist")
	}
}

func TestLoadSecrets(t *testing.T) {
	for _, env := range []string{"MQTT_USERNAME", "MQTT_PASSWORD", "PGPASSWORD", "SIM_ADMIN_USER", "SIM_ADMIN_PASS", "SIM_OPERATOR_USER", "SIM_OPERATOR_PASS"} {
		t.Setenv(env, "")
		t.Setenv(env+"_FILE", "")
	}
	t.Setenv("MQTT_USERNAME", "headset")
	t.Setenv("SIM_ADMIN_USER", "instructor")
	t.Setenv("SIM_ADMIN_PASS_FILE", writeSecret(t, "hunter2\n"))

	s, err := LoadSecrets()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.MQTTUsername != "headset" || s.AdminPass != "hunter2" {
		t.Errorf("unexpected secrets: user=%q pass set=%v", s.MQTTUsername, s.AdminPass != "")
	}
	if !s.AdminAuthEnabled() {
		t.Error("expected admin auth enabled")
	}

	t.Setenv("PGPASSWORD_FILE", "/nonexistent")
	if _, err := LoadSecrets(); err == nil {
		t.Error("expected error for unreadable PGPASSWORD_FILE")
	}
}
