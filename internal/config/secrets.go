package config

import (
	"fmt"
	"os"
	"strings"
)

// ResolveSecret reads a secret value using the *_FILE convention.
// envName+"_FILE" takes precedence over envName. Returns "" if neither is
// set and an error if the file cannot be read.
func ResolveSecret(envName string) (string, error) {
	fileEnv := envName + "_FILE"
	if filePath := os.Getenv(fileEnv); filePath != "" {
		content, err := os.ReadFile(filePath)
		if err != nil {
			return "", fmt.Errorf("failed to read secret from %s=%s: %w", fileEnv, filePath, err)
		}
		return strings.TrimSpace(string(content)), nil
	}
	return os.Getenv(envName), nil
}

// Secrets holds every credential the simulator reads at startup.
type Secrets struct {
	MQTTUsername string
	MQTTPassword string
	PGPassword   string
	AdminUser    string
	AdminPass    string
	OperatorUser string
	OperatorPass string
}

// LoadSecrets resolves all credentials. The first unreadable *_FILE aborts
// the load; the error never contains secret content.
func LoadSecrets() (Secrets, error) {
	var s Secrets
	targets := []struct {
		env string
		dst *string
	}{
		{"MQTT_USERNAME", &s.MQTTUsername},
		{"MQTT_PASSWORD", &s.MQTTPassword},
		{"PGPASSWORD", &s.PGPassword},
		{"SIM_ADMIN_USER", &s.AdminUser},
		{"SIM_ADMIN_PASS", &s.AdminPass},
		{"SIM_OPERATOR_USER", &s.OperatorUser},
		{"SIM_OPERATOR_PASS", &s.OperatorPass},
	}
	for _, t := range targets {
		v, err := ResolveSecret(t.env)
		if err != nil {
			return Secrets{}, err
		}
		*t.dst = v
	}
	return s, nil
}

// AdminAuthEnabled reports whether both admin credentials are present.
func (s Secrets) AdminAuthEnabled() bool {
	return s.AdminUser != "" && s.AdminPass != ""
}
