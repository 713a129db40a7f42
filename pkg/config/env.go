// Copyright 2025 Strand AI
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoadEnvFiles loads environment variables from .env files in priority order.
// Files earlier in the list win over later ones; real environment variables
// always win over file values.
func LoadEnvFiles() {
	candidates := []string{".env.local", ".env"}

	for _, file := range candidates {
		if _, err := os.Stat(file); err == nil {
			// godotenv.Load never overwrites variables that are already set
			_ = godotenv.Load(file)
		}
	}
}

// EnvPrefix returns the environment variable prefix for a provider name,
// e.g. "openai" -> "OPENAI".
func EnvPrefix(provider string) string {
	return strings.ToUpper(strings.ReplaceAll(provider, "-", "_"))
}

// GetProviderAPIKey reads <PROVIDER>_API_KEY for the given provider.
func GetProviderAPIKey(provider string) string {
	return os.Getenv(EnvPrefix(provider) + "_API_KEY")
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		// Accept plain seconds ("120") or a Go duration string ("2m")
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// ResilienceEnabled reports whether the retry driver and rate limiter are
// active. RESILIENCE_ENABLED=false turns both into passthroughs for
// deployments with gateway-level resilience.
func ResilienceEnabled() bool {
	return envBool("RESILIENCE_ENABLED", true)
}

// TraceStorePath returns the directory for the file trace store.
// TRACE_STORE_PATH overrides the default ~/.strand/traces.
func TraceStorePath() string {
	if path := os.Getenv("TRACE_STORE_PATH"); path != "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "traces"
	}
	return home + "/.strand/traces"
}
