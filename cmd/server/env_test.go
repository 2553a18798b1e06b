package main

import (
	"flag"
	"os"
	"testing"
)

func TestEnvOrFlag(t *testing.T) {
	t.Run("returns env when set", func(t *testing.T) {
		t.Setenv("TEST_ENV_OR_FLAG", "from-env")
		flagVal := "from-flag"
		got := envOrFlag("TEST_ENV_OR_FLAG", &flagVal)
		if got != "from-env" {
			t.Errorf("envOrFlag = %q, want %q", got, "from-env")
		}
	})

	t.Run("returns flag when env not set", func(t *testing.T) {
		flagVal := "from-flag"
		got := envOrFlag("UNSET_ENV_VAR_XYZ", &flagVal)
		if got != "from-flag" {
			t.Errorf("envOrFlag = %q, want %q", got, "from-flag")
		}
	})

	t.Run("returns empty when both unset", func(t *testing.T) {
		got := envOrFlag("UNSET_ENV_VAR_XYZ", nil)
		if got != "" {
			t.Errorf("envOrFlag = %q, want empty", got)
		}
	})
}

func TestApplyEnvOverrides(t *testing.T) {
	origConfig := *configFile
	origAddr := *addr
	origEnvFile := *envFile
	t.Cleanup(func() {
		*configFile = origConfig
		*addr = origAddr
		*envFile = origEnvFile
	})

	t.Run("TODOS_CONFIG sets config flag", func(t *testing.T) {
		*configFile = ""
		t.Setenv("TODOS_CONFIG", "/etc/todos/todos.yaml")
		applyEnvOverrides()
		if *configFile != "/etc/todos/todos.yaml" {
			t.Errorf("configFile = %q, want %q", *configFile, "/etc/todos/todos.yaml")
		}
	})

	t.Run("TODOS_ADDR sets addr flag", func(t *testing.T) {
		*addr = ""
		t.Setenv("TODOS_ADDR", ":9090")
		applyEnvOverrides()
		if *addr != ":9090" {
			t.Errorf("addr = %q, want %q", *addr, ":9090")
		}
	})

	t.Run("TODOS_ENV_FILE sets env-file flag", func(t *testing.T) {
		*envFile = ".env"
		t.Setenv("TODOS_ENV_FILE", "/run/secrets/todos.env")
		applyEnvOverrides()
		if *envFile != "/run/secrets/todos.env" {
			t.Errorf("envFile = %q, want %q", *envFile, "/run/secrets/todos.env")
		}
	})

	t.Run("explicit flag not overridden by env", func(t *testing.T) {
		// flag.Set marks the flag as visited, as passing -addr would.
		_ = flag.Set("addr", ":7777")
		t.Setenv("TODOS_ADDR", ":9999")

		applyEnvOverrides()
		if *addr != ":7777" {
			t.Errorf("addr = %q, want %q (explicit flag should not be overridden by env)", *addr, ":7777")
		}
	})
}

func TestEnvOverridesDoNotPanic(t *testing.T) {
	origConfig := *configFile
	origAddr := *addr
	t.Cleanup(func() {
		*configFile = origConfig
		*addr = origAddr
	})

	for _, key := range []string{"TODOS_CONFIG", "TODOS_ADDR", "TODOS_ENV_FILE"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	applyEnvOverrides()
}
