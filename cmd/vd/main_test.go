package main

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/voicedesk/internal/config"
	"github.com/zulandar/voicedesk/internal/storage"
	"golang.org/x/crypto/bcrypt"
)

// run executes the root command with args and stdin, returning combined output.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// writeConfig writes a voicedesk.yaml using a sqlite file in a temp dir.
func writeConfig(t *testing.T, extra string) (cfgPath, dbPath string) {
	t.Helper()
	dir := t.TempDir()
	dbPath = filepath.Join(dir, "vd.db")
	cfgPath = filepath.Join(dir, "voicedesk.yaml")
	body := fmt.Sprintf("storage:\n  driver: sqlite\n  path: %s\n%s", dbPath, extra)
	if err := os.WriteFile(cfgPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return cfgPath, dbPath
}

func TestVersionCmd(t *testing.T) {
	out, err := run(t, "", "version")
	if err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	if !strings.Contains(out, "vd dev") {
		t.Errorf("expected output to contain 'vd dev', got: %s", out)
	}
	if !strings.Contains(out, "commit: none") {
		t.Errorf("expected output to contain 'commit: none', got: %s", out)
	}
}

func TestVersionCmdWithCustomValues(t *testing.T) {
	origVersion, origCommit, origDate := Version, Commit, Date
	Version, Commit, Date = "1.0.0", "abc123", "2026-01-01"
	defer func() { Version, Commit, Date = origVersion, origCommit, origDate }()

	out, err := run(t, "", "version")
	if err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	for _, want := range []string{"vd 1.0.0", "commit: abc123", "built: 2026-01-01"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got: %s", want, out)
		}
	}
}

func TestRootCmdHelp(t *testing.T) {
	out, err := run(t, "", "--help")
	if err != nil {
		t.Fatalf("help command failed: %v", err)
	}
	for _, sub := range []string{"serve", "db", "user", "chat", "version"} {
		if !strings.Contains(out, sub) {
			t.Errorf("expected help output to list %q, got: %s", sub, out)
		}
	}
}

func TestRootCmdSubcommands(t *testing.T) {
	cmd := newRootCmd()
	names := map[string]*cobra.Command{}
	for _, c := range cmd.Commands() {
		names[c.Name()] = c
	}
	for _, want := range []string{"serve", "db", "user", "chat", "version"} {
		if names[want] == nil {
			t.Errorf("missing subcommand %q", want)
		}
	}
	if f := names["serve"].Flags().Lookup("config"); f == nil || f.Shorthand != "c" || f.DefValue != "voicedesk.yaml" {
		t.Errorf("serve --config flag = %+v", f)
	}
}

func TestChatCmd(t *testing.T) {
	out, err := run(t, "", "chat", "--category", "bye", "now")
	if err != nil {
		t.Fatalf("chat failed: %v", err)
	}
	if !strings.HasPrefix(out, "[farewell] ") {
		t.Errorf("output = %q, want farewell category", out)
	}

	if _, err := run(t, "", "chat"); err == nil {
		t.Error("expected error without a message")
	}
}

func TestDBMigrate_SQLite(t *testing.T) {
	cfgPath, dbPath := writeConfig(t, "")

	out, err := run(t, "", "db", "migrate", "-c", cfgPath)
	if err != nil {
		t.Fatalf("db migrate failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Migrated 3 tables (sqlite)") {
		t.Errorf("output = %q", out)
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("sqlite file not created: %v", err)
	}
}

func TestDBMigrate_MemoryDriver(t *testing.T) {
	out, err := run(t, "", "db", "migrate", "-c", filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatalf("expected error for missing explicit config, got: %s", out)
	}

	cmd := newDBMigrateCmd()
	err = runDBMigrate(cmd, config.StorageConfig{Driver: config.DriverMemory})
	if err == nil || !strings.Contains(err.Error(), "no schema") {
		t.Errorf("err = %v, want no schema error", err)
	}
}

func TestUserCreate(t *testing.T) {
	cfgPath, _ := writeConfig(t, "")

	out, err := run(t, "correct horse battery\n", "user", "create", "-c", cfgPath, "--username", "alice")
	if err != nil {
		t.Fatalf("user create failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Created user alice") {
		t.Errorf("output = %q", out)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	store, err := storage.Open(cfg.Storage)
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	defer store.Close()

	u, err := store.GetUserByUsername(context.Background(), "alice")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if u.Password == "correct horse battery" {
		t.Fatal("password stored in plain text")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte("correct horse battery")); err != nil {
		t.Errorf("stored hash does not match: %v", err)
	}

	if _, err := run(t, "another password\n", "user", "create", "-c", cfgPath, "--username", "alice"); err == nil ||
		!strings.Contains(err.Error(), "already exists") {
		t.Errorf("duplicate err = %v", err)
	}
}

func TestUserCreate_Errors(t *testing.T) {
	cfgPath, _ := writeConfig(t, "")

	if _, err := run(t, "short\n", "user", "create", "-c", cfgPath, "--username", "bob"); err == nil ||
		!strings.Contains(err.Error(), "at least") {
		t.Errorf("short password err = %v", err)
	}
	if _, err := run(t, "long enough pw\n", "user", "create", "-c", cfgPath); err == nil {
		t.Error("expected error without --username")
	}

	cmd := newUserCreateCmd()
	err := runUserCreate(cmd, config.StorageConfig{Driver: config.DriverMemory}, "carol", "long enough pw")
	if err == nil || !strings.Contains(err.Error(), "does not persist") {
		t.Errorf("memory driver err = %v", err)
	}
}

func TestLoadConfig_DefaultPathMissing(t *testing.T) {
	t.Setenv("ELEVENLABS_API_KEY", "")
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "voicedesk.yaml"), false)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Storage.Driver != config.DriverMemory || cfg.Server.Port != 5000 {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestRunServe_StopsOnCancel(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()

	cfgPath, _ := writeConfig(t, fmt.Sprintf("server:\n  port: %d\nlogging:\n  level: error\nreaper:\n  enabled: true\n", port))
	cfg, err := config.Load(cfgPath)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runServe(ctx, cfg) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("runServe: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runServe did not return after cancel")
	}
}
