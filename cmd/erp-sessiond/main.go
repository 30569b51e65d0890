// erp-sessiond holds the shared login session for every erp-mcp process on
// the machine. It serves the session KV protocol on a unix socket backed by
// a bbolt file, so credentials survive restarts and concurrent clients stay
// in agreement about who is logged in.
package main

import (
	"encoding/json"
	"net"
	"os"
	"path/filepath"

	"github.com/buildhub/erp-mcp/internal/config"
	"github.com/buildhub/erp-mcp/internal/session"
)

func main() {
	cfg, err := config.Load(configPath())
	if err != nil {
		panic(err)
	}
	sock := cfg.Session.Socket

	// A stale socket from a dead daemon would block the listen.
	_ = os.MkdirAll(filepath.Dir(sock), 0o755)
	_ = os.Remove(sock)

	l, err := net.Listen("unix", sock)
	if err != nil {
		panic(err)
	}
	defer l.Close()
	_ = os.Chmod(sock, 0o600)

	store, err := session.Open(cfg.Session.DBPath, session.Options{
		DefaultTTL: cfg.Session.DefaultTTL.Std(),
	})
	if err != nil {
		panic(err)
	}
	defer store.Close()

	for {
		conn, err := l.Accept()
		if err != nil {
			continue
		}
		go serve(conn, store)
	}
}

func serve(conn net.Conn, kv session.KV) {
	defer conn.Close()
	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)
	for {
		var req session.Request
		if err := dec.Decode(&req); err != nil {
			return
		}
		if err := enc.Encode(session.Handle(kv, req)); err != nil {
			return
		}
	}
}

func configPath() string {
	if p := os.Getenv("ERP_MCP_CONFIG"); p != "" {
		return p
	}
	home, _ := os.UserHomeDir()
	if home == "" {
		home = "."
	}
	return filepath.Join(home, ".config", "erp-mcp", "config.yaml")
}
