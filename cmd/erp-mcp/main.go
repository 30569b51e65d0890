package main

import (
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/buildhub/erp-mcp/internal/config"
	"github.com/buildhub/erp-mcp/internal/gateway"
	"github.com/buildhub/erp-mcp/internal/logger"
	"github.com/buildhub/erp-mcp/internal/session"
	"github.com/buildhub/erp-mcp/internal/tools"
)

func main() {
	if err := logger.InitFromEnv(); err != nil {
		panic(err)
	}
	defer logger.Close()

	logger.Infof("Starting ERP MCP server")

	cfg, err := config.Load(configPath())
	if err != nil {
		logger.Errorf("loading config: %v", err)
		panic(err)
	}
	if cfg.Backend.BaseURL == "" {
		logger.Errorf("no backend base URL configured (set backend.base_url or ERP_BASE_URL)")
		panic("erp-mcp: backend base URL required")
	}

	// Connect to session daemon; start it if needed, then connect.
	sock := cfg.Session.Socket
	logger.Infof("Attempting to connect to session daemon at %s", sock)
	kv, err := connectSession(sock)
	if err != nil {
		logger.Warnf("Failed to connect to session daemon: %v, attempting to start daemon", err)
		if startErr := startSessionDaemon(cfg); startErr != nil {
			logger.Errorf("Failed to start session daemon: %v", startErr)
		} else {
			logger.Infof("Session daemon started successfully")
		}
		// The daemon needs a moment to bind its socket.
		deadline := time.Now().Add(5 * time.Second)
		for kv == nil && time.Now().Before(deadline) {
			if probe, perr := connectSession(sock); perr == nil {
				kv, err = probe, nil
			} else {
				time.Sleep(200 * time.Millisecond)
			}
		}
		if kv == nil {
			logger.Errorf("Failed to connect to session daemon after startup attempt: %v", err)
			panic(err)
		}
	}
	logger.Infof("Successfully connected to session daemon")

	client, err := gateway.New(gateway.Options{
		BaseURL:             cfg.Backend.BaseURL,
		HTTPClient:          &http.Client{Timeout: cfg.Backend.Timeout.Std()},
		SkipCache:           cfg.Backend.SkipCache,
		CacheSize:           cfg.Cache.Size,
		CacheTTL:            cfg.Cache.TTL.Std(),
		Max401:              cfg.Logout.Max401,
		RecentSuccessWindow: cfg.Logout.RecentSuccessWindow.Std(),
		LogoutDebounce:      cfg.Logout.Debounce.Std(),
		OnLogout: func() {
			logger.Warnf("session invalidated, credentials cleared; log in again with erp-login")
		},
	}, session.New(kv))
	if err != nil {
		logger.Errorf("building gateway client: %v", err)
		panic(err)
	}
	logger.Infof("Initialized gateway client for %s", cfg.Backend.BaseURL)

	s := server.NewMCPServer(
		"ERP MCP",
		"0.1.0",
		server.WithRecovery(),
		server.WithToolCapabilities(false),
	)

	toolLogin := mcp.NewTool("erp-login",
		mcp.WithDescription(multiline(
			"Authenticates against the ERP backend and persists the session",
			"\nFunctionality:",
			"- Exchanges email/password for an access token",
			"- Stores token and user in the shared session daemon",
			"- Every other erp-* tool is authenticated once this succeeds",
			"\nUsage notes:",
			"- The session outlives this process; other clients on the same machine share it",
		)),
		mcp.WithString("email", mcp.Required(), mcp.Description("Account email")),
		mcp.WithString("password", mcp.Required(), mcp.Description("Account password")),
	)
	s.AddTool(toolLogin, tools.LoginHandler(client))
	logger.Infof("Registered erp-login tool")

	toolGet := mcp.NewTool("erp-get",
		mcp.WithDescription(multiline(
			"Reads from a named ERP endpoint and returns the JSON payload",
			"\nFunctionality:",
			"- Resolves a named route (e.g. all_purchase, projects, boq) and performs a GET",
			"- Requests go through the shared client pipeline: auth headers, view impersonation, tracing",
			"\nKnown endpoints: "+strings.Join(gateway.EndpointNames(), ", "),
			"\nUsage notes:",
			"- path_args is a comma-separated list filling path parameters (e.g. a project id)",
			"- params is a flat JSON object of query parameters",
		)),
		mcp.WithString("endpoint", mcp.Required(), mcp.Description("Named route to read")),
		mcp.WithString("path_args", mcp.Description("Comma-separated path parameters")),
		mcp.WithString("params", mcp.Description("Query parameters as a flat JSON object")),
	)
	s.AddTool(toolGet, tools.GetHandler(client))
	logger.Infof("Registered erp-get tool")

	toolMutate := mcp.NewTool("erp-mutate",
		mcp.WithDescription(multiline(
			"Writes to a named ERP endpoint (POST/PUT/PATCH/DELETE)",
			"\nFunctionality:",
			"- Resolves a named route and performs the requested mutation",
			"- Any successful mutation invalidates the client's response cache",
			"\nUsage notes:",
			"- method defaults to POST",
			"- body is a JSON document; omit it for DELETE",
		)),
		mcp.WithString("endpoint", mcp.Required(), mcp.Description("Named route to write")),
		mcp.WithString("method", mcp.Description("POST, PUT, PATCH or DELETE (default POST)")),
		mcp.WithString("path_args", mcp.Description("Comma-separated path parameters")),
		mcp.WithString("body", mcp.Description("JSON request body")),
	)
	s.AddTool(toolMutate, tools.MutateHandler(client))
	logger.Infof("Registered erp-mutate tool")

	toolNotifications := mcp.NewTool("erp-notifications",
		mcp.WithDescription(multiline(
			"Fetches the caller's notifications and renders them as markdown",
			"\nFunctionality:",
			"- Retrieves notifications from the backend",
			"- Converts HTML bodies to markdown and lists embedded links",
			"- Unread notifications sort first",
		)),
	)
	s.AddTool(toolNotifications, tools.NotificationsHandler(client))
	logger.Infof("Registered erp-notifications tool")

	logger.Infof("serving tools on stdio")
	if err := server.ServeStdio(s); err != nil {
		logger.Errorf("stdio server stopped: %v", err)
	}
}

// multiline assembles a tool description from its lines.
func multiline(lines ...string) string { return strings.Join(lines, "\n") }

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

// connectSession probes the daemon socket before handing out a client, so a
// dead daemon is noticed here rather than on the first tool call.
func connectSession(sock string) (session.KV, error) {
	conn, err := net.DialTimeout("unix", sock, 200*time.Millisecond)
	if err != nil {
		return nil, err
	}
	_ = conn.Close()
	return session.NewClient(sock), nil
}

// startSessionDaemon launches erp-sessiond, looking next to this executable
// first, then on PATH, then in the working directory. The socket and DB
// paths travel via the environment so the daemon agrees with this process
// wherever the config came from.
func startSessionDaemon(cfg *config.Config) error {
	var candidates []string
	if exe, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exe), "erp-sessiond"))
	}
	if path, err := exec.LookPath("erp-sessiond"); err == nil {
		candidates = append(candidates, path)
	}
	candidates = append(candidates, "./erp-sessiond")

	for _, bin := range candidates {
		if _, err := os.Stat(bin); err != nil {
			continue
		}
		cmd := exec.Command(bin)
		cmd.Env = append(os.Environ(),
			"ERP_MCP_SESSION_SOCK="+cfg.Session.Socket,
			"ERP_MCP_SESSION_DB="+cfg.Session.DBPath,
		)
		return cmd.Start()
	}
	return exec.ErrNotFound
}
