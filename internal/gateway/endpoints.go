package gateway

import (
	"fmt"
	"sort"
	"strings"
)

// Named route templates for the ERP backend, grouped by feature area.
// Templates use %s/%d verbs filled by Endpoint.
var routes = map[string]string{
	// Auth
	"login":           "/auth/login",
	"register":        "/auth/register",
	"refresh":         "/auth/refresh",
	"forgot_password": "/auth/forgot-password",
	"reset_password":  "/auth/reset-password",
	"self":            "/users/self",

	// Purchase / procurement
	"all_purchase":       "/purchase/all_purchase",
	"purchase":           "/purchase",
	"purchase_by_id":     "/purchase/%s",
	"purchase_orders":    "/procurement/purchase-orders",
	"purchase_order":     "/procurement/purchase-orders/%s",
	"material_returns":   "/procurement/material-returns",
	"material_return":    "/procurement/material-returns/%s",
	"disposal_approvals": "/procurement/disposals/approvals",
	"vendors":            "/procurement/vendors",

	// Projects / tasks
	"projects":      "/projects",
	"project":       "/projects/%s",
	"project_tasks": "/projects/%s/tasks",
	"tasks":         "/tasks",
	"task":          "/tasks/%s",

	// BOQ
	"boqs":         "/boq",
	"boq":          "/boq/%s",
	"boq_items":    "/boq/%s/items",
	"boq_revision": "/boq/%s/revisions/%s",

	// Change requests
	"change_requests": "/change-requests",
	"change_request":  "/change-requests/%s",

	// Accounts / payroll
	"accounts":      "/accounts",
	"account":       "/accounts/%s",
	"payroll_runs":  "/payroll/runs",
	"payroll_slips": "/payroll/runs/%s/slips",

	// Inventory
	"inventory":      "/inventory/items",
	"inventory_item": "/inventory/items/%s",
	"stock_levels":   "/inventory/stock-levels",

	// Analytics / dashboards
	"analytics_summary":  "/analytics/summary",
	"analytics_spend":    "/analytics/spend",
	"dashboard_for_role": "/dashboards/%s",

	// Notifications
	"notifications":     "/notifications",
	"notification_read": "/notifications/%s/read",

	// Background/status
	"me":     "/users/me",
	"status": "/status",
}

// Endpoint resolves a named route template, filling path parameters.
// Unknown names return an error rather than a guessable path.
func Endpoint(name string, args ...any) (string, error) {
	tmpl, ok := routes[name]
	if !ok {
		return "", fmt.Errorf("gateway: unknown endpoint %q", name)
	}
	if n := strings.Count(tmpl, "%"); n != len(args) {
		return "", fmt.Errorf("gateway: endpoint %q wants %d path args, got %d", name, n, len(args))
	}
	if len(args) == 0 {
		return tmpl, nil
	}
	return fmt.Sprintf(tmpl, args...), nil
}

// EndpointNames returns the registered route names, for tool discovery.
func EndpointNames() []string {
	names := make([]string, 0, len(routes))
	for n := range routes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// authPaths never participate in the defensive-logout protocol: a 401 from
// any of these means bad input to the auth flow itself, not a dead session.
var authPaths = []string{
	"/auth/login",
	"/auth/register",
	"/auth/refresh",
	"/auth/forgot-password",
	"/auth/reset-password",
}

// backgroundPaths are soft probes that may 401 transiently (token rotation,
// warm-up) without implying the session is gone.
var backgroundPaths = []string{
	"/users/self",
	"/users/me",
	"/status",
}

func isAuthEndpoint(path string) bool {
	for _, p := range authPaths {
		if strings.Contains(path, p) {
			return true
		}
	}
	return false
}

func isBackgroundEndpoint(path string) bool {
	for _, p := range backgroundPaths {
		if strings.Contains(path, p) {
			return true
		}
	}
	return false
}
