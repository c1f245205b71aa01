package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"clickup-mcp/clickup"
	"clickup-mcp/n8n"
	"clickup-mcp/transport"
)

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

type Config struct {
	APIKey string
	TeamID string
	Port   string

	// MCPServerURL enables the client side: a remote MCP server reachable
	// over SSE (streaming) and plain HTTP.
	MCPServerURL string

	// Transport selects the initially active client transport: "sse",
	// "http", or "n8n".
	Transport string

	// N8NWebhookURL enables the N8N façade transport.
	N8NWebhookURL string
	N8NPollURL    string

	// StorePath is the sqlite file for webhook registrations.
	StorePath string
}

func LoadConfig() (Config, error) {
	cfg := Config{
		APIKey:        os.Getenv("CLICKUP_API_KEY"),
		TeamID:        os.Getenv("CLICKUP_TEAM_ID"),
		Port:          os.Getenv("PORT"),
		MCPServerURL:  strings.TrimRight(os.Getenv("MCP_SERVER_URL"), "/"),
		Transport:     os.Getenv("TRANSPORT"),
		N8NWebhookURL: os.Getenv("N8N_WEBHOOK_URL"),
		N8NPollURL:    os.Getenv("N8N_POLL_URL"),
		StorePath:     os.Getenv("REGISTRATIONS_DB"),
	}
	if cfg.APIKey == "" {
		return cfg, fmt.Errorf("CLICKUP_API_KEY is required")
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.Transport == "" {
		cfg.Transport = "sse"
	}
	if cfg.StorePath == "" {
		cfg.StorePath = "registrations.db"
	}
	return cfg, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Client assembly
// ---------------------------------------------------------------------------

// buildClient wires the unified client over every transport the
// configuration enables. Returns nil when no client side is configured.
func buildClient(cfg Config) *UnifiedClient {
	var ts []transport.Transport

	if cfg.MCPServerURL != "" {
		stream := transport.NewStreamTransport(transport.StreamConfig{
			StreamURL:  cfg.MCPServerURL + "/stream",
			RequestURL: cfg.MCPServerURL + "/rpc",
			HealthURL:  cfg.MCPServerURL + "/health",
		})
		plain := transport.NewHTTPTransport(transport.HTTPConfig{
			RequestURL: cfg.MCPServerURL + "/rpc",
			HealthURL:  cfg.MCPServerURL + "/health",
		})
		ts = append(ts, stream, plain)
	}
	if cfg.N8NWebhookURL != "" {
		ts = append(ts, n8n.NewFacade(n8n.FacadeConfig{
			WebhookURL: cfg.N8NWebhookURL,
			PollURL:    cfg.N8NPollURL,
		}))
	}
	if len(ts) == 0 {
		return nil
	}

	// Re-order so the configured transport comes first.
	want := parseKind(cfg.Transport)
	for i, t := range ts {
		if t.Kind() == want {
			ts[0], ts[i] = ts[i], ts[0]
			break
		}
	}
	return NewUnifiedClient(ts...)
}

func parseKind(s string) transport.Kind {
	switch strings.ToLower(s) {
	case "http":
		return transport.KindHTTP
	case "n8n":
		return transport.KindN8N
	default:
		return transport.KindSSE
	}
}

// ---------------------------------------------------------------------------
// Client HTTP surface
// ---------------------------------------------------------------------------

// mountClientRoutes exposes the unified client over HTTP: call proxying
// and transport switching.
func mountClientRoutes(mux *http.ServeMux, client *UnifiedClient) {
	mux.HandleFunc("/client/call", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var body struct {
			Operation string          `json:"operation"`
			Params    json.RawMessage `json:"params,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body: " + err.Error()})
			return
		}
		if body.Operation == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "operation is required"})
			return
		}
		var params any
		if len(body.Params) > 0 {
			params = body.Params
		}
		res := client.Call(r.Context(), body.Operation, params)
		writeJSON(w, http.StatusOK, res)
	})

	mux.HandleFunc("/client/transport", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, map[string]string{"active": client.Active().String()})
		case http.MethodPut:
			var body struct {
				Kind string `json:"kind"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body: " + err.Error()})
				return
			}
			if err := client.Use(r.Context(), parseKind(body.Kind)); err != nil {
				writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"active": client.Active().String()})
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
}

// ---------------------------------------------------------------------------
// Webhook registration surface
// ---------------------------------------------------------------------------

func mountRegistrationRoutes(mux *http.ServeMux, store *n8n.Store) {
	mux.HandleFunc("/n8n/registrations", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			regs, err := store.List(r.Context())
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
				return
			}
			if regs == nil {
				regs = []*n8n.Registration{}
			}
			writeJSON(w, http.StatusOK, regs)
		case http.MethodPost:
			var reg n8n.Registration
			if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body: " + err.Error()})
				return
			}
			if reg.WorkflowID == "" || reg.WebhookURL == "" {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "workflowId and webhookUrl are required"})
				return
			}
			if err := store.Save(r.Context(), &reg); err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
				return
			}
			writeJSON(w, http.StatusCreated, reg)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/n8n/registrations/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/n8n/registrations/")
		if id == "" {
			http.NotFound(w, r)
			return
		}
		switch r.Method {
		case http.MethodGet:
			reg, err := store.Get(r.Context(), id)
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
				return
			}
			if reg == nil {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "registration not found"})
				return
			}
			writeJSON(w, http.StatusOK, reg)
		case http.MethodDelete:
			existed, err := store.Delete(r.Context(), id)
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
				return
			}
			if !existed {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "registration not found"})
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
}

// ---------------------------------------------------------------------------
// main
// ---------------------------------------------------------------------------

func main() {
	log.SetFlags(log.Ltime | log.Lmsgprefix)
	log.SetPrefix("[clickup-mcp] ")

	cfg, err := LoadConfig()
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}

	api := clickup.New(clickup.APIEndpoint, cfg.APIKey)
	t := NewClickUpMCP(api, cfg.TeamID)

	mcpServer := server.NewMCPServer(
		"clickup-mcp",
		"1.0.0",
		server.WithToolCapabilities(false),
	)
	mcpServer.AddTools(defineTools(t)...)

	streamServer := server.NewStreamableHTTPServer(mcpServer,
		server.WithEndpointPath("/mcp"),
		server.WithStateLess(true),
	)

	store, err := n8n.OpenStore(cfg.StorePath)
	if err != nil {
		log.Fatalf("Failed to open registration store: %v", err)
	}
	defer store.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" && r.Method == http.MethodGet {
			handleLandingPage(w, r)
			return
		}
		http.NotFound(w, r)
	})
	mux.Handle("/mcp", streamServer)
	mux.HandleFunc("/functions/mcp", t.ServerlessHandler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mountRegistrationRoutes(mux, store)

	client := buildClient(cfg)
	if client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		if err := client.Connect(ctx); err != nil {
			log.Printf("Client transport %s not connected: %v", client.Active(), err)
		} else {
			log.Printf("Client connected via %s", client.Active())
		}
		cancel()
		defer client.Close()
		mountClientRoutes(mux, client)
	}
	if cfg.N8NWebhookURL != "" {
		// The façade that serves /n8n/callback must be the same instance the
		// client sends through, so pull it back out of the client.
		if f, ok := clientFacade(client); ok {
			mux.Handle("/n8n/callback", f.CallbackHandler())
		}
	}

	addr := ":" + cfg.Port
	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	log.Printf("ClickUp MCP server listening on %s", addr)
	log.Printf("  Landing page: http://localhost%s/", addr)
	log.Printf("  MCP endpoint: http://localhost%s/mcp", addr)
	if err := httpServer.ListenAndServe(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func clientFacade(c *UnifiedClient) (*n8n.Facade, bool) {
	if c == nil {
		return nil, false
	}
	t, ok := c.transports[transport.KindN8N]
	if !ok {
		return nil, false
	}
	f, ok := t.(*n8n.Facade)
	return f, ok
}
