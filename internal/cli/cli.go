// Package cli implements the wa-cli command, a thin HTTP client for the
// bridge's control surface. Every command prints the server's JSON response.
package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const usage = `Usage: wa-cli <command> [options]

Commands:
  status                          Connection status
  send <number> <message>         Send message to number
  send-group <groupId> <message>  Send to group
  chats [--limit N]               List chats
  contacts [--search query]       List/search contacts
  groups [--search query]         List/search groups
  messages <chatId> [--limit N]   Get messages from chat
  search <query> [--chat id] [--limit N]  Search messages
  events [--peek]                 Get event queue (peek = don't flush)
  monitor list                    List monitors
  monitor add <contactId>         Add monitor
  monitor remove <contactId>      Remove monitor

Environment:
  WA_BRIDGE_URL    Base URL (default: http://127.0.0.1:3100)
  WA_BRIDGE_TOKEN  API token (optional)
`

// Client calls the bridge's HTTP API.
type Client struct {
	baseURL string
	token   string
	httpc   *http.Client
}

// NewClient builds a client for the given base URL. An empty token sends no
// Authorization header.
func NewClient(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = "http://127.0.0.1:3100"
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpc:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) request(method, path string, body any) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("invalid JSON response: %s", truncate(string(data), 200))
	}
	if resp.StatusCode >= 400 {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &e) == nil && e.Error != "" {
			return nil, fmt.Errorf("%s", e.Error)
		}
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return json.RawMessage(data), nil
}

// Run executes one command and writes the result to out. A returned error
// has already been reported; callers only map it to the exit code.
func Run(args []string, baseURL, token string, out io.Writer) error {
	c := NewClient(baseURL, token)

	print := func(data json.RawMessage) {
		var buf bytes.Buffer
		if err := json.Indent(&buf, data, "", "  "); err != nil {
			buf.Write(data)
		}
		fmt.Fprintln(out, buf.String())
	}

	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		fmt.Fprint(out, usage)
		return nil
	}

	flag := func(name string) string {
		for i, a := range args {
			if a == name && i+1 < len(args) {
				return args[i+1]
			}
		}
		return ""
	}
	has := func(name string) bool {
		for _, a := range args {
			if a == name {
				return true
			}
		}
		return false
	}

	run := func() (json.RawMessage, error) {
		switch args[0] {
		case "status":
			return c.request(http.MethodGet, "/status", nil)

		case "send":
			if len(args) < 3 {
				return nil, fmt.Errorf("Usage: wa-cli send <number> <message>")
			}
			return c.request(http.MethodPost, "/send", map[string]string{
				"to": args[1], "message": strings.Join(args[2:], " "),
			})

		case "send-group":
			if len(args) < 3 {
				return nil, fmt.Errorf("Usage: wa-cli send-group <groupId> <message>")
			}
			return c.request(http.MethodPost, "/send-group", map[string]string{
				"groupId": args[1], "message": strings.Join(args[2:], " "),
			})

		case "chats":
			path := "/chats"
			if limit := flag("--limit"); limit != "" {
				path += "?limit=" + url.QueryEscape(limit)
			}
			return c.request(http.MethodGet, path, nil)

		case "contacts":
			if q := flag("--search"); q != "" {
				return c.request(http.MethodGet, "/contacts/search?q="+url.QueryEscape(q), nil)
			}
			return c.request(http.MethodGet, "/contacts", nil)

		case "groups":
			if q := flag("--search"); q != "" {
				return c.request(http.MethodGet, "/groups/search?q="+url.QueryEscape(q), nil)
			}
			return c.request(http.MethodGet, "/groups", nil)

		case "messages":
			if len(args) < 2 {
				return nil, fmt.Errorf("Usage: wa-cli messages <chatId> [--limit N]")
			}
			limit := flag("--limit")
			if limit == "" {
				limit = "20"
			}
			return c.request(http.MethodGet, "/chats/"+url.PathEscape(args[1])+"/messages?limit="+url.QueryEscape(limit), nil)

		case "search":
			if len(args) < 2 {
				return nil, fmt.Errorf("Usage: wa-cli search <query> [--chat chatId] [--limit N]")
			}
			path := "/search?q=" + url.QueryEscape(args[1])
			if chat := flag("--chat"); chat != "" {
				path += "&chatId=" + url.QueryEscape(chat)
			}
			if limit := flag("--limit"); limit != "" {
				path += "&limit=" + url.QueryEscape(limit)
			}
			return c.request(http.MethodGet, path, nil)

		case "events":
			if has("--peek") {
				return c.request(http.MethodGet, "/events/peek", nil)
			}
			return c.request(http.MethodGet, "/events", nil)

		case "monitor":
			sub := ""
			if len(args) > 1 {
				sub = args[1]
			}
			switch sub {
			case "add":
				if len(args) < 3 {
					return nil, fmt.Errorf("Usage: wa-cli monitor add <contactId>")
				}
				return c.request(http.MethodPost, "/monitor", map[string]string{"contactId": args[2]})
			case "remove":
				if len(args) < 3 {
					return nil, fmt.Errorf("Usage: wa-cli monitor remove <contactId>")
				}
				return c.request(http.MethodDelete, "/monitor/"+url.PathEscape(args[2]), nil)
			default:
				return c.request(http.MethodGet, "/monitor", nil)
			}

		default:
			return nil, fmt.Errorf("Unknown command: %s. Run wa-cli help for usage.", args[0])
		}
	}

	data, err := run()
	if err != nil {
		raw, _ := json.Marshal(map[string]string{"error": err.Error()})
		fmt.Fprintln(out, string(raw))
		return err
	}
	print(data)
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
