// Package scrape talks to the remote scraping gateway: an MCP service
// reached over SSE that fetches pages through its unblocking proxy network
// and returns them rendered as markdown.
package scrape

import (
	"context"
	"fmt"
	"strings"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

const toolScrapeMarkdown = "scrape_as_markdown"

// Client opens one short-lived MCP session per call. The gateway treats
// sessions as stateless, and per-call sessions keep a hung stream from
// wedging later fetches.
type Client struct {
	url     string
	version string
}

// NewClient builds a gateway client. The token authenticates the SSE stream
// and travels as a query parameter, which is the scheme the gateway expects.
func NewClient(gatewayURL, token, version string) *Client {
	url := gatewayURL
	if token != "" {
		sep := "?"
		if strings.Contains(url, "?") {
			sep = "&"
		}
		url += sep + "token=" + token
	}
	return &Client{url: url, version: version}
}

// Markdown fetches one page through the gateway and returns its markdown
// rendering. Gateway-reported tool errors come back as plain errors; the
// caller classifies them.
func (c *Client) Markdown(ctx context.Context, pageURL string) (string, error) {
	cl, err := mcpclient.NewSSEMCPClient(c.url)
	if err != nil {
		return "", fmt.Errorf("creating gateway client: %w", err)
	}
	defer cl.Close()

	if err := cl.Start(ctx); err != nil {
		return "", fmt.Errorf("starting gateway session: %w", err)
	}
	if err := c.initialize(ctx, cl); err != nil {
		return "", err
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = toolScrapeMarkdown
	req.Params.Arguments = map[string]any{"url": pageURL}

	res, err := cl.CallTool(ctx, req)
	if err != nil {
		return "", fmt.Errorf("calling %s: %w", toolScrapeMarkdown, err)
	}
	text := joinText(res)
	if res.IsError {
		return "", fmt.Errorf("gateway rejected %s: %s", pageURL, text)
	}
	return text, nil
}

// Tools lists the gateway's advertised tool names. Connectivity checks use
// it as a cheap end-to-end probe that spends no scraping quota.
func (c *Client) Tools(ctx context.Context) ([]string, error) {
	cl, err := mcpclient.NewSSEMCPClient(c.url)
	if err != nil {
		return nil, fmt.Errorf("creating gateway client: %w", err)
	}
	defer cl.Close()

	if err := cl.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting gateway session: %w", err)
	}
	if err := c.initialize(ctx, cl); err != nil {
		return nil, err
	}

	res, err := cl.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("listing gateway tools: %w", err)
	}
	names := make([]string, 0, len(res.Tools))
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	return names, nil
}

func (c *Client) initialize(ctx context.Context, cl *mcpclient.Client) error {
	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "jobdeck", Version: c.version}
	if _, err := cl.Initialize(ctx, initReq); err != nil {
		return fmt.Errorf("initializing gateway session: %w", err)
	}
	return nil
}

func joinText(res *mcp.CallToolResult) string {
	var parts []string
	for _, content := range res.Content {
		if tc, ok := content.(mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}
