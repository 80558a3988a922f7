package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/site-survey/internal/pipeline"
	"github.com/ironsheep/site-survey/internal/store"
)

// writeASC writes a 41x41 ESRI ASCII elevation grid, flat except for a
// spike of height 5 at row 20, column 17 when spike is set.
func writeASC(t *testing.T, dir, name string, spike bool) string {
	t.Helper()
	var b strings.Builder
	fmt.Fprintf(&b, "ncols 41\nnrows 41\nxllcorner -54.5\nyllcorner %v\ncellsize 0.001\n", -12.5-41*0.001)
	for r := 0; r < 41; r++ {
		for c := 0; c < 41; c++ {
			v := 0
			if spike && r == 20 && c == 17 {
				v = 5
			}
			if c > 0 {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "%d", v)
		}
		b.WriteByte('\n')
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	cfg := pipeline.DefaultConfig()
	cfg.Text.CacheTTL = 0
	s := New(pipeline.New(cfg), opts...)
	s.now = func() time.Time { return time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC) }
	return s
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

// exchange feeds lines to Serve and decodes every response written.
func exchange(t *testing.T, s *Server, lines ...string) []MCPResponse {
	t.Helper()
	var out bytes.Buffer
	in := strings.NewReader(strings.Join(lines, "\n") + "\n")
	require.NoError(t, s.Serve(context.Background(), in, &out))

	var responses []MCPResponse
	dec := json.NewDecoder(&out)
	for dec.More() {
		var resp MCPResponse
		require.NoError(t, dec.Decode(&resp))
		responses = append(responses, resp)
	}
	return responses
}

// callTool runs one tools/call request and returns its response.
func callTool(t *testing.T, s *Server, name string, args any) MCPResponse {
	t.Helper()
	params, err := json.Marshal(map[string]any{"name": name, "arguments": args})
	require.NoError(t, err)
	req, err := json.Marshal(MCPRequest{JSONRPC: "2.0", ID: 1, Method: "tools/call", Params: params})
	require.NoError(t, err)

	responses := exchange(t, s, string(req))
	require.Len(t, responses, 1)
	return responses[0]
}

// decodeContent unmarshals the text content of a successful tool response.
func decodeContent(t *testing.T, resp MCPResponse, v any) {
	t.Helper()
	require.Nil(t, resp.Error, "unexpected error: %+v", resp.Error)
	result, ok := resp.Result.(map[string]any)
	require.True(t, ok)
	content, ok := result["content"].([]any)
	require.True(t, ok)
	require.Len(t, content, 1)
	item := content[0].(map[string]any)
	assert.Equal(t, "text", item["type"])
	require.NoError(t, json.Unmarshal([]byte(item["text"].(string)), v))
}

func TestServe_Initialize(t *testing.T) {
	s := newTestServer(t, WithVersion("1.2.3"))
	responses := exchange(t, s, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`)
	require.Len(t, responses, 1)

	result := responses[0].Result.(map[string]any)
	assert.Equal(t, ProtocolVersion, result["protocolVersion"])
	info := result["serverInfo"].(map[string]any)
	assert.Equal(t, "site-survey", info["name"])
	assert.Equal(t, "1.2.3", info["version"])
}

func TestServe_NotificationsAndPing(t *testing.T) {
	s := newTestServer(t)
	responses := exchange(t, s,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		``,
		`{"jsonrpc":"2.0","id":"p","method":"ping"}`,
	)
	require.Len(t, responses, 1, "notifications and blank lines get no response")
	assert.Equal(t, "p", responses[0].ID)
	assert.Nil(t, responses[0].Error)
}

func TestServe_Errors(t *testing.T) {
	s := newTestServer(t)
	responses := exchange(t, s,
		`{"jsonrpc":"2.0","id":1,"method":"resources/list"}`,
		`{not json`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":"bad"}`,
	)
	require.Len(t, responses, 3)
	assert.Equal(t, codeMethodNotFound, responses[0].Error.Code)
	assert.Equal(t, codeParseError, responses[1].Error.Code)
	assert.Equal(t, codeInvalidParams, responses[2].Error.Code)
}

func TestServe_CanceledContext(t *testing.T) {
	s := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	err := s.Serve(ctx, strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`+"\n"), &out)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, out.Len())
}

func TestToolsList(t *testing.T) {
	names := func(s *Server) []string {
		var out []string
		for _, tool := range s.toolDefinitions() {
			out = append(out, tool.Name)
		}
		return out
	}

	plain := names(newTestServer(t))
	assert.Equal(t, []string{toolRasterInfo, toolDetectElevation, toolDetectImagery, toolRun, toolStatus}, plain)

	withStore := names(newTestServer(t, WithStore(newTestStore(t))))
	assert.Contains(t, withStore, toolListRuns)
	assert.Contains(t, withStore, toolRunSites)
	assert.NotContains(t, withStore, toolOCRMap)

	for _, tool := range GetToolDefinitions() {
		assert.NotEmpty(t, tool.Description, tool.Name)
		assert.Equal(t, "object", tool.InputSchema["type"], tool.Name)
	}
}

func TestToolsList_Response(t *testing.T) {
	s := newTestServer(t)
	responses := exchange(t, s, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	require.Len(t, responses, 1)
	tools := responses[0].Result.(map[string]any)["tools"].([]any)
	assert.Len(t, tools, len(GetToolDefinitions()))
}
