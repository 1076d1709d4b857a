package plugin

import (
	"fmt"
	"net/rpc"

	goplugin "github.com/hashicorp/go-plugin"

	"maestro/aitools"
)

// Handshake is the handshake config shared by the host and every plugin binary
var Handshake = goplugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "MAESTRO_PLUGIN",
	MagicCookieValue: "8d2f1c7a4b9e",
}

// PluginMap is the map of plugins we can dispense
var PluginMap = map[string]goplugin.Plugin{
	"tool": &ToolProviderPlugin{},
}

// ToolInfo contains metadata about a tool a plugin provides. Clusters names
// the tool clusters the tool registers under on the host side.
type ToolInfo struct {
	Name        string
	Description string
	Clusters    []string
	Schema      aitools.Schema
}

// ToolProvider is the interface plugin binaries implement
type ToolProvider interface {
	// Configure passes settings from HCL config to the plugin
	Configure(settings map[string]string) error

	// Call invokes a tool with the given JSON payload
	Call(toolName string, payload string) (string, error)

	// GetToolInfo returns metadata about a specific tool
	GetToolInfo(toolName string) (*ToolInfo, error)

	// ListTools returns info for all tools this plugin provides
	ListTools() ([]*ToolInfo, error)
}

// ToolProviderPlugin is the go-plugin wrapper around ToolProvider
type ToolProviderPlugin struct {
	Impl ToolProvider
}

func (p *ToolProviderPlugin) Server(*goplugin.MuxBroker) (interface{}, error) {
	return &providerServer{impl: p.Impl}, nil
}

func (p *ToolProviderPlugin) Client(b *goplugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &providerClient{client: c}, nil
}

// Serve runs the plugin side of the protocol. Plugin binaries call this from
// main with their ToolProvider implementation.
func Serve(impl ToolProvider) {
	goplugin.Serve(&goplugin.ServeConfig{
		HandshakeConfig: Handshake,
		Plugins: map[string]goplugin.Plugin{
			"tool": &ToolProviderPlugin{Impl: impl},
		},
	})
}

// =============================================================================
// RPC wire types
// =============================================================================

type configureArgs struct {
	Settings map[string]string
}

type callArgs struct {
	ToolName string
	Payload  string
}

type callReply struct {
	Result string
}

type toolInfoArgs struct {
	ToolName string
}

type toolInfoReply struct {
	Info *ToolInfo
}

type listToolsReply struct {
	Infos []*ToolInfo
}

// =============================================================================
// Client side (runs in the host process)
// =============================================================================

type providerClient struct {
	client *rpc.Client
}

func (c *providerClient) Configure(settings map[string]string) error {
	var reply struct{}
	return c.client.Call("Plugin.Configure", &configureArgs{Settings: settings}, &reply)
}

func (c *providerClient) Call(toolName string, payload string) (string, error) {
	var reply callReply
	if err := c.client.Call("Plugin.Call", &callArgs{ToolName: toolName, Payload: payload}, &reply); err != nil {
		return "", err
	}
	return reply.Result, nil
}

func (c *providerClient) GetToolInfo(toolName string) (*ToolInfo, error) {
	var reply toolInfoReply
	if err := c.client.Call("Plugin.GetToolInfo", &toolInfoArgs{ToolName: toolName}, &reply); err != nil {
		return nil, err
	}
	if reply.Info == nil {
		return nil, fmt.Errorf("tool '%s' not found", toolName)
	}
	return reply.Info, nil
}

func (c *providerClient) ListTools() ([]*ToolInfo, error) {
	var reply listToolsReply
	if err := c.client.Call("Plugin.ListTools", &struct{}{}, &reply); err != nil {
		return nil, err
	}
	return reply.Infos, nil
}

// =============================================================================
// Server side (runs in the plugin process)
// =============================================================================

type providerServer struct {
	impl ToolProvider
}

func (s *providerServer) Configure(args *configureArgs, reply *struct{}) error {
	return s.impl.Configure(args.Settings)
}

func (s *providerServer) Call(args *callArgs, reply *callReply) error {
	result, err := s.impl.Call(args.ToolName, args.Payload)
	if err != nil {
		return err
	}
	reply.Result = result
	return nil
}

func (s *providerServer) GetToolInfo(args *toolInfoArgs, reply *toolInfoReply) error {
	info, err := s.impl.GetToolInfo(args.ToolName)
	if err != nil {
		return err
	}
	reply.Info = info
	return nil
}

func (s *providerServer) ListTools(args *struct{}, reply *listToolsReply) error {
	infos, err := s.impl.ListTools()
	if err != nil {
		return err
	}
	reply.Infos = infos
	return nil
}
