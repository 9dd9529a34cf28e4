// Package mcp implements MCP (Model Context Protocol) client support
// for connecting to external MCP servers and calling their tools.
//
// MCP uses JSON-RPC 2.0 over two transports: stdio (subprocess) and
// streamable HTTP. The client discovers tools via tools/list and invokes
// them via tools/call.
//
// This implementation covers the client/host side only; it does not
// act as an MCP server.
package mcp
