// Package server implements the MCP (Model Context Protocol) server for card
// identification.
//
// The server speaks JSON-RPC 2.0 over stdio so an MCP client can hand it a
// photograph and get back the matching reference card.
//
// # Protocol
//
// One request per line on stdin, one response per line on stdout.
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// Notifications (requests without an id) get no response.
//
// # Available Tools
//
// Identification:
//   - card_scan: Locate the card, fingerprint it and return the nearest reference
//   - card_detect: Locate and rectify the card without matching it
//   - card_fingerprint: Return the 1024-bit fingerprint of a photo or of its card
//
// Reference index:
//   - index_info: Size and depth of the loaded index
//   - index_reload: Rebuild the index from a reference store
//
// Image inputs take either "path" (read through a modification-aware cache)
// or "image_base64" (optionally a data URI), never both.
//
// # Error Handling
//
// Tool failures are JSON-RPC errors with code -32000 and the Go error string
// in data. Unknown methods return -32601 and malformed params -32602.
//
// # Usage
//
//	sc, _ := scanner.New(idx, cfg.ScannerOptions(), log)
//	srv := server.New(sc, server.Options{IndexPath: cfg.Index.Path}, log)
//	if err := srv.Run(); err != nil {
//	    log.Fatal("server stopped", "error", err)
//	}
package server
