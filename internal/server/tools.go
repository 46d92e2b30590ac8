package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// imageProperties are accepted by every tool that takes a photograph.
func imageProperties() map[string]interface{} {
	return map[string]interface{}{
		"path": map[string]interface{}{
			"type":        "string",
			"description": "Absolute path to the image file. Either path or image_base64 is required.",
		},
		"image_base64": map[string]interface{}{
			"type":        "string",
			"description": "Base64 encoded image, optionally as a data URI",
		},
	}
}

func withProperties(base map[string]interface{}, extra map[string]interface{}) map[string]interface{} {
	for k, v := range extra {
		base[k] = v
	}
	return base
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Identification
		{
			Name:        "card_scan",
			Description: "Identify the trading card in a photograph. Locates the card, flattens it, fingerprints it and returns the closest reference card with its Hamming distance (0-1024, lower is closer).",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": withProperties(imageProperties(), map[string]interface{}{
					"top_k": map[string]interface{}{
						"type":        "integer",
						"description": "Number of closest reference entries to list. Default 1",
						"default":     1,
						"minimum":     1,
					},
				}),
			},
		},
		{
			Name:        "card_detect",
			Description: "Locate the card in a photograph without identifying it. Returns the bounding quadrilateral, its corner rounding score and the size of the flattened card, optionally with the flattened card as base64 PNG.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": withProperties(imageProperties(), map[string]interface{}{
					"include_image": map[string]interface{}{
						"type":        "boolean",
						"description": "Return the flattened card as base64 PNG. Default false",
						"default":     false,
					},
				}),
			},
		},
		{
			Name:        "card_fingerprint",
			Description: "Compute the 1024-bit perceptual fingerprint of a card as 256 hex digits. Photographs are located and flattened first; set detect to false for images that are already cropped card scans.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": withProperties(imageProperties(), map[string]interface{}{
					"detect": map[string]interface{}{
						"type":        "boolean",
						"description": "Locate the card before hashing. Default true",
						"default":     true,
					},
				}),
			},
		},

		// Reference index
		{
			Name:        "index_info",
			Description: "Report the reference store path and the size and depth of the loaded search tree.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
		{
			Name:        "index_reload",
			Description: "Reload the reference store and atomically replace the search tree. Scans already running finish against the old tree.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Reference store to load (.json or .cbor). Defaults to the configured store",
					},
				},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
