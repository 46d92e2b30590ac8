package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"

	"github.com/ironsheep/card-scanner/internal/index"
	"github.com/ironsheep/card-scanner/internal/phash"
	"github.com/ironsheep/card-scanner/internal/photo"
	"github.com/ironsheep/card-scanner/internal/quad"
	"github.com/ironsheep/card-scanner/internal/refstore"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "card_scan", "index_reload").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
func (s *Server) handleToolsCall(req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(params.Name, params.Arguments)
	if err != nil {
		s.log.Debug("tool failed", "tool", params.Name, "error", err.Error())
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
func (s *Server) executeTool(name string, args json.RawMessage) (interface{}, error) {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	switch name {
	case "card_scan":
		return s.handleCardScan(args)
	case "card_detect":
		return s.handleCardDetect(args)
	case "card_fingerprint":
		return s.handleCardFingerprint(args)
	case "index_info":
		return s.handleIndexInfo(args)
	case "index_reload":
		return s.handleIndexReload(args)
	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// On marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

type imageArgs struct {
	Path        string `json:"path"`
	ImageBase64 string `json:"image_base64"`
}

// load returns the photograph named by a, from the cache for paths.
func (s *Server) load(a imageArgs) (image.Image, error) {
	switch {
	case a.Path != "" && a.ImageBase64 != "":
		return nil, errors.New("give either path or image_base64, not both")
	case a.Path != "":
		return s.cache.Load(a.Path)
	case a.ImageBase64 != "":
		return photo.DecodeBase64(a.ImageBase64)
	}
	return nil, errors.New("path or image_base64 is required")
}

// === Identification Handlers ===

type cardScanArgs struct {
	imageArgs
	TopK int `json:"top_k"`
}

// CardScanResult is returned by card_scan.
type CardScanResult struct {
	CardID      string            `json:"card_id"`
	Distance    int               `json:"distance"`
	Ambiguous   bool              `json:"ambiguous"`
	Fingerprint phash.Fingerprint `json:"fingerprint"`
	Quad        quad.BoundingQuad `json:"quad"`
	CropFactor  float64           `json:"crop_factor"`
	Width       int               `json:"width"`
	Height      int               `json:"height"`
	Attempts    int               `json:"attempts"`
	Nearest     []index.Match     `json:"nearest,omitempty"`
}

func (s *Server) handleCardScan(args json.RawMessage) (interface{}, error) {
	var a cardScanArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.TopK < 1 {
		a.TopK = 1
	}
	img, err := s.load(a.imageArgs)
	if err != nil {
		return nil, err
	}

	res, err := s.scanner.Scan(img)
	if err != nil {
		return nil, err
	}
	b := res.Candidate.Image.Bounds()
	out := &CardScanResult{
		CardID:      res.CardID,
		Distance:    res.Distance,
		Ambiguous:   res.Ambiguous,
		Fingerprint: res.Fingerprint,
		Quad:        res.Candidate.Quad,
		CropFactor:  res.Candidate.CropFactor,
		Width:       b.Dx(),
		Height:      b.Dy(),
		Attempts:    res.Attempts,
	}
	if a.TopK > 1 {
		out.Nearest, err = res.KNearest(a.TopK)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

type cardDetectArgs struct {
	imageArgs
	IncludeImage bool `json:"include_image"`
}

// CardDetectResult is returned by card_detect.
type CardDetectResult struct {
	Quad        quad.BoundingQuad `json:"quad"`
	CropFactor  float64           `json:"crop_factor"`
	Width       int               `json:"width"`
	Height      int               `json:"height"`
	ImageBase64 string            `json:"image_base64,omitempty"`
	MimeType    string            `json:"mime_type,omitempty"`
}

func (s *Server) handleCardDetect(args json.RawMessage) (interface{}, error) {
	var a cardDetectArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	img, err := s.load(a.imageArgs)
	if err != nil {
		return nil, err
	}

	cand, err := s.scanner.Detect(img)
	if err != nil {
		return nil, err
	}
	b := cand.Image.Bounds()
	out := &CardDetectResult{
		Quad:       cand.Quad,
		CropFactor: cand.CropFactor,
		Width:      b.Dx(),
		Height:     b.Dy(),
	}
	if a.IncludeImage {
		out.ImageBase64, err = photo.EncodeBase64PNG(cand.Image)
		if err != nil {
			return nil, err
		}
		out.MimeType = "image/png"
	}
	return out, nil
}

type cardFingerprintArgs struct {
	imageArgs
	Detect *bool `json:"detect"`
}

// CardFingerprintResult is returned by card_fingerprint.
type CardFingerprintResult struct {
	Fingerprint phash.Fingerprint `json:"fingerprint"`
	Detected    bool              `json:"detected"`
}

func (s *Server) handleCardFingerprint(args json.RawMessage) (interface{}, error) {
	var a cardFingerprintArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	detect := a.Detect == nil || *a.Detect
	img, err := s.load(a.imageArgs)
	if err != nil {
		return nil, err
	}

	if !detect {
		return &CardFingerprintResult{Fingerprint: phash.Hash(img)}, nil
	}
	fp, err := s.scanner.Fingerprint(img)
	if err != nil {
		return nil, err
	}
	return &CardFingerprintResult{Fingerprint: fp, Detected: true}, nil
}

// === Reference Index Handlers ===

// IndexInfoResult is returned by index_info and index_reload.
type IndexInfoResult struct {
	Path string `json:"path"`
	index.Stats
}

func (s *Server) handleIndexInfo(args json.RawMessage) (interface{}, error) {
	s.mu.Lock()
	path := s.indexPath
	s.mu.Unlock()
	return &IndexInfoResult{Path: path, Stats: s.scanner.Index().Load().Stats()}, nil
}

type indexReloadArgs struct {
	Path string `json:"path"`
}

func (s *Server) handleIndexReload(args json.RawMessage) (interface{}, error) {
	var a indexReloadArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	path := a.Path
	if path == "" {
		path = s.indexPath
	}
	if path == "" {
		return nil, errors.New("no reference store configured")
	}

	stats, err := refstore.Reload(s.scanner.Index(), path, s.opts.BucketSize)
	if err != nil {
		return nil, err
	}
	s.indexPath = path
	s.log.Info("reloaded reference index", "path", path, "entries", stats.Entries, "depth", stats.Depth)
	return &IndexInfoResult{Path: path, Stats: stats}, nil
}
