package ipfs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const ipfsScheme = "ipfs://"

// BatchMetadata is the display-ready record resolved from a token's metadata
// pointer. Missing or unreachable content degrades to defaults; the resolver
// never fails a projection pass.
type BatchMetadata struct {
	Name      string `json:"name"`
	Origin    string `json:"origin"`
	Process   string `json:"process"`
	Notes     string `json:"notes"`
	Harvested string `json:"harvested"`
	Roasted   string `json:"roasted"`
	Packed    string `json:"packed"`
	ImageURL  string `json:"imageUrl"`
}

type metadataPayload struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Image       json.RawMessage `json:"image"`
	Attributes  []attribute     `json:"attributes"`
}

type attribute struct {
	TraitType string          `json:"trait_type"`
	Value     json.RawMessage `json:"value"`
}

// Resolver fetches token metadata through an IPFS gateway.
type Resolver struct {
	gateway string
	client  *http.Client
}

// option is a function that configures the Resolver.
type option func(*Resolver)

// NewResolver creates a new Resolver reading the gateway base from config.
func NewResolver(opts ...option) *Resolver {
	r := &Resolver{
		gateway: strings.TrimSuffix(viper.GetString("ipfs.gateway_url"), "/"),
		client:  &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// WithGateway overrides the configured gateway base URL.
func WithGateway(gateway string) option {
	return func(r *Resolver) {
		r.gateway = strings.TrimSuffix(gateway, "/")
	}
}

// WithHTTPClient overrides the HTTP client used for gateway fetches.
func WithHTTPClient(client *http.Client) option {
	return func(r *Resolver) {
		r.client = client
	}
}

// GatewayURL rewrites an ipfs:// pointer to a gateway fetch URL. Other
// pointers pass through unchanged.
func (r *Resolver) GatewayURL(pointer string) string {
	if strings.HasPrefix(pointer, ipfsScheme) {
		return r.gateway + "/" + strings.TrimPrefix(pointer, ipfsScheme)
	}

	return pointer
}

// Resolve fetches and parses the metadata behind pointer. On any failure it
// returns a complete record with defaults: a token-id based name, empty
// attribute fields, and the fetch URL itself as the image.
func (r *Resolver) Resolve(ctx context.Context, pointer string, tokenID int64) BatchMetadata {
	meta := BatchMetadata{
		Name: fmt.Sprintf("Batch #%d", tokenID),
	}

	if pointer == "" {
		return meta
	}

	metadataURL := r.GatewayURL(pointer)
	meta.ImageURL = metadataURL

	payload, err := r.fetch(ctx, metadataURL)
	if err != nil {
		slog.Debug("metadata fetch failed, using defaults", "url", metadataURL, "error", err)

		return meta
	}

	if payload.Name != "" {
		meta.Name = payload.Name
	}
	meta.Notes = payload.Description
	meta.Origin = findAttr(payload.Attributes, "Origin")
	meta.Process = findAttr(payload.Attributes, "Process")
	meta.Harvested = findAttr(payload.Attributes, "Harvested")
	meta.Roasted = findAttr(payload.Attributes, "Roasted")
	meta.Packed = findAttr(payload.Attributes, "Packed")

	var image string
	if err := json.Unmarshal(payload.Image, &image); err == nil && image != "" {
		meta.ImageURL = r.GatewayURL(image)
	}

	return meta
}

func (r *Resolver) fetch(ctx context.Context, url string) (*metadataPayload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build metadata request: %w", err)
	}

	res, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch metadata: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metadata fetch returned status %d", res.StatusCode)
	}

	var payload metadataPayload
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}

	return &payload, nil
}

// findAttr looks an attribute up by trait_type. The match is case-exact and a
// missing or non-string value reads as the empty string.
func findAttr(attrs []attribute, traitType string) string {
	for _, attr := range attrs {
		if attr.TraitType != traitType {
			continue
		}

		var value string
		if err := json.Unmarshal(attr.Value, &value); err != nil {
			return ""
		}

		return value
	}

	return ""
}
