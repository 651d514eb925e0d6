// Package discovery talks to $402 content servers: it reads an address's
// current terms and fetches paid content against a payment proof.
package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/b0ase/path402/pkg/acquisition"
	"github.com/b0ase/path402/pkg/domain"
	"github.com/b0ase/path402/pkg/protocol"
	"github.com/b0ase/path402/pkg/util/resiliency"
)

// Header names of the $402 HTTP binding.
const (
	HeaderPrice        = "X-$402-Price"
	HeaderVersion      = "X-$402-Version"
	HeaderPaymentProof = "X-$402-Payment-Proof"
)

// SupportedVersions is the protocol range this engine understands.
const SupportedVersions = ">= 1.0.0, < 2.0.0"

const (
	maxTermsBytes   = 1 << 20
	maxContentBytes = 32 << 20
)

// Observer is told the duration and outcome of every discovery call.
type Observer func(address string, d time.Duration, err error)

// Client implements acquisition.Discoverer and acquisition.ContentFetcher
// over HTTP.
type Client struct {
	http     *resiliency.EnhancedClient
	scheme   string
	schema   *jsonschema.Schema
	versions *semver.Constraints
	observe  Observer
	logger   *slog.Logger
}

var (
	_ acquisition.Discoverer     = (*Client)(nil)
	_ acquisition.ContentFetcher = (*Client)(nil)
)

// Option configures a Client.
type Option func(*Client)

// WithScheme overrides "https"; tests point it at plain http servers.
func WithScheme(scheme string) Option { return func(c *Client) { c.scheme = scheme } }

func WithHTTPClient(h *resiliency.EnhancedClient) Option { return func(c *Client) { c.http = h } }

func WithObserver(o Observer) Option { return func(c *Client) { c.observe = o } }

// NewClient compiles the terms schema and version constraint.
func NewClient(opts ...Option) (*Client, error) {
	schema, err := compileSchema()
	if err != nil {
		return nil, err
	}
	versions, err := semver.NewConstraint(SupportedVersions)
	if err != nil {
		return nil, fmt.Errorf("discovery: version constraint: %w", err)
	}
	c := &Client{
		http:     resiliency.NewEnhancedClient(resiliency.WithTimeout(10 * time.Second)),
		scheme:   "https",
		schema:   schema,
		versions: versions,
		logger:   slog.Default().With("component", "discovery"),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Discover returns the address's current terms. Every failure is classified
// as DiscoveryUnavailable.
func (c *Client) Discover(ctx context.Context, address string) (terms *protocol.Terms, err error) {
	const op = "discovery.Discover"
	addr := protocol.NormalizeAddress(address)
	if addr == "" {
		return nil, domain.Errorf(domain.KindInvalidParameter, op, "address is required")
	}
	start := time.Now()
	defer func() {
		if c.observe != nil {
			c.observe(addr, time.Since(start), err)
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, protocol.URLFor(c.scheme, addr), nil)
	if err != nil {
		return nil, domain.Wrap(domain.KindDiscoveryUnavailable, op, err).WithAddress(addr)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, domain.Wrap(domain.KindDiscoveryUnavailable, op, err).WithAddress(addr)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusPaymentRequired && resp.StatusCode != http.StatusOK {
		return nil, domain.Errorf(domain.KindDiscoveryUnavailable, op, "unexpected status %d", resp.StatusCode).WithAddress(addr)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTermsBytes))
	if err != nil {
		return nil, domain.Wrap(domain.KindDiscoveryUnavailable, op, err).WithAddress(addr)
	}
	terms, err = c.decodeTerms(body, resp.Header, addr)
	if err != nil {
		return nil, domain.Wrap(domain.KindDiscoveryUnavailable, op, err).WithAddress(addr)
	}
	c.logger.DebugContext(ctx, "terms discovered", "address", terms.Address, "price", terms.CurrentPrice, "supply", terms.CurrentSupply)
	return terms, nil
}

// wireTerms is the JSON body of a discovery response.
type wireTerms struct {
	Protocol string `json:"protocol"`
	protocol.Terms
}

func (c *Client) decodeTerms(body []byte, h http.Header, requested string) (*protocol.Terms, error) {
	doc := map[string]any{}
	if len(bytes.TrimSpace(body)) > 0 {
		v, err := decodeJSON(body)
		if err != nil {
			return nil, fmt.Errorf("decode terms: %w", err)
		}
		obj, ok := v.(map[string]any)
		if !ok {
			return nil, errors.New("terms body is not a JSON object")
		}
		doc = obj
	}
	if err := fillFromHeaders(doc, h); err != nil {
		return nil, err
	}
	if err := c.schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("terms schema: %w", err)
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var w wireTerms
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("decode terms: %w", err)
	}
	if w.Protocol != protocol.Name {
		return nil, fmt.Errorf("unsupported protocol %q", w.Protocol)
	}
	if err := c.checkVersion(w.ProtocolVersion); err != nil {
		return nil, err
	}

	t := w.Terms
	if t.ProtocolVersion == "" {
		t.ProtocolVersion = protocol.Version
	}
	if t.Address == "" {
		t.Address = requested
	}
	t.Address = protocol.NormalizeAddress(t.Address)
	if t.Children == nil {
		t.Children = []string{}
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// fillFromHeaders supplies fields the body left out. Headers never override
// the body.
func fillFromHeaders(doc map[string]any, h http.Header) error {
	if _, ok := doc["protocol"]; !ok && (h.Get(HeaderPrice) != "" || h.Get(HeaderVersion) != "") {
		doc["protocol"] = protocol.Name
	}
	if v := h.Get(HeaderPrice); v != "" {
		if _, ok := doc["currentPrice"]; !ok {
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				return fmt.Errorf("bad %s header %q", HeaderPrice, v)
			}
			doc["currentPrice"] = json.Number(v)
		}
	}
	if v := h.Get(HeaderVersion); v != "" {
		if _, ok := doc["version"]; !ok {
			doc["version"] = v
		}
	}
	return nil
}

// decodeJSON keeps numbers as json.Number, the form the schema validator
// expects, and rejects trailing data after the first value.
func decodeJSON(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("trailing data after terms object")
	}
	return v, nil
}

// checkVersion accepts an absent version as the current one.
func (c *Client) checkVersion(v string) error {
	if v == "" {
		return nil
	}
	sv, err := semver.NewVersion(v)
	if err != nil {
		return fmt.Errorf("invalid protocol version %q: %w", v, err)
	}
	if !c.versions.Check(sv) {
		return fmt.Errorf("protocol version %s outside %s", v, SupportedVersions)
	}
	return nil
}

// FetchContent presents proof to the address's server and returns the
// content.
func (c *Client) FetchContent(ctx context.Context, address, proof string) (*acquisition.Content, error) {
	const op = "discovery.FetchContent"
	addr := protocol.NormalizeAddress(address)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, protocol.URLFor(c.scheme, addr), nil)
	if err != nil {
		return nil, domain.Wrap(domain.KindContentDeliveryFailed, op, err).WithAddress(addr)
	}
	req.Header.Set(HeaderPaymentProof, proof)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, domain.Wrap(domain.KindContentDeliveryFailed, op, err).WithAddress(addr)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusPaymentRequired:
		return nil, domain.Errorf(domain.KindContentDeliveryFailed, op, "payment proof rejected").WithAddress(addr)
	default:
		return nil, domain.Errorf(domain.KindContentDeliveryFailed, op, "unexpected status %d", resp.StatusCode).WithAddress(addr)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxContentBytes))
	if err != nil {
		return nil, domain.Wrap(domain.KindContentDeliveryFailed, op, err).WithAddress(addr)
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = http.DetectContentType(body)
	}
	return &acquisition.Content{Body: body, ContentType: ct}, nil
}
