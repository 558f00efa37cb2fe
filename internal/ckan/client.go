// Package ckan downloads products from CKAN open-data portals by paging
// through each product's datastore resources.
package ckan

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/mauv0809/energy-feeds/internal/fetch"
	"github.com/mauv0809/energy-feeds/internal/ingest"
)

const (
	apiPath = "/api/3/action/"

	// DefaultPageSize is the datastore_search limit per request.
	DefaultPageSize = 10000

	// DefaultProduct is the hourly spot-price product of the CCEE portal.
	DefaultProduct = "pld_horario_submercado"
)

var hosts = map[string]string{
	"ccee":  "https://dadosabertos.ccee.org.br",
	"ons":   "https://dados.ons.org.br",
	"aneel": "https://dadosabertos.aneel.gov.br",
}

// HostFor returns the portal host of a supported institution.
func HostFor(institution string) (string, error) {
	h, ok := hosts[strings.ToLower(strings.TrimSpace(institution))]
	if !ok {
		return "", fmt.Errorf("unsupported institution %q", institution)
	}
	return h, nil
}

// ErrUnsuccessful is returned when the portal answers with success=false.
var ErrUnsuccessful = errors.New("ckan: unsuccessful response")

// Resource is one downloadable member of a product.
type Resource struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Format       string `json:"format"`
	LastModified string `json:"last_modified"`
}

// Client talks to one portal host.
type Client struct {
	getter   fetch.Getter
	host     string
	pageSize int
	logger   *slog.Logger
}

// New creates a client for host. A non-positive pageSize selects DefaultPageSize.
func New(getter fetch.Getter, host string, pageSize int, logger *slog.Logger) *Client {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		getter:   getter,
		host:     strings.TrimRight(host, "/"),
		pageSize: pageSize,
		logger:   logger.With("component", "ckan", "host", host),
	}
}

// envelope is the common CKAN action response.
type envelope struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// ListProducts returns the names of every product published by the portal.
func (c *Client) ListProducts(ctx context.Context) ([]string, error) {
	var names []string
	if err := c.call(ctx, "package_list", nil, &names); err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return names, nil
}

// Resources returns the resources of a product.
func (c *Client) Resources(ctx context.Context, product string) ([]Resource, error) {
	var pkg struct {
		Resources []Resource `json:"resources"`
	}
	q := url.Values{"id": {product}}
	if err := c.call(ctx, "package_show", q, &pkg); err != nil {
		return nil, fmt.Errorf("resolving product %s: %w", product, err)
	}

	out := make([]Resource, 0, len(pkg.Resources))
	for _, r := range pkg.Resources {
		if r.ID != "" {
			out = append(out, r)
		}
	}
	return out, nil
}

// DownloadProduct pages through every resource of product and returns all
// records in one table. A failing page ends that resource only; rows gathered
// before it are kept. A failed metadata lookup is returned as an error, and a
// product without resources or rows yields an empty table.
func (c *Client) DownloadProduct(ctx context.Context, product string) (*ingest.Table, error) {
	resources, err := c.Resources(ctx, product)
	if err != nil {
		return nil, err
	}

	all := ingest.NewTable()
	if len(resources) == 0 {
		c.logger.Warn("product has no resources", slog.String("product", product))
		return all, nil
	}

	for _, r := range resources {
		t, err := c.downloadResource(ctx, r.ID)
		if ctx.Err() != nil {
			return all, ctx.Err()
		}
		if err != nil {
			c.logger.Warn("resource download stopped early",
				slog.String("product", product),
				slog.String("resource_id", r.ID),
				slog.Int("rows_kept", t.Len()),
				slog.Any("error", err))
		}
		all.Concat(t)
	}

	c.logger.Info("product downloaded",
		slog.String("product", product),
		slog.Int("resources", len(resources)),
		slog.Int("rows", all.Len()))
	return all, nil
}

// downloadResource fetches successive offset pages until one is empty. The
// returned table holds whatever was gathered, even alongside an error.
func (c *Client) downloadResource(ctx context.Context, id string) (*ingest.Table, error) {
	t := ingest.NewTable()
	for offset := 0; ; offset += c.pageSize {
		var page struct {
			Records []map[string]any `json:"records"`
		}
		q := url.Values{
			"resource_id": {id},
			"limit":       {strconv.Itoa(c.pageSize)},
			"offset":      {strconv.Itoa(offset)},
		}
		if err := c.call(ctx, "datastore_search", q, &page); err != nil {
			return t, fmt.Errorf("page at offset %d: %w", offset, err)
		}
		if len(page.Records) == 0 {
			return t, nil
		}

		t.AppendRecords(page.Records)
		c.logger.Debug("page fetched",
			slog.String("resource_id", id),
			slog.Int("offset", offset),
			slog.Int("records", len(page.Records)))
	}
}

func (c *Client) call(ctx context.Context, action string, q url.Values, out any) error {
	u := c.host + apiPath + action
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	body, err := c.getter.Get(ctx, u)
	if err != nil {
		return err
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("parsing %s response: %w", action, err)
	}
	if !env.Success {
		if env.Error != nil && env.Error.Message != "" {
			return fmt.Errorf("%w: %s", ErrUnsuccessful, env.Error.Message)
		}
		return ErrUnsuccessful
	}
	if len(env.Result) == 0 || string(env.Result) == "null" {
		return nil
	}

	// Numbers stay json.Number so codes like "202401" keep their digits.
	dec := json.NewDecoder(bytes.NewReader(env.Result))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decoding %s result: %w", action, err)
	}
	return nil
}
