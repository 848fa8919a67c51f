// internal/common/database/elasticsearch.go
package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"

	"lender-match-workers/internal/common/config"
)

// ElasticsearchClient holds the client for the lender product index.
type ElasticsearchClient struct {
	Client *elasticsearch.Client
}

func NewElasticsearch(cfg config.ElasticsearchConfig) (*ElasticsearchClient, error) {
	addresses := esAddresses(cfg)
	if len(addresses) == 0 {
		return nil, errors.New("elasticsearch address not configured")
	}

	esCfg := elasticsearch.Config{Addresses: addresses}
	if cfg.Username != "" {
		esCfg.Username = cfg.Username
		esCfg.Password = cfg.Password
	}

	es, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	return &ElasticsearchClient{Client: es}, nil
}

// esAddresses prefers the address list over the single URL. Bare host:port
// entries get a scheme that follows SSLEnabled.
func esAddresses(cfg config.ElasticsearchConfig) []string {
	raw := cfg.Addresses
	if len(raw) == 0 && cfg.URL != "" {
		raw = []string{cfg.URL}
	}

	scheme := "http://"
	if cfg.SSLEnabled {
		scheme = "https://"
	}
	out := make([]string, 0, len(raw))
	for _, addr := range raw {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		if !strings.Contains(addr, "://") {
			addr = scheme + addr
		}
		out = append(out, addr)
	}
	return out
}

func (c *ElasticsearchClient) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	res, err := c.Client.Ping(c.Client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch ping failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping error: %s", res.Status())
	}
	return nil
}
