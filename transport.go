// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package fhe

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/rpc"
)

var _ NetworkTransport = (*rpcTransport)(nil)

// rpcTransport backs a URL network descriptor with a go-ethereum rpc client.
type rpcTransport struct {
	client *rpc.Client
}

// DialTransport connects a NetworkTransport to a JSON-RPC endpoint
func DialTransport(ctx context.Context, url string) (NetworkTransport, error) {
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Message: fmt.Sprintf("failed to dial %s", url), Err: err}
	}
	return &rpcTransport{client: client}, nil
}

// Request performs one JSON-RPC call
func (t *rpcTransport) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	var result json.RawMessage
	if err := t.client.CallContext(ctx, &result, method, params...); err != nil {
		return nil, &Error{Kind: KindNetwork, Message: fmt.Sprintf("rpc call %s failed", method), Err: err}
	}
	return result, nil
}

// resolveNetwork decides what network an engine instance is created against.
// An explicitly configured descriptor wins; otherwise a mock-chain entry for
// the configured chain id serves as the network. No network is a ConfigError
// so clients constructed before a network is known fail cleanly at instance
// creation, not at construction.
func (c *Client) resolveNetwork() (EngineConfig, error) {
	cfg := EngineConfig{ChainID: c.cfg.ChainID}
	switch {
	case c.cfg.Network.transport != nil:
		cfg.Transport = c.cfg.Network.transport
	case c.cfg.Network.url != "":
		cfg.NetworkURL = c.cfg.Network.url
	default:
		url, ok := c.cfg.MockChains[c.cfg.ChainID]
		if !ok {
			return EngineConfig{}, errConfig("no network configured for chain %d", c.cfg.ChainID)
		}
		cfg.NetworkURL = url
	}
	return cfg, nil
}
