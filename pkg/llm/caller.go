package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/osintlab/trendwatch/pkg/config"
	"github.com/osintlab/trendwatch/pkg/metrics"
	"github.com/osintlab/trendwatch/pkg/models"
)

// ErrNoPricing means the operator pricing table does not cover the routed
// provider:model. Calls fail closed rather than spend unpriced money.
var ErrNoPricing = errors.New("no pricing configured for provider model")

// BudgetGuard gates and records spend per tier. Satisfied by
// services.UsageService.
type BudgetGuard interface {
	Reserve(ctx context.Context, tier models.Tier) error
	Record(ctx context.Context, tier models.Tier, inputTokens, outputTokens int64, costUSD float64) error
}

// Caller routes requests by tier through budget, pricing, and failover
// policy. One budget reservation covers the whole attempt chain: a failover
// is the same spend slot, not a second one.
type Caller struct {
	clients map[string]Client
	routing config.RoutingConfig
	pricing config.PricingMap
	budget  BudgetGuard
	logger  *slog.Logger
}

// NewCaller builds a Caller from instantiated provider clients.
func NewCaller(clients map[string]Client, routing config.RoutingConfig, pricing config.PricingMap, budget BudgetGuard) *Caller {
	return &Caller{
		clients: clients,
		routing: routing,
		pricing: pricing,
		budget:  budget,
		logger:  slog.With("component", "llm_caller"),
	}
}

// Call reserves budget, then runs the request on the tier's primary provider,
// failing over once if a failover is routed and priced. The reservation comes
// first: the atomic budget gate is the hard spend limit, and the pricing
// precheck only decides whether the reserved slot gets used.
func (c *Caller) Call(ctx context.Context, tier models.Tier, req Request) (*Response, error) {
	if err := c.budget.Reserve(ctx, tier); err != nil {
		return nil, err
	}

	route := c.route(tier)
	primary, err := c.pricedClient(route.Primary)
	if err != nil {
		return nil, fmt.Errorf("tier %s primary: %w", tier, err)
	}

	resp, primaryErr := primary.Complete(ctx, req)
	if primaryErr == nil {
		c.account(ctx, tier, primary, resp)
		return resp, nil
	}

	if route.Failover == "" {
		return nil, fmt.Errorf("tier %s: %w", tier, primaryErr)
	}
	failover, err := c.pricedClient(route.Failover)
	if err != nil {
		return nil, fmt.Errorf("tier %s failover unusable after primary failure (%v): %w",
			tier, primaryErr, err)
	}

	metrics.LLMFailovers.WithLabelValues(string(tier)).Inc()
	c.logger.Warn("Failing over to secondary provider",
		"tier", tier,
		"primary", primary.ProviderName(),
		"failover", failover.ProviderName(),
		"error", primaryErr)

	resp, failoverErr := failover.Complete(ctx, req)
	if failoverErr != nil {
		return nil, fmt.Errorf("tier %s: primary failed (%v), failover failed: %w",
			tier, primaryErr, failoverErr)
	}
	c.account(ctx, tier, failover, resp)
	return resp, nil
}

func (c *Caller) route(tier models.Tier) config.TierRouting {
	if tier == models.Tier2 {
		return c.routing.Tier2
	}
	return c.routing.Tier1
}

// pricedClient resolves a provider name and enforces the fail-closed pricing
// precheck before any money moves.
func (c *Caller) pricedClient(name string) (Client, error) {
	client, ok := c.clients[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", config.ErrProviderNotFound, name)
	}
	if !c.pricing.Covers(client.PricingKey()) {
		return nil, fmt.Errorf("%w: %s", ErrNoPricing, client.PricingKey())
	}
	return client, nil
}

func (c *Caller) account(ctx context.Context, tier models.Tier, client Client, resp *Response) {
	metrics.LLMCalls.WithLabelValues(string(tier), client.ProviderName()).Inc()

	cost, ok := c.pricing.Cost(client.PricingKey(), resp.InputTokens, resp.OutputTokens)
	if !ok {
		// Unreachable after the precheck, but never lose the token counts.
		c.logger.Error("Pricing disappeared between precheck and accounting",
			"pricing_key", client.PricingKey())
	}
	if err := c.budget.Record(ctx, tier, resp.InputTokens, resp.OutputTokens, cost); err != nil {
		c.logger.Warn("Failed to record LLM usage", "tier", tier, "error", err)
	}
}
