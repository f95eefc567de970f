// Package aws implements the provider adapter contract against the AWS Cost
// Explorer API.
package aws

import (
	"context"
	"fmt"
	"strconv"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer/types"

	"github.com/jscharber/costlens/pkg/costdata"
	"github.com/jscharber/costlens/pkg/logger"
	"github.com/jscharber/costlens/pkg/providers"
)

// CostExplorerAPI is the subset of the Cost Explorer client the adapter
// uses. The SDK client satisfies it; tests substitute a fake.
type CostExplorerAPI interface {
	GetCostAndUsage(ctx context.Context, params *costexplorer.GetCostAndUsageInput, optFns ...func(*costexplorer.Options)) (*costexplorer.GetCostAndUsageOutput, error)
}

// Provider collects billing data from AWS Cost Explorer.
type Provider struct {
	client        CostExplorerAPI
	includeRegion bool
	logger        *logger.Logger
}

// Option configures a Provider.
type Option func(*Provider)

// WithRegionBreakdown enables the second grouped query that fills the region
// cost breakdown. It doubles the Cost Explorer call count per collection.
func WithRegionBreakdown() Option {
	return func(p *Provider) { p.includeRegion = true }
}

// WithLogger sets the structured logger used for per-call diagnostics.
func WithLogger(log *logger.Logger) Option {
	return func(p *Provider) { p.logger = log }
}

// New creates a Cost Explorer adapter using the default AWS credential chain,
// optionally scoped to a shared config profile.
func New(ctx context.Context, profile string, opts ...Option) (*Provider, error) {
	var cfg awssdk.Config
	var err error
	if profile != "" {
		cfg, err = config.LoadDefaultConfig(ctx, config.WithSharedConfigProfile(profile))
	} else {
		cfg, err = config.LoadDefaultConfig(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewWithClient(costexplorer.NewFromConfig(cfg), opts...), nil
}

// NewWithClient creates an adapter around an existing Cost Explorer client.
func NewWithClient(client CostExplorerAPI, opts ...Option) *Provider {
	p := &Provider{
		client: client,
		logger: logger.GetDefault().WithField("provider", "aws"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider identifier.
func (p *Provider) Name() costdata.CloudProvider {
	return costdata.ProviderAWS
}

// CollectCostData fetches daily unblended costs grouped by service and linked
// account for the date range. Cost Explorer treats the end date as exclusive,
// so one day is added to the inclusive range bound.
func (p *Provider) CollectCostData(ctx context.Context, dateRange costdata.DateRange) (*providers.CollectionResult, error) {
	end, err := time.Parse(costdata.DateFormat, dateRange.End)
	if err != nil {
		return nil, fmt.Errorf("invalid end date %q: %w", dateRange.End, err)
	}
	exclusiveEnd := end.AddDate(0, 0, 1).Format(costdata.DateFormat)

	p.logger.WithContext(ctx).Debug("fetching cost and usage from %s to %s", dateRange.Start, exclusiveEnd)

	serviceOut, err := p.client.GetCostAndUsage(ctx, p.buildInput(dateRange.Start, exclusiveEnd, "SERVICE"))
	if err != nil {
		return nil, fmt.Errorf("cost explorer SERVICE query failed: %w", err)
	}

	payload := &providers.AWSPayload{
		Date:           dateRange.End,
		Currency:       "USD",
		CollectedAt:    time.Now().UTC(),
		FreshnessHours: 24, // Cost Explorer data lags close to a day
	}

	for _, period := range serviceOut.ResultsByTime {
		for _, group := range period.Groups {
			if len(group.Keys) == 0 {
				continue
			}
			amount, currency := metricAmount(group.Metrics)
			if currency != "" {
				payload.Currency = currency
			}
			payload.TotalUnblended += amount
			payload.ServiceCosts = append(payload.ServiceCosts, providers.AWSServiceCost{
				ServiceName: group.Keys[0],
				Amount:      amount,
			})
		}
	}

	accountOut, err := p.client.GetCostAndUsage(ctx, p.buildInput(dateRange.Start, exclusiveEnd, "LINKED_ACCOUNT"))
	if err != nil {
		// Service breakdown alone is still usable downstream.
		p.logger.WithContext(ctx).Warn("LINKED_ACCOUNT query failed, returning partial payload: %v", err)
		return &providers.CollectionResult{
			Status:  providers.StatusPartial,
			Payload: &providers.CostPayload{Provider: costdata.ProviderAWS, AWS: payload},
			Error:   err.Error(),
		}, nil
	}
	for _, period := range accountOut.ResultsByTime {
		for _, group := range period.Groups {
			if len(group.Keys) == 0 {
				continue
			}
			amount, _ := metricAmount(group.Metrics)
			payload.AccountCosts = append(payload.AccountCosts, providers.AWSAccountCost{
				AccountID: group.Keys[0],
				Amount:    amount,
			})
		}
	}

	if p.includeRegion {
		regionOut, err := p.client.GetCostAndUsage(ctx, p.buildInput(dateRange.Start, exclusiveEnd, "REGION"))
		if err != nil {
			p.logger.WithContext(ctx).Warn("REGION query failed, omitting region breakdown: %v", err)
		} else {
			payload.RegionCosts = make(map[string]float64)
			for _, period := range regionOut.ResultsByTime {
				for _, group := range period.Groups {
					if len(group.Keys) == 0 {
						continue
					}
					amount, _ := metricAmount(group.Metrics)
					payload.RegionCosts[group.Keys[0]] += amount
				}
			}
		}
	}

	return &providers.CollectionResult{
		Status:  providers.StatusSuccess,
		Payload: &providers.CostPayload{Provider: costdata.ProviderAWS, AWS: payload},
	}, nil
}

func (p *Provider) buildInput(start, end, groupKey string) *costexplorer.GetCostAndUsageInput {
	return &costexplorer.GetCostAndUsageInput{
		TimePeriod: &types.DateInterval{
			Start: awssdk.String(start),
			End:   awssdk.String(end),
		},
		Granularity: types.GranularityDaily,
		Metrics:     []string{"UnblendedCost"},
		GroupBy: []types.GroupDefinition{
			{
				Type: types.GroupDefinitionTypeDimension,
				Key:  awssdk.String(groupKey),
			},
		},
	}
}

func metricAmount(metrics map[string]types.MetricValue) (float64, string) {
	metric, ok := metrics["UnblendedCost"]
	if !ok || metric.Amount == nil {
		return 0, ""
	}
	amount, _ := strconv.ParseFloat(*metric.Amount, 64)
	currency := ""
	if metric.Unit != nil {
		currency = *metric.Unit
	}
	return amount, currency
}
