package payments

import (
	"context"
	"os"
	"time"

	"github.com/byronwade/Thorbis-sub040/config"
	"github.com/byronwade/Thorbis-sub040/models"
	"github.com/byronwade/Thorbis-sub040/utils"
)

// Select picks the processor that will handle a charge for companyId on
// channel. Policy: filter the company's enabled configs to those whose
// channel set includes channel; if several qualify, prefer the one marked
// primary for that channel; otherwise the lowest-priority config wins.
// Returns utils.ErrorNoProcessor when nothing is configured for the
// channel; the caller surfaces "no processor configured".
func Select(ctx context.Context, companyId string, amount int64, channel Channel) (Processor, error) {
	configs, err := models.ListProcessorConfigs(ctx, companyId)
	if err != nil {
		return nil, err
	}

	chosen, ok := pickConfig(configs, channel)
	if !ok {
		return nil, utils.ErrorNoProcessor
	}

	return New(chosen.ProcessorType, Config{
		CompanyId:     chosen.CompanyId,
		MerchantId:    chosen.MerchantId,
		ApiKey:        chosen.ApiKey,
		ApiSecret:     chosen.ApiSecret,
		WebhookSecret: chosen.WebhookSecret,
		BaseURL:       os.Getenv(baseURLEnv(chosen.ProcessorType)),
		Timeout:       processorTimeout(),
	})
}

// ForType builds the company's adapter of a specific type, for webhook
// signature verification, refunds, and reconciliation polling.
func ForType(ctx context.Context, companyId, processorType string) (Processor, error) {
	configs, err := models.ListProcessorConfigs(ctx, companyId)
	if err != nil {
		return nil, err
	}
	for _, cfg := range configs {
		if cfg.ProcessorType == processorType {
			return New(cfg.ProcessorType, Config{
				CompanyId:     cfg.CompanyId,
				MerchantId:    cfg.MerchantId,
				ApiKey:        cfg.ApiKey,
				ApiSecret:     cfg.ApiSecret,
				WebhookSecret: cfg.WebhookSecret,
				BaseURL:       os.Getenv(baseURLEnv(cfg.ProcessorType)),
				Timeout:       processorTimeout(),
			})
		}
	}
	return nil, ErrNotConfigured
}

// pickConfig applies the routing policy to an ordered config list
// (lowest priority first, as ListProcessorConfigs returns them).
func pickConfig(configs []models.CompanyProcessorConfig, channel Channel) (models.CompanyProcessorConfig, bool) {
	var candidates []models.CompanyProcessorConfig
	for _, cfg := range configs {
		if cfg.HasChannel(string(channel)) {
			candidates = append(candidates, cfg)
		}
	}
	if len(candidates) == 0 {
		return models.CompanyProcessorConfig{}, false
	}
	for _, cfg := range candidates {
		if cfg.IsPrimaryFor(string(channel)) {
			return cfg, true
		}
	}
	return candidates[0], true
}

func baseURLEnv(processorType string) string {
	switch processorType {
	case TypeFortisPay:
		return "FORTISPAY_BASE_URL"
	case TypeAchBridge:
		return "ACHBRIDGE_BASE_URL"
	case TypeNuvaPay:
		return "NUVAPAY_BASE_URL"
	}
	return ""
}

func processorTimeout() time.Duration {
	return time.Duration(config.IntFromEnv("PROCESSOR_TIMEOUT_SECONDS", 15)) * time.Second
}
