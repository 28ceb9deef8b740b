package ratelimit

import (
	"fmt"
	"time"

	"VerificarSmsPlatform/pkg/config"
)

// OptionsFromConfig строит настройки лимитера из секции rate_limiting.
// Политики из конфигурации переопределяют политики по умолчанию.
func OptionsFromConfig(cfg config.RateLimitConfig) (Options, error) {
	opts := DefaultOptions()

	for name, override := range cfg.Policies {
		class, err := ParseEndpointClass(name)
		if err != nil {
			return Options{}, fmt.Errorf("rate_limiting.policies: %w", err)
		}
		policy := opts.Policies[class]
		policy.Limit = override.Limit
		policy.Period = time.Duration(override.PeriodSeconds) * time.Second
		if override.Description != "" {
			policy.Description = override.Description
		}
		opts.Policies[class] = policy
	}

	if cfg.DefaultMultiplier > 0 {
		opts.Multipliers.Default = cfg.DefaultMultiplier
	}
	for role, m := range cfg.Roles {
		opts.Multipliers.Overrides[ParseRole(role)] = m
	}

	whitelist, err := NewAccessList(cfg.Whitelist)
	if err != nil {
		return Options{}, fmt.Errorf("rate_limiting.whitelist: %w", err)
	}
	blacklist, err := NewAccessList(cfg.Blacklist)
	if err != nil {
		return Options{}, fmt.Errorf("rate_limiting.blacklist: %w", err)
	}
	opts.Whitelist = whitelist
	opts.Blacklist = blacklist

	opts.FailOpen = cfg.FailOpen
	opts.StoreTimeout = config.Duration(cfg.StoreTimeout, 2*time.Second)
	return opts, nil
}

// ProxyFromConfig строит политику доверия к прокси
func ProxyFromConfig(cfg config.ProxyConfig) ProxyPolicy {
	return ProxyPolicy{
		TrustForwardedHeaders: cfg.TrustForwardedHeaders,
		TrustedHops:           cfg.TrustedHops,
	}
}
