package main

import (
	"github.com/bituncoin/btnledger/core"
	"github.com/bituncoin/btnledger/gateway"
	"github.com/bituncoin/btnledger/service/bridge"
	"github.com/bituncoin/btnledger/service/exchange"
	"github.com/bituncoin/btnledger/service/ledger"
	"github.com/bituncoin/btnledger/service/processor"
	"github.com/bituncoin/btnledger/service/registry"
	"github.com/bituncoin/btnledger/service/security"
	"github.com/bituncoin/btnledger/service/staking"
	"github.com/google/wire"
	"github.com/pandodao/generic"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

var serviceSet = wire.NewSet(
	provideGateway,
	provideRateProvider,
	provideChainAdapter,
	provideSigner,
	provideSecurityConfig,
	provideStakingConfig,
	provideExchangeConfig,
	provideBridgeConfig,
	provideProcessorConfig,
	ledger.New,
	registry.New,
	security.New,
	staking.New,
	exchange.New,
	bridge.New,
	processor.New,
)

func provideGateway(v *viper.Viper) *gateway.Client {
	return gateway.New(gateway.Config{
		RateURL:   v.GetString("gateway.rate_url"),
		ChainURL:  v.GetString("gateway.chain_url"),
		SignerURL: v.GetString("gateway.signer_url"),
	})
}

// provideRateProvider prefers a static table from config when one is
// given, so a dev setup runs without a live feed.
func provideRateProvider(v *viper.Viper, client *gateway.Client) core.RateProvider {
	if fixed := v.GetStringMapString("exchange.fixed_rates"); len(fixed) > 0 {
		table := make(map[string]decimal.Decimal, len(fixed))
		for pair, rate := range fixed {
			table[pair] = generic.Try(decimal.NewFromString(rate))
		}
		return gateway.NewFixedRates(table)
	}

	return client
}

func provideChainAdapter(client *gateway.Client) core.ChainAdapter {
	return client
}

func provideSigner(client *gateway.Client) core.Signer {
	return client
}

func provideSecurityConfig(v *viper.Viper) security.Config {
	v.SetDefault("security.fraud_multiplier", 3)
	v.SetDefault("security.window", "720h")

	return security.Config{
		FraudMultiplier: v.GetInt64("security.fraud_multiplier"),
		Window:          v.GetDuration("security.window"),
	}
}

func provideStakingConfig(v *viper.Viper) staking.Config {
	v.SetDefault("staking.min_stake", "1")
	v.SetDefault("staking.lock_period", "720h")

	return staking.Config{
		MinStake:   generic.Try(decimal.NewFromString(v.GetString("staking.min_stake"))),
		LockPeriod: v.GetDuration("staking.lock_period"),
	}
}

func provideExchangeConfig(v *viper.Viper) exchange.Config {
	v.SetDefault("exchange.fee_basis_points", 10)
	v.SetDefault("exchange.quote_ttl", "10s")
	v.SetDefault("exchange.slippage_basis_points", 50)

	return exchange.Config{
		FeeBasisPoints:      v.GetInt64("exchange.fee_basis_points"),
		QuoteTTL:            v.GetDuration("exchange.quote_ttl"),
		SlippageBasisPoints: v.GetInt64("exchange.slippage_basis_points"),
	}
}

func provideBridgeConfig(v *viper.Viper) bridge.Config {
	v.SetDefault("bridge.confirm_window", "1h")
	v.SetDefault("bridge.poll_backoff", "5s")

	return bridge.Config{
		ConfirmWindow: v.GetDuration("bridge.confirm_window"),
		PollBackoff:   v.GetDuration("bridge.poll_backoff"),
	}
}

func provideProcessorConfig(v *viper.Viper) processor.Config {
	v.SetDefault("staking.apy_basis_points", 500)

	return processor.Config{
		StakeAPYBasisPoints: v.GetInt64("staking.apy_basis_points"),
	}
}
