package main

import (
	"github.com/bituncoin/btnledger/core"
	"github.com/bituncoin/btnledger/gateway"
	"github.com/bituncoin/btnledger/service/bridge"
	"github.com/bituncoin/btnledger/service/ledger"
	"github.com/google/wire"
	"github.com/spf13/viper"
)

var serviceSet = wire.NewSet(
	provideGateway,
	provideChainAdapter,
	provideBridgeConfig,
	ledger.New,
	bridge.New,
)

func provideGateway(v *viper.Viper) *gateway.Client {
	return gateway.New(gateway.Config{
		RateURL:   v.GetString("gateway.rate_url"),
		ChainURL:  v.GetString("gateway.chain_url"),
		SignerURL: v.GetString("gateway.signer_url"),
	})
}

func provideChainAdapter(client *gateway.Client) core.ChainAdapter {
	return client
}

func provideBridgeConfig(v *viper.Viper) bridge.Config {
	v.SetDefault("bridge.confirm_window", "1h")
	v.SetDefault("bridge.poll_backoff", "5s")

	return bridge.Config{
		ConfirmWindow: v.GetDuration("bridge.confirm_window"),
		PollBackoff:   v.GetDuration("bridge.poll_backoff"),
	}
}
