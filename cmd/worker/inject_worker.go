package main

import (
	"github.com/bituncoin/btnledger/worker/bridgepoller"
	"github.com/bituncoin/btnledger/worker/janitor"
	"github.com/google/wire"
	"github.com/spf13/viper"
)

var workerSet = wire.NewSet(
	bridgepoller.New,
	provideJanitorConfig,
	janitor.New,
)

func provideJanitorConfig(v *viper.Viper) janitor.Config {
	v.SetDefault("janitor.pending_ttl", "15m")
	v.SetDefault("janitor.interval", "1m")

	return janitor.Config{
		PendingTTL: v.GetDuration("janitor.pending_ttl"),
		Interval:   v.GetDuration("janitor.interval"),
	}
}
