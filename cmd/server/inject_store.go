package main

import (
	"github.com/bituncoin/btnledger/store/account"
	"github.com/bituncoin/btnledger/store/bridge"
	"github.com/bituncoin/btnledger/store/db"
	"github.com/bituncoin/btnledger/store/ledger"
	"github.com/bituncoin/btnledger/store/property"
	"github.com/bituncoin/btnledger/store/stake"
	"github.com/bituncoin/btnledger/store/transaction"
	"github.com/google/wire"
	"github.com/spf13/viper"
	"github.com/tsenart/nap"
)

var storeSet = wire.NewSet(
	provideDB,
	account.New,
	ledger.New,
	transaction.New,
	stake.New,
	bridge.New,
	property.New,
)

func provideDB(v *viper.Viper) (*nap.DB, func(), error) {
	v.SetDefault("db.driver", "mysql")

	driver := v.GetString("db.driver")
	dsn := v.GetString("db.dsn")

	for _, replica := range v.GetStringSlice("db.replicas") {
		dsn += ";" + replica
	}

	conn, err := nap.Open(driver, dsn)
	if err != nil {
		return nil, nil, err
	}

	if err := db.Migrate(conn.Master()); err != nil {
		return nil, nil, err
	}

	return conn, func() { _ = conn.Close() }, nil
}
