package cmd

import (
	"github.com/spf13/cobra"
)

var walletOpt struct {
	enable2FA       bool
	enableBiometric bool
	biometricData   string
}

// walletCmd creates a wallet, or shows balances when an address is given
var walletCmd = &cobra.Command{
	Use:   "wallet [address]",
	Short: "create a wallet or show its balances",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			return showBalance(cmd, args[0])
		}

		return createWallet(cmd)
	},
}

func init() {
	rootCmd.AddCommand(walletCmd)

	walletCmd.Flags().BoolVar(&walletOpt.enable2FA, "2fa", false, "enroll a 2fa factor")
	walletCmd.Flags().BoolVar(&walletOpt.enableBiometric, "biometric", false, "enroll a biometric factor")
	walletCmd.Flags().StringVar(&walletOpt.biometricData, "biometric-data", "", "biometric template")
}

func createWallet(cmd *cobra.Command) error {
	data, err := postJSON(cmd, "/api/wallet/create", map[string]any{
		"enable_2fa":       walletOpt.enable2FA,
		"enable_biometric": walletOpt.enableBiometric,
		"biometric_data":   walletOpt.biometricData,
	})
	if err != nil {
		return err
	}

	return printJson(cmd, data)
}

func showBalance(cmd *cobra.Command, address string) error {
	data, err := getJSON(cmd, "/api/wallet/balance?address="+address)
	if err != nil {
		return err
	}

	return printJson(cmd, data)
}
