package cmd

import (
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var sendOpt struct {
	trace         string
	from          string
	to            string
	amount        string
	currency      string
	crossChain    bool
	targetChain   string
	twoFactorCode string
}

// sendCmd submits a transfer
var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "send funds between addresses",
	RunE: func(cmd *cobra.Command, args []string) error {
		if sendOpt.trace == "" {
			sendOpt.trace = uuid.NewString()
		}

		data, err := postJSON(cmd, "/api/transaction/send", map[string]any{
			"trace_id":        sendOpt.trace,
			"from":            sendOpt.from,
			"to":              sendOpt.to,
			"amount":          sendOpt.amount,
			"currency":        sendOpt.currency,
			"cross_chain":     sendOpt.crossChain,
			"target_chain":    sendOpt.targetChain,
			"two_factor_code": sendOpt.twoFactorCode,
		})
		if err != nil {
			return err
		}

		return printJson(cmd, data)
	},
}

// historyCmd lists an address's transactions
var historyCmd = &cobra.Command{
	Use:   "history <address>",
	Short: "list transactions touching an address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := getJSON(cmd, "/api/transaction/history?address="+args[0])
		if err != nil {
			return err
		}

		return printJson(cmd, data)
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(historyCmd)

	sendCmd.Flags().StringVar(&sendOpt.trace, "trace", "", "trace id (optional)")
	sendCmd.Flags().StringVar(&sendOpt.from, "from", "", "sender address")
	sendCmd.Flags().StringVar(&sendOpt.to, "to", "", "recipient address")
	sendCmd.Flags().StringVar(&sendOpt.amount, "amount", "0", "amount")
	sendCmd.Flags().StringVar(&sendOpt.currency, "currency", "BTN", "currency")
	sendCmd.Flags().BoolVar(&sendOpt.crossChain, "cross-chain", false, "cross-chain transfer")
	sendCmd.Flags().StringVar(&sendOpt.targetChain, "target-chain", "", "target chain for cross-chain transfer")
	sendCmd.Flags().StringVar(&sendOpt.twoFactorCode, "2fa-code", "", "2fa code for step-up")
}
