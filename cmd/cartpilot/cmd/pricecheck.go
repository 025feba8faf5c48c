package cmd

import (
	"fmt"
	"os"
	"time"

	"cartpilot/job"
	"cartpilot/lib/util/serviceutil"
	"cartpilot/notify"

	"github.com/spf13/cobra"
)

var priceCheckStores []string
var priceCheckList string

func init() {
	priceCheckCmd.Flags().StringSliceVar(&priceCheckStores, "store", []string{"barbora", "iki"}, "stores to check, in order")
	priceCheckCmd.Flags().StringVar(&priceCheckList, "list", "", "file with one item per line")
	rootCmd.AddCommand(priceCheckCmd)
}

var priceCheckCmd = &cobra.Command{
	Use:   "pricecheck [items...]",
	Short: "Compare prices for the given items across stores.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := serviceutil.SignalContext()
		orch, _ := setup(ctx)

		items, err := readItems(args, priceCheckList)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		results, err := orch.RunMultiStorePriceCheck(ctx, priceCheckStores, items)
		if err != nil {
			serviceutil.Fatal("price check failed", err)
		}

		fmt.Println(notify.Render(notify.Report{
			Kind:        job.TypePriceCheck,
			Results:     results,
			Requested:   len(items),
			GeneratedAt: time.Now(),
		}))
	},
}
