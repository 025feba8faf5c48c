package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	jobdb "cartpilot/job/db"
	"cartpilot/lib/util/serviceutil"

	"github.com/spf13/cobra"
)

var shopList string
var shopStore string

func init() {
	shopCmd.Flags().StringVar(&shopStore, "store", "barbora", "store to shop at")
	shopCmd.Flags().StringVar(&shopList, "list", "", "file with one item per line")
	rootCmd.AddCommand(shopCmd)
}

var shopCmd = &cobra.Command{
	Use:   "shop [items...]",
	Short: "Fill the store's cart with the given grocery items.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := serviceutil.SignalContext()
		orch, _ := setup(ctx)

		items, err := readItems(args, shopList)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		err = orch.StartShoppingJob(ctx, shopStore, items)
		if err != nil {
			serviceutil.Fatal("failed to start shopping job", err)
		}

		// the job runs on the orchestrator goroutine; watch the
		// document until it stops
		lastMessage := ""
		for {
			j, err := orch.CurrentJob(ctx)
			if errors.Is(err, jobdb.ErrNoJob) {
				return
			}
			if err != nil {
				serviceutil.Fatal("failed to read job", err)
			}
			if j.StatusMessage != lastMessage {
				fmt.Println(j.StatusMessage)
				lastMessage = j.StatusMessage
			}
			if !j.IsRunning {
				if len(j.FailedItems) > 0 {
					fmt.Println("\nnot added to cart:")
					for _, f := range j.FailedItems {
						fmt.Printf("  %s: %s\n", f.Name, f.Reason)
					}
				}
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-orch.Changed():
			}
		}
	},
}

func splitLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}
