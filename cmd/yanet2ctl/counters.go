package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yanet-platform/yanet2go/internal/balloc"
	"github.com/yanet-platform/yanet2go/internal/counter"
	"github.com/yanet-platform/yanet2go/internal/memctx"
)

var countersCmdArgs struct {
	Instances int
}

var countersCmd = &cobra.Command{
	Use:   "counters-demo",
	Short: "Register two counters, spawn per-instance storage, and print their aggregates",
	Long: `Exercises the counter registry and multi-instance storage in an
ephemeral in-process memory context: not attached to any shared-memory
segment, useful as a smoke test for the counter subsystem on its own.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runCountersDemo(); err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	countersCmd.Flags().IntVar(&countersCmdArgs.Instances, "instances", 4, "Number of worker instances to simulate")
}

func runCountersDemo() error {
	if countersCmdArgs.Instances <= 0 {
		return fmt.Errorf("instances must be positive")
	}

	reg := counter.NewRegistry()
	pktsID, err := reg.Register("pkts", 1, 1)
	if err != nil {
		return fmt.Errorf("register pkts: %w", err)
	}
	bytesID, err := reg.Register("bytes", 1, 1)
	if err != nil {
		return fmt.Errorf("register bytes: %w", err)
	}

	linked := counter.NewRegistry()
	counter.Link(linked, reg)

	mctx := memctx.New("yanet2ctl-demo", balloc.New(make([]byte, 1<<20)))
	storage := counter.Spawn(mctx, nil, linked, countersCmdArgs.Instances)
	defer counter.Free(mctx, storage)

	pktsHandle, _ := linked.Handle(pktsID)
	bytesHandle, _ := linked.Handle(bytesID)

	for i := 0; i < countersCmdArgs.Instances; i++ {
		storage.Add(pktsHandle, i, uint64(10*(i+1)))
		storage.Add(bytesHandle, i, uint64(1500*(i+1)))
	}

	pkts := counter.HandleAccum(nil, countersCmdArgs.Instances, pktsHandle, storage)
	bytesVals := counter.HandleAccum(nil, countersCmdArgs.Instances, bytesHandle, storage)

	fmt.Printf("pkts:  %v\n", pkts)
	fmt.Printf("bytes: %v\n", bytesVals)

	return nil
}
