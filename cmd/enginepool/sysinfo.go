package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/freeeve/enginepool/internal/budget"
	"github.com/freeeve/enginepool/internal/sysinfo"
)

var sysinfoCmd = &cobra.Command{
	Use:   "sysinfo",
	Short: "Show host memory and the pool size it allows",
	RunE:  runSysinfo,
}

func mib(mb int) string {
	if mb < 0 {
		return "-" + humanize.IBytes(uint64(-mb)*1024*1024)
	}
	return humanize.IBytes(uint64(mb) * 1024 * 1024)
}

func runSysinfo(cmd *cobra.Command, _ []string) error {
	cfg, err := readConfig()
	if err != nil {
		return err
	}
	snap, err := sysinfo.Detect()
	if err != nil {
		return fmt.Errorf("detect: %w", err)
	}
	b := budget.Compute(snap, cfg.Pool.MaxLoadPercent, cfg.maxWorkers(), cfg.Pool.HashCeilingMB, budget.PoolState{})

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "total RAM\t%s\n", mib(snap.TotalRAMMB))
	fmt.Fprintf(tw, "free RAM\t%s\n", mib(snap.FreeRAMMB))
	fmt.Fprintf(tw, "logical cores\t%d\n", snap.LogicalCores)
	fmt.Fprintf(tw, "load ceiling\t%d%%\n", cfg.Pool.MaxLoadPercent)
	fmt.Fprintf(tw, "headroom\t%s\n", mib(b.EffectiveHeadroomMB))
	fmt.Fprintf(tw, "workers\t%s of %s max\n", humanize.Comma(int64(b.WorkerCapacity)), humanize.Comma(int64(cfg.maxWorkers())))
	fmt.Fprintf(tw, "hash per worker\t%s\n", mib(b.HashPerWorkerMB))
	fmt.Fprintf(tw, "engine\t%s\n", cfg.launcher().Path)
	return tw.Flush()
}
