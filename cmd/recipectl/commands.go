package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"Recipe-Chain/sdk/go/recipechain"
)

func newStrategiesCommand(opts *rootOptions) *cobra.Command {
	var page, perPage uint64
	cmd := &cobra.Command{
		Use:   "strategies [id]",
		Short: "列出策略或查看单个策略",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()
			if len(args) == 1 {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				strategy, err := client.Strategy(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(cmd, strategy)
			}
			strategies, err := client.Strategies(ctx, page, perPage)
			if err != nil {
				return err
			}
			return printJSON(cmd, strategies)
		},
	}
	pageFlags(cmd, &page, &perPage)
	return cmd
}

func newBundlesCommand(opts *rootOptions) *cobra.Command {
	var page, perPage uint64
	cmd := &cobra.Command{
		Use:   "bundles [id]",
		Short: "列出 bundle 或查看单个 bundle",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()
			if len(args) == 1 {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				bundle, err := client.Bundle(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(cmd, bundle)
			}
			bundles, err := client.Bundles(ctx, page, perPage)
			if err != nil {
				return err
			}
			return printJSON(cmd, bundles)
		},
	}
	pageFlags(cmd, &page, &perPage)
	return cmd
}

func newSubCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sub <id>",
		Short: "查看订阅在账本上的记录",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			client, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()
			sub, err := client.Sub(ctx, id)
			if err != nil {
				return err
			}
			return printJSON(cmd, sub)
		},
	}
}

func newRegistryCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "registry <name|0xid>",
		Short: "查看注册表项",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()
			entry, err := client.Registry(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, entry)
		},
	}
}

func newCountsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "counts",
		Short: "统计策略、bundle 与订阅数量",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()
			counts, err := client.Counts(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, counts)
		},
	}
}

func newHealthCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "检查服务是否存活",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()
			if err := client.Health(ctx); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return err
		},
	}
}

type submitOptions struct {
	ID            string
	SubID         uint64
	StrategyIndex int
	Triggers      []string
	Actions       []string
	Wait          bool
	WaitTimeout   time.Duration
}

func newJobsCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "提交与查询 bot 作业",
	}

	submit := &submitOptions{}
	submitCmd := &cobra.Command{
		Use:   "submit",
		Short: "提交一次订阅执行",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()
			job, err := client.SubmitJob(ctx, recipechain.JobSubmission{
				ID:              submit.ID,
				SubID:           submit.SubID,
				StrategyIndex:   submit.StrategyIndex,
				TriggerCallData: submit.Triggers,
				ActionsCallData: submit.Actions,
			})
			if err != nil {
				return err
			}
			if submit.Wait {
				timeout := submit.WaitTimeout
				if timeout <= 0 {
					timeout = opts.Timeout
				}
				waitCtx, waitCancel := context.WithTimeout(cmd.Context(), timeout)
				defer waitCancel()
				job, err = client.WaitForJob(waitCtx, job.ID, 500*time.Millisecond)
				if err != nil {
					return err
				}
			}
			return printJSON(cmd, job)
		},
	}
	submitCmd.Flags().StringVar(&submit.ID, "id", "", "幂等作业 ID，留空自动生成")
	submitCmd.Flags().Uint64Var(&submit.SubID, "sub", 0, "订阅 ID")
	submitCmd.Flags().IntVar(&submit.StrategyIndex, "strategy-index", 0, "bundle 中的策略下标")
	submitCmd.Flags().StringSliceVar(&submit.Triggers, "trigger", nil, "触发器调用数据，0x 十六进制，可重复")
	submitCmd.Flags().StringSliceVar(&submit.Actions, "action", nil, "动作调用数据，0x 十六进制，可重复")
	submitCmd.Flags().BoolVar(&submit.Wait, "wait", false, "等待作业结束")
	submitCmd.Flags().DurationVar(&submit.WaitTimeout, "wait-timeout", 0, "等待上限，默认使用 --timeout")
	_ = submitCmd.MarkFlagRequired("sub")

	getCmd := &cobra.Command{
		Use:   "get <job-id>",
		Short: "查询作业状态",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client()
			if err != nil {
				return err
			}
			ctx, cancel := opts.context(cmd)
			defer cancel()
			job, err := client.GetJob(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, job)
		},
	}

	cmd.AddCommand(submitCmd, getCmd)
	return cmd
}
