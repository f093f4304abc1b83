package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"Recipe-Chain/sdk/go/recipechain"
)

const (
	envServer = "RECIPECHAIN_URL"
	envToken  = "RECIPECHAIN_TOKEN"
)

// rootOptions 保存全局参数。
type rootOptions struct {
	Server  string
	Token   string
	Timeout time.Duration
}

func (o *rootOptions) client() (*recipechain.Client, error) {
	client, err := recipechain.NewClient(o.Server, nil)
	if err != nil {
		return nil, err
	}
	client.SetAccessToken(o.Token)
	return client, nil
}

func (o *rootOptions) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), o.Timeout)
}

// newRootCommand 构造 recipectl 命令树。
func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "recipectl",
		Short:         "recipechain 命令行工具",
		Long:          "查询策略、bundle、订阅与注册表，并向 bot 提交执行作业。",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultServer := os.Getenv(envServer)
	if defaultServer == "" {
		defaultServer = "http://127.0.0.1:8080"
	}
	cmd.PersistentFlags().StringVar(&opts.Server, "server", defaultServer, "API 地址，也可通过 "+envServer+" 设置")
	cmd.PersistentFlags().StringVar(&opts.Token, "token", os.Getenv(envToken), "作业接口使用的 bearer token")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 15*time.Second, "单次请求超时")

	cmd.AddCommand(
		newStrategiesCommand(opts),
		newBundlesCommand(opts),
		newSubCommand(opts),
		newRegistryCommand(opts),
		newCountsCommand(opts),
		newJobsCommand(opts),
		newHealthCommand(opts),
	)
	return cmd
}

// printJSON 以缩进 JSON 输出结果。
func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseID(raw string) (uint64, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("无效的 ID %q: %w", raw, err)
	}
	return id, nil
}

// pageFlags 为列表命令注册分页参数。
func pageFlags(cmd *cobra.Command, page, perPage *uint64) {
	cmd.Flags().Uint64Var(page, "page", 0, "页码，从 0 开始")
	cmd.Flags().Uint64Var(perPage, "per-page", 20, "每页数量")
}
