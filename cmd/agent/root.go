package agent

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/polling-agent/pkg/config"
)

var rootCmd = &cobra.Command{
	Use:          "polling-agent",
	Short:        "Partition-coordinated polling agent with transform/publish pipelines",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.LoadConfigWithCli(cmd)
		if err != nil {
			return fmt.Errorf("load config (check --config): %w", err)
		}
		return runAgent(cmd.Context(), cfg)
	},
}

func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "configs/config.yaml", "配置文件路径")
	// 注册分组 flag
	initServerFlags(rootCmd)
	initPollingFlags(rootCmd)
	initCoordinationFlags(rootCmd)
	initAlarmFlags(rootCmd)
	initLogFlags(rootCmd)

	rootCmd.AddCommand(alarmCmd, membershipCmd)
}
