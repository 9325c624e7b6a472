package agent

import (
	"github.com/spf13/cobra"
)

func initPollingFlags(root *cobra.Command) {
	f := root.PersistentFlags()

	f.String("polling.namespace", defaultCfg.Polling.Namespace, "-> Pollster namespace (pollster 命名空间)")
	f.String("polling.group_prefix", defaultCfg.Polling.GroupPrefix, "-> Partition group prefix (分区组前缀)")
	f.String("polling.pipeline_file", defaultCfg.Polling.PipelineFile, "-> Pipeline definition file (pipeline 定义文件)")
	f.StringSlice("polling.default_discovery", defaultCfg.Polling.DefaultDiscovery, "-> Agent default discovery URLs (代理默认发现URL)")
	f.Duration("polling.pollster_timeout", defaultCfg.Polling.PollsterTimeout, "-> Per pollster/discoverer call timeout (单次调用超时)")
}

func initCoordinationFlags(root *cobra.Command) {
	f := root.PersistentFlags()

	f.String("coordination.backend", defaultCfg.Coordination.Backend, "-> Coordination backend [,memory,http] (协调后端，空表示单代理)")
	f.String("coordination.url", defaultCfg.Coordination.URL, "-> Membership service URL (membership 服务地址)")
	f.String("coordination.member_id", defaultCfg.Coordination.MemberID, "-> Member id, generated when empty (成员ID)")
	f.Duration("coordination.heartbeat", defaultCfg.Coordination.Heartbeat, "-> Heartbeat interval (心跳间隔)")
	f.Duration("coordination.member_ttl", defaultCfg.Coordination.MemberTTL, "-> Member TTL on the membership service (成员存活时间)")
	f.Duration("coordination.timeout", defaultCfg.Coordination.Timeout, "-> Remote request timeout (请求超时)")
}

func initAlarmFlags(root *cobra.Command) {
	f := root.PersistentFlags()

	f.String("alarm.mode", defaultCfg.Alarm.Mode, "-> Assignment mode [singleton,coordinated,partitioned] (分配策略)")
	f.Duration("alarm.evaluation_interval", defaultCfg.Alarm.EvaluationInterval, "-> Evaluation interval (评估周期)")
	f.String("alarm.definition_file", defaultCfg.Alarm.DefinitionFile, "-> Alarm definition file (告警定义文件)")
	f.StringSlice("alarm.peers", defaultCfg.Alarm.Peers, "-> Peer evaluator URLs in partitioned mode (对端地址)")
}
