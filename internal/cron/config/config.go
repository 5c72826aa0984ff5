package cron_config

// Schedules use the six-field format with seconds. An empty schedule disables the job.
type Config struct {
	// Heartbeat check, every minute
	CronScheduleHeartbeat string `env:"CRON_SCHEDULE_HEARTBEAT" envDefault:"0 * * * * *"`
	// Health score refresh of every account, every 15 minutes
	CronScheduleHealthRefresh string `env:"CRON_SCHEDULE_HEALTH_REFRESH" envDefault:"0 */15 * * * *"`
	// Warmup ramp advance, daily at 00:05 UTC
	CronScheduleWarmupAdvance string `env:"CRON_SCHEDULE_WARMUP_ADVANCE" envDefault:"0 5 0 * * *"`
	// Re-verification of stale domains, hourly
	CronScheduleDomainReverify string `env:"CRON_SCHEDULE_DOMAIN_REVERIFY" envDefault:"0 30 * * * *"`
	// A/B test evaluation and expiry, every 10 minutes
	CronScheduleABTestEvaluate string `env:"CRON_SCHEDULE_ABTEST_EVALUATE" envDefault:"0 */10 * * * *"`
	// Blacklist and domain age scan, daily at midnight
	CronScheduleReputationScan string `env:"CRON_SCHEDULE_REPUTATION_SCAN" envDefault:"0 0 0 * * *"`
}
