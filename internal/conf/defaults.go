package conf

import (
	"time"

	"github.com/spf13/viper"

	"github.com/anatolykoptev/go-ecoguard"
)

// setDefaults registers every key so environment overrides reach Unmarshal
// even when the config file omits the key.
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("database.path", "ecoguard.db")

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.ttl", 10*time.Minute)
	v.SetDefault("cache.cleanup", 5*time.Minute)

	v.SetDefault("metrics.listen", "")

	d := ecoguard.DefaultDetectorConfig()
	v.SetDefault("detector.same_user_distance", d.SameUserDistance)
	v.SetDefault("detector.global_distance", d.GlobalDistance)
	v.SetDefault("detector.secondary_distance", d.SecondaryDistance)
	v.SetDefault("detector.frequency_distance", d.FrequencyDistance)
	v.SetDefault("detector.min_quality", d.MinQuality)
	v.SetDefault("detector.low_quality", d.LowQuality)
	v.SetDefault("detector.quality_damping", d.QualityDamping)
	v.SetDefault("detector.hash_confidence", d.HashConfidence)
	v.SetDefault("detector.multi_hash_confidence", d.MultiHashConfidence)
	v.SetDefault("detector.histogram_boost_correlation", d.HistogramBoostCorrelation)
	v.SetDefault("detector.histogram_boost", d.HistogramBoost)
	v.SetDefault("detector.histogram_veto_distance", d.HistogramVetoDistance)
	v.SetDefault("detector.accept_confidence", d.AcceptConfidence)
	v.SetDefault("detector.review_confidence", d.ReviewConfidence)
	v.SetDefault("detector.max_candidates", d.MaxCandidates)
	v.SetDefault("detector.global_window", 7*24*time.Hour)

	t := ecoguard.DefaultThrottleConfig()
	v.SetDefault("throttle.cooldown", t.Cooldown)
	v.SetDefault("throttle.hourly_limit", t.HourlyLimit)
	v.SetDefault("throttle.window", t.Window)

	m := ecoguard.DefaultMonitorConfig()
	v.SetDefault("monitor.enabled", m.Enabled)
	v.SetDefault("monitor.schedule", ecoguard.DefaultMonitorSchedule)
	v.SetDefault("monitor.timeout", 2*time.Minute)
	v.SetDefault("monitor.flag_rate_percent", m.FlagRatePercent)
	v.SetDefault("monitor.flag_rate_high_percent", m.FlagRateHighPercent)
	v.SetDefault("monitor.flag_rate_critical_percent", m.FlagRateCriticalPercent)
	v.SetDefault("monitor.device_submissions", m.DeviceSubmissions)
	v.SetDefault("monitor.device_high_count", m.DeviceHighCount)
	v.SetDefault("monitor.hourly_submissions", m.HourlySubmissions)
	v.SetDefault("monitor.user_high_count", m.UserHighCount)
	v.SetDefault("monitor.user_critical_count", m.UserCriticalCount)
	v.SetDefault("monitor.min_average_quality", m.MinAverageQuality)
	v.SetDefault("monitor.quality_high_below", m.QualityHighBelow)

	v.SetDefault("notify.urls", []string{})
	v.SetDefault("notify.timeout", 10*time.Second)
}
