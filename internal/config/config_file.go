package config

import (
	"os"

	"github.com/titanous/json5"
)

// fileConfig is the JSON5 overlay shape. Only a subset of options makes sense
// in a file; secrets stay in the environment.
type fileConfig struct {
	Log struct {
		Level string `json:"level"`
		File  string `json:"file"`
	} `json:"log"`
	Monitor struct {
		TargetChannel       string   `json:"target_channel"`
		VIPTargetChannel    string   `json:"vip_target_channel"`
		ReportTargetChannel string   `json:"report_target_channel"`
		BlacklistChannels   []string `json:"blacklist_channels"`
		SourceChannels      []string `json:"source_channels"`
		FromUsers           []string `json:"from_users"`
		Keywords            []string `json:"keywords"`
		Timezone            string   `json:"timezone"`
		ReportCron          string   `json:"report_cron"`
	} `json:"monitor"`
	Dedup struct {
		CacheSize           int     `json:"cache_size"`
		SimilarityThreshold float64 `json:"similarity_threshold"`
	} `json:"dedup"`
	Compress struct {
		MinLength      int     `json:"min_length"`
		MaxMessages    int     `json:"max_messages"`
		ScoreThreshold float64 `json:"score_threshold"`
	} `json:"compress"`
	AI struct {
		Provider         string `json:"provider"`
		AdvancedProvider string `json:"advanced_provider"`
		Model            string `json:"model"`
		MaxToolCalls     int    `json:"max_tool_calls"`
	} `json:"ai"`
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var fc fileConfig
	if err := json5.Unmarshal(data, &fc); err != nil {
		return err
	}

	setStr(&c.Log.Level, fc.Log.Level)
	setStr(&c.Log.File, fc.Log.File)
	setStr(&c.Monitor.TargetChannel, fc.Monitor.TargetChannel)
	setStr(&c.Monitor.VIPTargetChannel, fc.Monitor.VIPTargetChannel)
	setStr(&c.Monitor.ReportTargetChannel, fc.Monitor.ReportTargetChannel)
	setSlice(&c.Monitor.BlacklistChannels, fc.Monitor.BlacklistChannels)
	setSlice(&c.Monitor.SourceChannels, fc.Monitor.SourceChannels)
	setSlice(&c.Monitor.FromUsers, fc.Monitor.FromUsers)
	setSlice(&c.Monitor.Keywords, fc.Monitor.Keywords)
	setStr(&c.Monitor.Timezone, fc.Monitor.Timezone)
	setStr(&c.Monitor.ReportCron, fc.Monitor.ReportCron)
	setInt(&c.Dedup.CacheSize, fc.Dedup.CacheSize)
	setFloat(&c.Dedup.SimilarityThreshold, fc.Dedup.SimilarityThreshold)
	setInt(&c.Compress.MinLength, fc.Compress.MinLength)
	setInt(&c.Compress.MaxMessages, fc.Compress.MaxMessages)
	setFloat(&c.Compress.ScoreThreshold, fc.Compress.ScoreThreshold)
	setStr(&c.AI.Provider, fc.AI.Provider)
	setStr(&c.AI.AdvancedProvider, fc.AI.AdvancedProvider)
	setStr(&c.AI.Model, fc.AI.Model)
	setInt(&c.AI.MaxToolCalls, fc.AI.MaxToolCalls)
	return nil
}

func setStr(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setSlice(dst *[]string, v []string) {
	if len(v) > 0 {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setFloat(dst *float64, v float64) {
	if v != 0 {
		*dst = v
	}
}
