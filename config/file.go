package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FileConfig is the optional YAML configuration. Secrets are expected in the
// environment; anything set there overrides the file.
type FileConfig struct {
	Alerts struct {
		URL      string   `yaml:"url"`
		Tags     []string `yaml:"tags"`
		Timezone string   `yaml:"timezone"`
		PageSize int      `yaml:"page_size"`
	} `yaml:"alerts"`

	Report struct {
		Timezone      string `yaml:"timezone"`
		TimeFormat    string `yaml:"time_format"`
		WindowedLabel string `yaml:"windowed_label"`
	} `yaml:"report"`

	Timeframes struct {
		Enabled    bool   `yaml:"enabled"`
		DaysOfWeek []int  `yaml:"days_of_week"`
		Start      string `yaml:"start"`
		End        string `yaml:"end"`
		Timezone   string `yaml:"timezone"`
	} `yaml:"timeframes"`

	Email struct {
		Provider       string   `yaml:"provider"`
		Subject        string   `yaml:"subject"`
		From           string   `yaml:"from"`
		FromName       string   `yaml:"from_name"`
		To             []string `yaml:"to"`
		Cc             []string `yaml:"cc"`
		Bcc            []string `yaml:"bcc"`
		APIBaseURL     string   `yaml:"api_base_url"`
		APIEndpoint    string   `yaml:"api_endpoint"`
		StrictDispatch bool     `yaml:"strict_dispatch"`
	} `yaml:"email"`
}

// ReadFile parses a YAML config file.
func ReadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return &fc, nil
}

func (fc *FileConfig) apply(cfg *Config) {
	setString(&cfg.Alerts.URL, fc.Alerts.URL)
	setString(&cfg.Alerts.Timezone, fc.Alerts.Timezone)
	if len(fc.Alerts.Tags) > 0 {
		cfg.Alerts.Tags = fc.Alerts.Tags
	}
	if fc.Alerts.PageSize != 0 {
		cfg.Alerts.PageSize = fc.Alerts.PageSize
	}

	setString(&cfg.Report.Timezone, fc.Report.Timezone)
	setString(&cfg.Report.TimeFormat, fc.Report.TimeFormat)
	setString(&cfg.Report.WindowedLabel, fc.Report.WindowedLabel)

	cfg.Timeframe.Enabled = fc.Timeframes.Enabled
	if len(fc.Timeframes.DaysOfWeek) > 0 {
		cfg.Timeframe.Days = fc.Timeframes.DaysOfWeek
	}
	setString(&cfg.Timeframe.Start, fc.Timeframes.Start)
	setString(&cfg.Timeframe.End, fc.Timeframes.End)
	setString(&cfg.Timeframe.Timezone, fc.Timeframes.Timezone)

	setString(&cfg.Email.Provider, fc.Email.Provider)
	setString(&cfg.Email.Subject, fc.Email.Subject)
	setString(&cfg.Email.From, fc.Email.From)
	setString(&cfg.Email.FromName, fc.Email.FromName)
	setString(&cfg.Email.APIBaseURL, fc.Email.APIBaseURL)
	setString(&cfg.Email.APIEndpoint, fc.Email.APIEndpoint)
	if len(fc.Email.To) > 0 {
		cfg.Email.To = fc.Email.To
	}
	if len(fc.Email.Cc) > 0 {
		cfg.Email.Cc = fc.Email.Cc
	}
	if len(fc.Email.Bcc) > 0 {
		cfg.Email.Bcc = fc.Email.Bcc
	}
	cfg.Features.StrictDispatch = fc.Email.StrictDispatch
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
