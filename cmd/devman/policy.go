/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package main

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/allbin/go-devman"
)

// Config is the devman configuration file.
type Config struct {
	DiscoveryTimeout time.Duration `mapstructure:"discovery_timeout"`
	Rules            []Rule        `mapstructure:"rules"`
}

// Rule maps a set of port-metadata matchers to the settings used for
// matching ports. Rules are evaluated in order; the first match wins.
type Rule struct {
	Match    Match    `mapstructure:"match"`
	Settings Settings `mapstructure:"settings"`
}

// Match holds regular expressions tested against enumerated port
// metadata. Empty fields match anything; non-empty fields must all
// match.
type Match struct {
	Path         string `mapstructure:"path"`
	Manufacturer string `mapstructure:"manufacturer"`
	Product      string `mapstructure:"product"`
	VendorID     string `mapstructure:"vendor_id"`
	ProductID    string `mapstructure:"product_id"`
	SerialNumber string `mapstructure:"serial_number"`
}

// Settings configure ports accepted by a rule.
type Settings struct {
	BaudRate        int           `mapstructure:"baud_rate"`
	IDCommand       string        `mapstructure:"id_command"`
	IDPattern       string        `mapstructure:"id_pattern"`
	ResponseSuffix  string        `mapstructure:"response_suffix"`
	MaxQueueLength  int           `mapstructure:"max_queue_length"`
	ResponseTimeout time.Duration `mapstructure:"response_timeout"`
}

// LoadConfig unmarshals the viper state into a Config.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if len(cfg.Rules) == 0 {
		return nil, fmt.Errorf("no rules configured; add a rules section to %s", viper.ConfigFileUsed())
	}
	return &cfg, nil
}

type compiledRule struct {
	matchers []func(devman.PortInfo) bool
	settings Settings
	parseID  func([]byte) (string, error)
}

// BuildPolicy compiles the rule list into an OptionPolicy.
func BuildPolicy(rules []Rule) (devman.OptionPolicy, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for i, rule := range rules {
		cr, err := compileRule(rule)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		compiled = append(compiled, cr)
	}

	return func(info devman.PortInfo) *devman.PortConfig {
		for _, cr := range compiled {
			if !cr.matches(info) {
				continue
			}
			cfg := &devman.PortConfig{
				BaudRate:        cr.settings.BaudRate,
				GetIDCommand:    []byte(cr.settings.IDCommand),
				ParseID:         cr.parseID,
				MaxQueueLength:  cr.settings.MaxQueueLength,
				ResponseTimeout: cr.settings.ResponseTimeout,
			}
			if suffix := cr.settings.ResponseSuffix; suffix != "" {
				cfg.CheckResponse = func(resp []byte) bool {
					return strings.HasSuffix(string(resp), suffix)
				}
			}
			return cfg
		}
		return nil
	}, nil
}

func compileRule(rule Rule) (compiledRule, error) {
	if rule.Settings.BaudRate <= 0 {
		return compiledRule{}, fmt.Errorf("baud_rate is required")
	}
	if rule.Settings.IDCommand == "" {
		return compiledRule{}, fmt.Errorf("id_command is required")
	}
	if rule.Settings.IDPattern == "" {
		return compiledRule{}, fmt.Errorf("id_pattern is required")
	}

	idPattern, err := regexp.Compile(rule.Settings.IDPattern)
	if err != nil {
		return compiledRule{}, fmt.Errorf("id_pattern: %w", err)
	}

	cr := compiledRule{
		settings: rule.Settings,
		parseID: func(resp []byte) (string, error) {
			m := idPattern.FindSubmatch(resp)
			if m == nil {
				return "", fmt.Errorf("response %q did not match id pattern", resp)
			}
			if len(m) > 1 {
				return string(m[1]), nil
			}
			return strings.TrimSpace(string(m[0])), nil
		},
	}

	fields := []struct {
		pattern string
		get     func(devman.PortInfo) string
	}{
		{rule.Match.Path, func(i devman.PortInfo) string { return i.Path }},
		{rule.Match.Manufacturer, func(i devman.PortInfo) string { return i.Manufacturer }},
		{rule.Match.Product, func(i devman.PortInfo) string { return i.Product }},
		{rule.Match.VendorID, func(i devman.PortInfo) string { return i.VendorID }},
		{rule.Match.ProductID, func(i devman.PortInfo) string { return i.ProductID }},
		{rule.Match.SerialNumber, func(i devman.PortInfo) string { return i.SerialNumber }},
	}
	for _, f := range fields {
		if f.pattern == "" {
			continue
		}
		re, err := regexp.Compile(f.pattern)
		if err != nil {
			return compiledRule{}, fmt.Errorf("match pattern %q: %w", f.pattern, err)
		}
		get := f.get
		cr.matchers = append(cr.matchers, func(info devman.PortInfo) bool {
			return re.MatchString(get(info))
		})
	}

	return cr, nil
}

func (cr compiledRule) matches(info devman.PortInfo) bool {
	for _, m := range cr.matchers {
		if !m(info) {
			return false
		}
	}
	return true
}

// newManagerFromConfig builds a Manager wired to the configured policy.
func newManagerFromConfig() (*devman.Manager, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	policy, err := BuildPolicy(cfg.Rules)
	if err != nil {
		return nil, err
	}
	opts := []devman.Option{}
	if cfg.DiscoveryTimeout > 0 {
		opts = append(opts, devman.WithDiscoveryTimeout(cfg.DiscoveryTimeout))
	}
	return devman.NewManager(policy, opts...), nil
}
