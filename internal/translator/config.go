package translator

import (
	"fmt"
	"strings"
	"time"

	"md-translator/internal/config"
	"md-translator/internal/types"
)

// RepairMode 结构修复模式
type RepairMode string

const (
	RepairAuto   RepairMode = "auto"   // only after a shortfall or heuristic restoration
	RepairAlways RepairMode = "always"
	RepairNever  RepairMode = "never"
)

const (
	// MaxRetries is the maximum number of retry attempts for transport errors
	MaxRetries = 2
	// BaseRetryDelay is the base delay between retries
	BaseRetryDelay = 2 * time.Second
	// MaxConcurrency bounds parallel units in cell mode
	MaxConcurrency = 16
)

// Options 引擎配置
type Options struct {
	// 保护设置
	Keywords    []string `json:"keywords"`
	GuardTables bool     `json:"guard_tables"`

	// 粒度与并发
	Granularity string `json:"granularity"` // document or cell
	Concurrency int    `json:"concurrency"`

	// 重试
	MaxRetries int           `json:"max_retries"`
	RetryDelay time.Duration `json:"retry_delay"`

	Repair RepairMode `json:"repair"`
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() *Options {
	return &Options{
		Keywords:    config.ParseKeywords(config.DefaultKeywords),
		GuardTables: true,
		Granularity: config.GranularityDocument,
		Concurrency: 1,
		MaxRetries:  MaxRetries,
		RetryDelay:  BaseRetryDelay,
		Repair:      RepairAuto,
	}
}

// OptionsFromConfig derives engine options from the configuration record.
func OptionsFromConfig(cfg types.Config) *Options {
	o := DefaultOptions()
	o.Keywords = config.ParseKeywords(cfg.TechnicalKeywords)
	if cfg.Granularity != "" {
		o.Granularity = cfg.Granularity
	}
	if cfg.Concurrency > 0 {
		o.Concurrency = cfg.Concurrency
	}
	return o
}

// OptionError represents an options validation error
type OptionError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *OptionError) Error() string {
	return fmt.Sprintf("option validation error: field '%s' with value '%v': %s", e.Field, e.Value, e.Message)
}

// ValidateOptions checks o and returns every problem found.
func ValidateOptions(o *Options) []*OptionError {
	if o == nil {
		return []*OptionError{{Field: "options", Message: "options cannot be nil"}}
	}

	var errs []*OptionError
	if o.Granularity != config.GranularityDocument && o.Granularity != config.GranularityCell {
		errs = append(errs, &OptionError{Field: "Granularity", Value: o.Granularity, Message: "must be document or cell"})
	}
	if o.Concurrency < 1 || o.Concurrency > MaxConcurrency {
		errs = append(errs, &OptionError{Field: "Concurrency", Value: o.Concurrency, Message: fmt.Sprintf("must be between 1 and %d", MaxConcurrency)})
	}
	if o.MaxRetries < 0 {
		errs = append(errs, &OptionError{Field: "MaxRetries", Value: o.MaxRetries, Message: "must be non-negative"})
	}
	if o.RetryDelay < 0 {
		errs = append(errs, &OptionError{Field: "RetryDelay", Value: o.RetryDelay, Message: "must be non-negative"})
	}
	switch o.Repair {
	case RepairAuto, RepairAlways, RepairNever:
	default:
		errs = append(errs, &OptionError{Field: "Repair", Value: o.Repair, Message: "must be auto, always or never"})
	}
	for _, k := range o.Keywords {
		if strings.TrimSpace(k) == "" {
			errs = append(errs, &OptionError{Field: "Keywords", Value: k, Message: "keywords must not be blank"})
			break
		}
	}
	return errs
}

// String returns a human-readable representation of the options
func (o *Options) String() string {
	if o == nil {
		return "Options{nil}"
	}
	return fmt.Sprintf("Options{Keywords:%d, GuardTables:%v, Granularity:%s, Concurrency:%d, MaxRetries:%d, RetryDelay:%s, Repair:%s}",
		len(o.Keywords), o.GuardTables, o.Granularity, o.Concurrency, o.MaxRetries, o.RetryDelay, o.Repair)
}
