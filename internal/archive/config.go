package archive

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
)

// ExportFormat selects the renderers run on completion.
type ExportFormat string

const (
	ExportHTML     ExportFormat = "html"
	ExportMarkdown ExportFormat = "markdown"
	ExportBoth     ExportFormat = "both"
)

// MinimumDelay is the floor applied to every computed batch delay.
const MinimumDelay = time.Second

// DefaultTotalEstimate is used when the source does not know the chat size.
const DefaultTotalEstimate = 1000

// JobConfig controls pacing, quotas and post-completion export of one job.
// A job keeps its own copy for its whole lifetime.
type JobConfig struct {
	MinDelay time.Duration
	MaxDelay time.Duration

	BurstPause              time.Duration
	BatchesBeforeBurstPause int
	LongPause               time.Duration
	BatchesBeforeLongPause  int

	MinBatchSize int
	MaxBatchSize int

	RandomizeOrder  bool
	SimulateReading bool

	RespectActiveHours bool
	ActiveHourStart    int
	ActiveHourEnd      int

	MaxMessagesPerHour int
	MaxMessagesPerDay  int

	StopOnRateLimit bool
	MaxRetries      int

	AutoExportOnComplete bool
	ExportFormat         ExportFormat
	ExportPath           string
}

// DefaultJobConfig returns the stock pacing profile.
func DefaultJobConfig() JobConfig {
	return JobConfig{
		MinDelay:                3 * time.Second,
		MaxDelay:                15 * time.Second,
		BurstPause:              60 * time.Second,
		BatchesBeforeBurstPause: 5,
		LongPause:               5 * time.Minute,
		BatchesBeforeLongPause:  20,
		MinBatchSize:            10,
		MaxBatchSize:            50,
		RandomizeOrder:          true,
		SimulateReading:         true,
		RespectActiveHours:      true,
		ActiveHourStart:         8,
		ActiveHourEnd:           23,
		MaxMessagesPerHour:      500,
		MaxMessagesPerDay:       5000,
		StopOnRateLimit:         true,
		MaxRetries:              3,
		AutoExportOnComplete:    true,
		ExportFormat:            ExportHTML,
	}
}

// ConfigView is the external snake_case projection of JobConfig.
type ConfigView struct {
	MinDelayMs              int64  `json:"min_delay_ms" toml:"min_delay_ms" validate:"gte=1000"`
	MaxDelayMs              int64  `json:"max_delay_ms" toml:"max_delay_ms" validate:"gtefield=MinDelayMs"`
	BurstPauseMs            int64  `json:"burst_pause_ms" toml:"burst_pause_ms" validate:"gte=0"`
	BatchesBeforeBurstPause int    `json:"batches_before_burst_pause" toml:"batches_before_burst_pause" validate:"gte=0"`
	LongPauseMs             int64  `json:"long_pause_ms" toml:"long_pause_ms" validate:"gte=0"`
	BatchesBeforeLongPause  int    `json:"batches_before_long_pause" toml:"batches_before_long_pause" validate:"gte=0"`
	MinBatchSize            int    `json:"min_batch_size" toml:"min_batch_size" validate:"gte=1"`
	MaxBatchSize            int    `json:"max_batch_size" toml:"max_batch_size" validate:"gtefield=MinBatchSize,lte=1000"`
	RandomizeOrder          bool   `json:"randomize_order" toml:"randomize_order"`
	SimulateReading         bool   `json:"simulate_reading" toml:"simulate_reading"`
	RespectActiveHours      bool   `json:"respect_active_hours" toml:"respect_active_hours"`
	ActiveHourStart         int    `json:"active_hour_start" toml:"active_hour_start" validate:"gte=0,lte=23"`
	ActiveHourEnd           int    `json:"active_hour_end" toml:"active_hour_end" validate:"gte=0,lte=23"`
	MaxMessagesPerHour      int    `json:"max_messages_per_hour" toml:"max_messages_per_hour" validate:"gte=1"`
	MaxMessagesPerDay       int    `json:"max_messages_per_day" toml:"max_messages_per_day" validate:"gte=1"`
	StopOnRateLimit         bool   `json:"stop_on_rate_limit" toml:"stop_on_rate_limit"`
	MaxRetries              int    `json:"max_retries" toml:"max_retries" validate:"gte=1"`
	AutoExportOnComplete    bool   `json:"auto_export_on_complete" toml:"auto_export_on_complete"`
	ExportFormat            string `json:"export_format" toml:"export_format" validate:"oneof=html markdown both"`
	ExportPath              string `json:"export_path" toml:"export_path"`
}

// View projects the config to its snake_case representation.
func (c JobConfig) View() ConfigView {
	return ConfigView{
		MinDelayMs:              c.MinDelay.Milliseconds(),
		MaxDelayMs:              c.MaxDelay.Milliseconds(),
		BurstPauseMs:            c.BurstPause.Milliseconds(),
		BatchesBeforeBurstPause: c.BatchesBeforeBurstPause,
		LongPauseMs:             c.LongPause.Milliseconds(),
		BatchesBeforeLongPause:  c.BatchesBeforeLongPause,
		MinBatchSize:            c.MinBatchSize,
		MaxBatchSize:            c.MaxBatchSize,
		RandomizeOrder:          c.RandomizeOrder,
		SimulateReading:         c.SimulateReading,
		RespectActiveHours:      c.RespectActiveHours,
		ActiveHourStart:         c.ActiveHourStart,
		ActiveHourEnd:           c.ActiveHourEnd,
		MaxMessagesPerHour:      c.MaxMessagesPerHour,
		MaxMessagesPerDay:       c.MaxMessagesPerDay,
		StopOnRateLimit:         c.StopOnRateLimit,
		MaxRetries:              c.MaxRetries,
		AutoExportOnComplete:    c.AutoExportOnComplete,
		ExportFormat:            string(c.ExportFormat),
		ExportPath:              c.ExportPath,
	}
}

// Config parses the projection back into a JobConfig.
func (v ConfigView) Config() JobConfig {
	return JobConfig{
		MinDelay:                time.Duration(v.MinDelayMs) * time.Millisecond,
		MaxDelay:                time.Duration(v.MaxDelayMs) * time.Millisecond,
		BurstPause:              time.Duration(v.BurstPauseMs) * time.Millisecond,
		BatchesBeforeBurstPause: v.BatchesBeforeBurstPause,
		LongPause:               time.Duration(v.LongPauseMs) * time.Millisecond,
		BatchesBeforeLongPause:  v.BatchesBeforeLongPause,
		MinBatchSize:            v.MinBatchSize,
		MaxBatchSize:            v.MaxBatchSize,
		RandomizeOrder:          v.RandomizeOrder,
		SimulateReading:         v.SimulateReading,
		RespectActiveHours:      v.RespectActiveHours,
		ActiveHourStart:         v.ActiveHourStart,
		ActiveHourEnd:           v.ActiveHourEnd,
		MaxMessagesPerHour:      v.MaxMessagesPerHour,
		MaxMessagesPerDay:       v.MaxMessagesPerDay,
		StopOnRateLimit:         v.StopOnRateLimit,
		MaxRetries:              v.MaxRetries,
		AutoExportOnComplete:    v.AutoExportOnComplete,
		ExportFormat:            ExportFormat(v.ExportFormat),
		ExportPath:              v.ExportPath,
	}
}

// ConfigPatch is a partial update. Nil fields keep their current value.
type ConfigPatch struct {
	MinDelayMs              *int64  `json:"min_delay_ms,omitempty"`
	MaxDelayMs              *int64  `json:"max_delay_ms,omitempty"`
	BurstPauseMs            *int64  `json:"burst_pause_ms,omitempty"`
	BatchesBeforeBurstPause *int    `json:"batches_before_burst_pause,omitempty"`
	LongPauseMs             *int64  `json:"long_pause_ms,omitempty"`
	BatchesBeforeLongPause  *int    `json:"batches_before_long_pause,omitempty"`
	MinBatchSize            *int    `json:"min_batch_size,omitempty"`
	MaxBatchSize            *int    `json:"max_batch_size,omitempty"`
	RandomizeOrder          *bool   `json:"randomize_order,omitempty"`
	SimulateReading         *bool   `json:"simulate_reading,omitempty"`
	RespectActiveHours      *bool   `json:"respect_active_hours,omitempty"`
	ActiveHourStart         *int    `json:"active_hour_start,omitempty"`
	ActiveHourEnd           *int    `json:"active_hour_end,omitempty"`
	MaxMessagesPerHour      *int    `json:"max_messages_per_hour,omitempty"`
	MaxMessagesPerDay       *int    `json:"max_messages_per_day,omitempty"`
	StopOnRateLimit         *bool   `json:"stop_on_rate_limit,omitempty"`
	MaxRetries              *int    `json:"max_retries,omitempty"`
	AutoExportOnComplete    *bool   `json:"auto_export_on_complete,omitempty"`
	ExportFormat            *string `json:"export_format,omitempty"`
	ExportPath              *string `json:"export_path,omitempty"`
}

// Apply returns base with every non-nil field of p applied.
func (p ConfigPatch) Apply(base JobConfig) JobConfig {
	v := base.View()
	setInt64(&v.MinDelayMs, p.MinDelayMs)
	setInt64(&v.MaxDelayMs, p.MaxDelayMs)
	setInt64(&v.BurstPauseMs, p.BurstPauseMs)
	setInt(&v.BatchesBeforeBurstPause, p.BatchesBeforeBurstPause)
	setInt64(&v.LongPauseMs, p.LongPauseMs)
	setInt(&v.BatchesBeforeLongPause, p.BatchesBeforeLongPause)
	setInt(&v.MinBatchSize, p.MinBatchSize)
	setInt(&v.MaxBatchSize, p.MaxBatchSize)
	setBool(&v.RandomizeOrder, p.RandomizeOrder)
	setBool(&v.SimulateReading, p.SimulateReading)
	setBool(&v.RespectActiveHours, p.RespectActiveHours)
	setInt(&v.ActiveHourStart, p.ActiveHourStart)
	setInt(&v.ActiveHourEnd, p.ActiveHourEnd)
	setInt(&v.MaxMessagesPerHour, p.MaxMessagesPerHour)
	setInt(&v.MaxMessagesPerDay, p.MaxMessagesPerDay)
	setBool(&v.StopOnRateLimit, p.StopOnRateLimit)
	setInt(&v.MaxRetries, p.MaxRetries)
	setBool(&v.AutoExportOnComplete, p.AutoExportOnComplete)
	if p.ExportFormat != nil {
		v.ExportFormat = *p.ExportFormat
	}
	if p.ExportPath != nil {
		v.ExportPath = *p.ExportPath
	}
	return v.Config()
}

// IsEmpty reports whether the patch changes nothing.
func (p ConfigPatch) IsEmpty() bool {
	return reflect.ValueOf(p).IsZero()
}

func setInt64(dst *int64, src *int64) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func configValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Validate checks the config. An active-hours window with start == end is
// rejected; start > end is a window that wraps past midnight.
func (c JobConfig) Validate() error {
	var problems []string

	if err := configValidator().Struct(c.View()); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return errors.Wrap(ErrInvalidConfig, err.Error())
		}
		for _, fe := range verrs {
			problems = append(problems, describeFieldError(fe))
		}
	}

	if c.RespectActiveHours && c.ActiveHourStart == c.ActiveHourEnd {
		problems = append(problems, "active_hour_start and active_hour_end must differ")
	}

	if len(problems) > 0 {
		return errors.WithHint(
			errors.Wrap(ErrInvalidConfig, strings.Join(problems, "; ")),
			"check the snake_case config fields reported above",
		)
	}
	return nil
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "gtefield":
		return fmt.Sprintf("%s must be >= %s", fe.Field(), toSnake(fe.Param()))
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", fe.Field(), fe.Param(), fe.Value())
	case "gte":
		return fmt.Sprintf("%s must be >= %s", fe.Field(), fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be <= %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}

// toSnake converts a Go field name such as MinDelayMs to min_delay_ms.
func toSnake(name string) string {
	var b strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
