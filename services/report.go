package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/ncruces/go-strftime"

	"alertreport/models"
)

const (
	DefaultTimeFormat    = "%Y-%m-%d %H:%M:%S %Z"
	DefaultWindowedLabel = "Workday alerts"
)

// ReportFormat controls how the report body is rendered.
type ReportFormat struct {
	// TimeFormat is a strftime format; text outside directives is copied as is.
	TimeFormat    string
	WindowedLabel string
}

func (f ReportFormat) withDefaults() ReportFormat {
	if f.TimeFormat == "" {
		f.TimeFormat = DefaultTimeFormat
	}
	if f.WindowedLabel == "" {
		f.WindowedLabel = DefaultWindowedLabel
	}
	return f
}

// BuildReport renders the plain-text report body. The windowed line is only
// present when counts.Windowed is set, even if it is zero.
func BuildReport(now time.Time, window models.TimeWindow, loc *time.Location, counts models.ReportCounts, format ReportFormat) string {
	format = format.withDefaults()
	if loc == nil {
		loc = window.Start.Location()
	}

	start, end := FormatWindow(window, format.TimeFormat)

	var b strings.Builder
	b.WriteString("Hello!\n\n")
	fmt.Fprintf(&b, "Today is:          %s\n", strftime.Format(format.TimeFormat, now.In(loc)))
	fmt.Fprintf(&b, "Last week's start: %s\n", start)
	fmt.Fprintf(&b, "Last week's end:   %s\n", end)
	b.WriteString("\n")
	fmt.Fprintf(&b, "Total alerts:   %d", counts.Total)
	if counts.Windowed != nil {
		fmt.Fprintf(&b, "\n%s: %d", format.WindowedLabel, *counts.Windowed)
	}
	return b.String()
}
