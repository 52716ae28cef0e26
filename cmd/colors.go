package cmd

import (
	"strings"

	"github.com/fatih/color"
)

var (
	colorSuccess = color.New(color.FgGreen).SprintFunc()
	colorInfo    = color.New(color.FgCyan).SprintFunc()
	colorWarn    = color.New(color.FgYellow).SprintFunc()
	colorError   = color.New(color.FgRed).SprintFunc()
)

func formatStatusWithColor(status string) string {
	switch strings.ToLower(status) {
	case "complete", "done", "ok", "pass":
		return colorSuccess(status)
	case "error", "fail", "failed":
		return colorError(status)
	case "pending", "running":
		return colorInfo(status)
	default:
		return status
	}
}

func formatSeverityWithColor(severity string) string {
	switch strings.ToLower(severity) {
	case "critical", "error":
		return colorError(severity)
	case "warning":
		return colorWarn(severity)
	case "success":
		return colorSuccess(severity)
	case "info":
		return colorInfo(severity)
	default:
		return severity
	}
}
