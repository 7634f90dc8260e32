// Package logparse infers a record level from free-form log text.
package logparse

import (
	"regexp"
	"strings"

	"github.com/tinytelemetry/logdex/internal/model"
)

// SeverityRegex matches common severity levels in log text.
var SeverityRegex = regexp.MustCompile(`(?i)\b(TRACE|DEBUG|INFO|WARN|WARNING|ERROR|ERR|FATAL|CRITICAL|PANIC)\b`)

// NormalizeSeverity maps the many spellings of a severity onto the four
// record levels. TRACE folds into debug; FATAL, CRITICAL and PANIC fold into
// error. Unrecognized input is info.
func NormalizeSeverity(severity string) model.Level {
	normalized := strings.ToUpper(strings.TrimSpace(severity))

	switch normalized {
	case "TRACE", "TRAC", "TRC", "DEBUG", "DEBU", "DBG", "DEB":
		return model.LevelDebug
	case "INFO", "INFORMATION", "INF", "NOTICE":
		return model.LevelInfo
	case "WARN", "WARNING", "WRNG", "WRN":
		return model.LevelWarn
	case "ERROR", "ERR", "ERRO",
		"FATAL", "FATL", "FTL", "CRITICAL", "CRIT", "CRT",
		"PANIC", "PNC", "EMERG", "ALERT":
		return model.LevelError
	}
	if len(normalized) >= 4 {
		switch normalized[:4] {
		case "WARN":
			return model.LevelWarn
		case "ERRO", "FATA", "CRIT":
			return model.LevelError
		case "DEBU", "TRAC":
			return model.LevelDebug
		}
	}
	return model.LevelInfo
}

// ExtractLevel returns the level of the first severity keyword in message,
// or info when there is none.
func ExtractLevel(message string) model.Level {
	matches := SeverityRegex.FindStringSubmatch(message)
	if len(matches) > 1 {
		return NormalizeSeverity(matches[1])
	}
	return model.LevelInfo
}
