// Package fault defines the error taxonomy shared by the ingestion pipeline.
//
// Row-level malformed data is never represented here: parsers recover it
// locally by skipping the row. These types cover the failures that abort a
// stage and propagate to the orchestrator.
package fault

import "fmt"

// ConfigError reports missing or invalid configuration. The pipeline does
// not start when one is returned.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string {
	return "config: " + e.Msg
}

// DownloadError reports a failed source download: bad HTTP status or a
// transport failure. StatusCode is 0 when no response was received.
type DownloadError struct {
	Source     string
	URL        string
	StatusCode int
	Err        error
}

func (e *DownloadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("download %s: HTTP %d from %s", e.Source, e.StatusCode, e.URL)
	}
	return fmt.Sprintf("download %s: %v", e.Source, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// ParseError reports structural source malformation: a missing file, an
// unreadable archive, or no data file inside one. Batches yielded before
// the error remain loaded.
type ParseError struct {
	Source string
	Line   int
	Detail string
	Err    error
}

func (e *ParseError) Error() string {
	msg := "parse " + e.Source
	if e.Line > 0 {
		msg = fmt.Sprintf("%s line %d", msg, e.Line)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error { return e.Err }

// DatabaseError reports store-level failures: connectivity or a failed
// bulk statement outside the per-batch recovery path.
type DatabaseError struct {
	Op  string
	Err error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("database %s: %v", e.Op, e.Err)
}

func (e *DatabaseError) Unwrap() error { return e.Err }

// PipelineError reports a missing prerequisite, e.g. running merge before
// any data has been loaded.
type PipelineError struct {
	Msg string
}

func (e *PipelineError) Error() string {
	return "pipeline: " + e.Msg
}
