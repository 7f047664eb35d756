package fault

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDownloadErrorMessage(t *testing.T) {
	withStatus := &DownloadError{Source: "codepoint", URL: "https://example.com/x.zip", StatusCode: 404}
	assert.Equal(t, "download codepoint: HTTP 404 from https://example.com/x.zip", withStatus.Error())

	cause := errors.New("connection refused")
	withCause := &DownloadError{Source: "osm", URL: "https://example.com/y.pbf", Err: cause}
	assert.Contains(t, withCause.Error(), "connection refused")
	assert.ErrorIs(t, withCause, cause)
}

func TestParseErrorMessage(t *testing.T) {
	bare := &ParseError{Source: "nspl", Detail: "no CSV found in archive"}
	assert.Equal(t, "parse nspl: no CSV found in archive", bare.Error())

	cause := errors.New("unexpected EOF")
	full := &ParseError{Source: "codepoint", Line: 42, Detail: "read failure", Err: cause}
	assert.Equal(t, "parse codepoint line 42: read failure: unexpected EOF", full.Error())
	assert.ErrorIs(t, full, cause)
}

func TestDatabaseErrorUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := &DatabaseError{Op: "link addresses", Err: cause}
	assert.Equal(t, "database link addresses: connection reset", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestSimpleErrors(t *testing.T) {
	assert.Equal(t, "config: DATABASE_URL is required", (&ConfigError{Msg: "DATABASE_URL is required"}).Error())
	assert.Equal(t, "pipeline: no postcodes loaded", (&PipelineError{Msg: "no postcodes loaded"}).Error())
}
