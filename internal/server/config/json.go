package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/envelopekeeper/internal/flagx"
	"github.com/dmitrijs2005/envelopekeeper/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON unmarshalling.
// Duration fields use timex.Duration, so they accept "15m" style strings as
// well as integer nanoseconds. Pointer fields distinguish "absent" from zero.
type JsonConfig struct {
	EndpointAddrHTTP       string          `json:"endpoint_addr_http"`
	DatabaseDSN            string          `json:"database_dsn"`
	SecretKey              string          `json:"secret_key"`
	IDAlphabet             string          `json:"id_alphabet"`
	PresignDefaultTTL      *timex.Duration `json:"presign_default_ttl"`
	TwoFactorTTL           *timex.Duration `json:"two_factor_ttl"`
	TwoFactorAttemptLimit  *int            `json:"two_factor_attempt_limit"`
	QuotaUnitsPerPeriod    *int            `json:"quota_units_per_period"`
	MaxItemsPerEnvelope    *int            `json:"max_items_per_envelope"`
	LogLevel               string          `json:"log_level"`
	LogFormat              string          `json:"log_format"`
	S3RootUser             string          `json:"s3_root_user"`
	S3RootPassword         string          `json:"s3_root_password"`
	S3Bucket               string          `json:"s3_bucket"`
	S3Region               string          `json:"s3_region"`
	S3BaseEndpoint         string          `json:"s3_base_endpoint"`
	UploadURLValidity      *timex.Duration `json:"upload_url_validity"`
	InlineDocumentMaxBytes *int            `json:"inline_document_max_bytes"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The file path comes from the -c or -config command-line flags; if neither
// is set, no JSON file is loaded. Only keys present in the file override the
// current values. If the file cannot be read or contains invalid JSON, the
// function panics.
func parseJson(config *Config) {

	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.IDAlphabet, c.IDAlphabet)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.LogFormat, c.LogFormat)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)

	if c.PresignDefaultTTL != nil {
		config.PresignDefaultTTL = c.PresignDefaultTTL.Duration
	}
	if c.TwoFactorTTL != nil {
		config.TwoFactorTTL = c.TwoFactorTTL.Duration
	}
	if c.UploadURLValidity != nil {
		config.UploadURLValidity = c.UploadURLValidity.Duration
	}
	if c.TwoFactorAttemptLimit != nil {
		config.TwoFactorAttemptLimit = *c.TwoFactorAttemptLimit
	}
	if c.QuotaUnitsPerPeriod != nil {
		config.QuotaUnitsPerPeriod = *c.QuotaUnitsPerPeriod
	}
	if c.MaxItemsPerEnvelope != nil {
		config.MaxItemsPerEnvelope = *c.MaxItemsPerEnvelope
	}
	if c.InlineDocumentMaxBytes != nil {
		config.InlineDocumentMaxBytes = *c.InlineDocumentMaxBytes
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
