package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/envelopekeeper/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-s string   presign token HMAC secret key
//	-t int      default presign token validity, minutes
//	-f int      signing 2FA token validity, minutes
//	-n int      signing 2FA attempt limit
//	-q int      documents per month for the default plan (negative = unlimited)
//	-m int      maximum items per envelope for the default plan
//	-l string   log level (debug, info, warn, error)
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-w int      upload URL validity, minutes
//
// Duration flags are accepted as integers in minutes and then converted
// to time.Duration values.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-s", "-t", "-f", "-n", "-q", "-m", "-l", "-u", "-p", "-b", "-g", "-e", "-w"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	presignTTL := fs.Int("t", int(config.PresignDefaultTTL.Minutes()), "default presign token validity (in minutes)")
	twoFactorTTL := fs.Int("f", int(config.TwoFactorTTL.Minutes()), "signing 2FA token validity (in minutes)")
	fs.IntVar(&config.TwoFactorAttemptLimit, "n", config.TwoFactorAttemptLimit, "signing 2FA attempt limit")
	fs.IntVar(&config.QuotaUnitsPerPeriod, "q", config.QuotaUnitsPerPeriod, "documents per month")
	fs.IntVar(&config.MaxItemsPerEnvelope, "m", config.MaxItemsPerEnvelope, "maximum items per envelope")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 root bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 root region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	uploadValidity := fs.Int("w", int(config.UploadURLValidity.Minutes()), "upload URL validity (in minutes)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.PresignDefaultTTL = time.Duration(*presignTTL) * time.Minute
	config.TwoFactorTTL = time.Duration(*twoFactorTTL) * time.Minute
	config.UploadURLValidity = time.Duration(*uploadValidity) * time.Minute
}
