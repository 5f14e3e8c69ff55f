/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package startcmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	cmdutils "github.com/trustbloc/cmdutil-go/pkg/utils/cmd"

	"github.com/trustbloc/shield/cmd/common"
	"github.com/trustbloc/shield/pkg/dataprotect"
	"github.com/trustbloc/shield/pkg/observability/tracing"
)

const (
	commonEnvVarUsageText = "Alternatively, this can be set with the following environment variable: "

	hostURLFlagName      = "host-url"
	hostURLFlagShorthand = "u"
	hostURLFlagUsage     = "URL to run the shield-rest instance on. Format: HostName:Port."
	hostURLEnvKey        = "SHIELD_REST_HOST_URL"

	databaseURLFlagName      = "database-url"
	databaseURLEnvKey        = "DATABASE_URL"
	databaseURLFlagShorthand = "v"
	databaseURLFlagUsage     = "The URL (or connection string) of the MongoDB holding the policy metadata index. " +
		"Example: mongodb://mongodb.example.com:27017. " + commonEnvVarUsageText + databaseURLEnvKey

	databaseNameFlagName  = "database-name"
	databaseNameEnvKey    = "DATABASE_NAME"
	databaseNameFlagUsage = "The name of the MongoDB database. Defaults to shield. " +
		commonEnvVarUsageText + databaseNameEnvKey

	redisURLFlagName  = "redis-url"
	redisURLEnvKey    = "SHIELD_REST_REDIS_URL"
	redisURLFlagUsage = "Comma-separated list of Redis nodes used for the policy status cache and the " +
		"distributed attempt lock. When not set, the cache is disabled and a process-local lock is used. " +
		commonEnvVarUsageText + redisURLEnvKey

	redisMasterNameFlagName  = "redis-master-name"
	redisMasterNameEnvKey    = "SHIELD_REST_REDIS_MASTER_NAME"
	redisMasterNameFlagUsage = "Redis Sentinel master name. " + commonEnvVarUsageText + redisMasterNameEnvKey

	redisPasswordFlagName  = "redis-password" //nolint: gosec
	redisPasswordEnvKey    = "SHIELD_REST_REDIS_PASSWORD"
	redisPasswordFlagUsage = "Redis password. " + commonEnvVarUsageText + redisPasswordEnvKey

	policyStatusCacheTTLFlagName  = "policy-status-cache-ttl"
	policyStatusCacheTTLEnvKey    = "SHIELD_REST_POLICY_STATUS_CACHE_TTL"
	policyStatusCacheTTLFlagUsage = "TTL (in seconds) for cached policy status records. Defaults to 5s. " +
		commonEnvVarUsageText + policyStatusCacheTTLEnvKey

	contentStoreBucketFlagName  = "content-store-s3-bucket"
	contentStoreBucketEnvKey    = "SHIELD_REST_CONTENT_STORE_S3_BUCKET"
	contentStoreBucketFlagUsage = "The S3 bucket holding the encrypted resources and reference embeddings. " +
		commonEnvVarUsageText + contentStoreBucketEnvKey

	contentStoreRegionFlagName  = "content-store-s3-region"
	contentStoreRegionEnvKey    = "SHIELD_REST_CONTENT_STORE_S3_REGION"
	contentStoreRegionFlagUsage = "Content store S3 region. " + commonEnvVarUsageText + contentStoreRegionEnvKey

	contentStoreHostNameFlagName  = "content-store-s3-hostname"
	contentStoreHostNameEnvKey    = "SHIELD_REST_CONTENT_STORE_S3_HOSTNAME"
	contentStoreHostNameFlagUsage = "Content store S3 hostname, for S3-compatible stores (MinIO, etc.). " +
		commonEnvVarUsageText + contentStoreHostNameEnvKey

	ledgerGatewayURLFlagName  = "ledger-gateway-url"
	ledgerGatewayURLEnvKey    = "SHIELD_REST_LEDGER_GATEWAY_URL"
	ledgerGatewayURLFlagUsage = "The URL of the ledger gateway that fronts the policy registry contract. " +
		commonEnvVarUsageText + ledgerGatewayURLEnvKey

	visionURLFlagName  = "vision-url"
	visionURLEnvKey    = "SHIELD_REST_VISION_URL"
	visionURLFlagUsage = "The URL of the vision service used to extract biometric embeddings. " +
		commonEnvVarUsageText + visionURLEnvKey

	apiKeyFlagName  = "api-key"
	apiKeyEnvKey    = "SHIELD_REST_API_KEY" //nolint: gosec
	apiKeyFlagUsage = "Check for X-API-Key header on management endpoints (optional). " +
		commonEnvVarUsageText + apiKeyEnvKey

	matchThresholdFlagName  = "match-threshold"
	matchThresholdEnvKey    = "SHIELD_REST_MATCH_THRESHOLD"
	matchThresholdFlagUsage = "Cosine similarity threshold for a biometric match. Defaults to 0.90. " +
		commonEnvVarUsageText + matchThresholdEnvKey

	dataCompressionFlagName  = "data-compression"
	dataCompressionEnvKey    = "SHIELD_REST_DATA_COMPRESSION"
	dataCompressionFlagUsage = "Compression applied before encrypting resources. Supported: none, gzip, zstd. " +
		"Defaults to zstd. " + commonEnvVarUsageText + dataCompressionEnvKey

	tlsSystemCertPoolFlagName  = "tls-systemcertpool"
	tlsSystemCertPoolFlagUsage = "Use system certificate pool. Possible values [true] [false]. " +
		"Defaults to false if not set. " + commonEnvVarUsageText + tlsSystemCertPoolEnvKey
	tlsSystemCertPoolEnvKey = "SHIELD_REST_TLS_SYSTEMCERTPOOL"

	tlsCACertsFlagName  = "tls-cacerts"
	tlsCACertsFlagUsage = "Comma-Separated list of ca certs path. " + commonEnvVarUsageText + tlsCACertsEnvKey
	tlsCACertsEnvKey    = "SHIELD_REST_TLS_CACERTS"

	tlsCertificateFlagName  = "tls-certificate"
	tlsCertificateFlagUsage = "TLS certificate for shield server. " + commonEnvVarUsageText + tlsCertificateEnvKey
	tlsCertificateEnvKey    = "SHIELD_REST_TLS_CERTIFICATE"

	tlsKeyFlagName  = "tls-key"
	tlsKeyFlagUsage = "TLS key for shield server. " + commonEnvVarUsageText + tlsKeyEnvKey
	tlsKeyEnvKey    = "SHIELD_REST_TLS_KEY"

	metricsProviderFlagName  = "metrics-provider-name"
	metricsProviderEnvKey    = "SHIELD_REST_METRICS_PROVIDER_NAME"
	metricsProviderFlagUsage = "The metrics provider name (for example: 'prometheus' etc.). " +
		commonEnvVarUsageText + metricsProviderEnvKey

	promHTTPURLFlagName  = "prom-http-url"
	promHTTPURLEnvKey    = "SHIELD_REST_PROM_HTTP_URL"
	promHTTPURLFlagUsage = "URL that exposes the prometheus metrics endpoint. Format: HostName:Port. " +
		commonEnvVarUsageText + promHTTPURLEnvKey

	tracingProviderFlagName  = "tracing-provider"
	tracingProviderEnvKey    = "SHIELD_REST_TRACING_PROVIDER"
	tracingProviderFlagUsage = "The tracing provider (for example, JAEGER). The Jaeger endpoint is taken from " +
		"the standard OTEL_EXPORTER_JAEGER_* environment variables. " +
		commonEnvVarUsageText + tracingProviderEnvKey

	tracingServiceNameFlagName  = "tracing-service-name"
	tracingServiceNameEnvKey    = "SHIELD_REST_TRACING_SERVICE_NAME"
	tracingServiceNameFlagUsage = "The name of the tracing service. Default: shield. " +
		commonEnvVarUsageText + tracingServiceNameEnvKey

	defaultDatabaseName       = "shield"
	defaultMatchThreshold     = 0.90
	defaultTracingServiceName = "shield"
	defaultStatusCacheTTLSec  = 5

	metricsProviderPrometheus = "prometheus"
)

type startupParameters struct {
	hostURL                         string
	dbParameters                    *dbParameters
	redisParameters                 *redisParameters
	s3Parameters                    *s3Parameters
	ledgerGatewayURL                string
	visionURL                       string
	apiKey                          string
	matchThreshold                  float64
	dataCompression                 dataprotect.Compression
	statusCacheTTLSec               int32
	tlsParameters                   *tlsParameters
	logLevel                        string
	metricsProviderName             string
	prometheusMetricsProviderParams *prometheusMetricsProviderParams
	tracingParams                   *tracingParams
}

type dbParameters struct {
	databaseURL  string
	databaseName string
}

type redisParameters struct {
	addrs      []string
	masterName string
	password   string
}

type s3Parameters struct {
	bucket   string
	region   string
	hostName string
}

type tlsParameters struct {
	systemCertPool bool
	caCerts        []string
	serveCertPath  string
	serveKeyPath   string
}

type prometheusMetricsProviderParams struct {
	url string
}

type tracingParams struct {
	exporter    tracing.SpanExporterType
	serviceName string
}

// nolint: funlen
func getStartupParameters(cmd *cobra.Command) (*startupParameters, error) {
	hostURL, err := cmdutils.GetUserSetVarFromString(cmd, hostURLFlagName, hostURLEnvKey, false)
	if err != nil {
		return nil, err
	}

	dbParams, err := getDBParameters(cmd)
	if err != nil {
		return nil, err
	}

	redisParams := getRedisParameters(cmd)

	s3Params, err := getS3Parameters(cmd)
	if err != nil {
		return nil, err
	}

	ledgerGatewayURL, err := cmdutils.GetUserSetVarFromString(cmd, ledgerGatewayURLFlagName,
		ledgerGatewayURLEnvKey, false)
	if err != nil {
		return nil, err
	}

	visionURL, err := cmdutils.GetUserSetVarFromString(cmd, visionURLFlagName, visionURLEnvKey, false)
	if err != nil {
		return nil, err
	}

	apiKey := cmdutils.GetUserSetOptionalVarFromString(cmd, apiKeyFlagName, apiKeyEnvKey)

	matchThreshold, err := getMatchThreshold(cmd)
	if err != nil {
		return nil, err
	}

	dataCompression, err := getDataCompression(cmd)
	if err != nil {
		return nil, err
	}

	statusCacheTTLSec, err := getStatusCacheTTL(cmd)
	if err != nil {
		return nil, err
	}

	tlsParameters, err := getTLS(cmd)
	if err != nil {
		return nil, err
	}

	loggingLevel := cmdutils.GetUserSetOptionalVarFromString(cmd, common.LogLevelFlagName, common.LogLevelEnvKey)

	metricsProviderName := cmdutils.GetUserSetOptionalVarFromString(cmd, metricsProviderFlagName,
		metricsProviderEnvKey)

	var prometheusParams *prometheusMetricsProviderParams

	if metricsProviderName == metricsProviderPrometheus {
		prometheusParams, err = getPrometheusMetricsProviderParams(cmd)
		if err != nil {
			return nil, err
		}
	}

	tracingParams, err := getTracingParams(cmd)
	if err != nil {
		return nil, err
	}

	return &startupParameters{
		hostURL:                         hostURL,
		dbParameters:                    dbParams,
		redisParameters:                 redisParams,
		s3Parameters:                    s3Params,
		ledgerGatewayURL:                ledgerGatewayURL,
		visionURL:                       visionURL,
		apiKey:                          apiKey,
		matchThreshold:                  matchThreshold,
		dataCompression:                 dataCompression,
		statusCacheTTLSec:               statusCacheTTLSec,
		tlsParameters:                   tlsParameters,
		logLevel:                        loggingLevel,
		metricsProviderName:             metricsProviderName,
		prometheusMetricsProviderParams: prometheusParams,
		tracingParams:                   tracingParams,
	}, nil
}

func getDBParameters(cmd *cobra.Command) (*dbParameters, error) {
	databaseURL, err := cmdutils.GetUserSetVarFromString(cmd, databaseURLFlagName,
		databaseURLEnvKey, false)
	if err != nil {
		return nil, err
	}

	databaseName := cmdutils.GetUserSetOptionalVarFromString(cmd, databaseNameFlagName, databaseNameEnvKey)
	if databaseName == "" {
		databaseName = defaultDatabaseName
	}

	return &dbParameters{
		databaseURL:  databaseURL,
		databaseName: databaseName,
	}, nil
}

func getRedisParameters(cmd *cobra.Command) *redisParameters {
	return &redisParameters{
		addrs:      cmdutils.GetUserSetOptionalCSVVar(cmd, redisURLFlagName, redisURLEnvKey),
		masterName: cmdutils.GetUserSetOptionalVarFromString(cmd, redisMasterNameFlagName, redisMasterNameEnvKey),
		password:   cmdutils.GetUserSetOptionalVarFromString(cmd, redisPasswordFlagName, redisPasswordEnvKey),
	}
}

func getS3Parameters(cmd *cobra.Command) (*s3Parameters, error) {
	bucket, err := cmdutils.GetUserSetVarFromString(cmd, contentStoreBucketFlagName,
		contentStoreBucketEnvKey, false)
	if err != nil {
		return nil, err
	}

	return &s3Parameters{
		bucket:   bucket,
		region:   cmdutils.GetUserSetOptionalVarFromString(cmd, contentStoreRegionFlagName, contentStoreRegionEnvKey),
		hostName: cmdutils.GetUserSetOptionalVarFromString(cmd, contentStoreHostNameFlagName, contentStoreHostNameEnvKey),
	}, nil
}

func getMatchThreshold(cmd *cobra.Command) (float64, error) {
	thresholdStr := cmdutils.GetUserSetOptionalVarFromString(cmd, matchThresholdFlagName, matchThresholdEnvKey)
	if thresholdStr == "" {
		return defaultMatchThreshold, nil
	}

	threshold, err := strconv.ParseFloat(thresholdStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value [%s] for %s: %w", thresholdStr, matchThresholdFlagName, err)
	}

	if threshold <= 0 || threshold > 1 {
		return 0, fmt.Errorf("%s must be in (0, 1]", matchThresholdFlagName)
	}

	return threshold, nil
}

func getDataCompression(cmd *cobra.Command) (dataprotect.Compression, error) {
	compression := cmdutils.GetUserSetOptionalVarFromString(cmd, dataCompressionFlagName, dataCompressionEnvKey)

	switch compression {
	case "", "zstd":
		return dataprotect.CompressionZstd, nil
	case "gzip":
		return dataprotect.CompressionGzip, nil
	case "none":
		return dataprotect.CompressionNone, nil
	default:
		return "", fmt.Errorf("unsupported compression type: %s", compression)
	}
}

func getStatusCacheTTL(cmd *cobra.Command) (int32, error) {
	ttlStr := cmdutils.GetUserSetOptionalVarFromString(cmd, policyStatusCacheTTLFlagName, policyStatusCacheTTLEnvKey)
	if ttlStr == "" {
		return defaultStatusCacheTTLSec, nil
	}

	ttl, err := strconv.ParseInt(ttlStr, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid value [%s] for %s: %w", ttlStr, policyStatusCacheTTLFlagName, err)
	}

	return int32(ttl), nil
}

func getTLS(cmd *cobra.Command) (*tlsParameters, error) {
	tlsSystemCertPoolString := cmdutils.GetUserSetOptionalVarFromString(cmd, tlsSystemCertPoolFlagName,
		tlsSystemCertPoolEnvKey)

	tlsSystemCertPool := false

	if tlsSystemCertPoolString != "" {
		var err error

		tlsSystemCertPool, err = strconv.ParseBool(tlsSystemCertPoolString)
		if err != nil {
			return nil, err
		}
	}

	tlsCACerts := cmdutils.GetUserSetOptionalVarFromArrayString(cmd, tlsCACertsFlagName, tlsCACertsEnvKey)

	tlsServeCertPath := cmdutils.GetUserSetOptionalVarFromString(cmd, tlsCertificateFlagName, tlsCertificateEnvKey)

	tlsServeKeyPath := cmdutils.GetUserSetOptionalVarFromString(cmd, tlsKeyFlagName, tlsKeyEnvKey)

	return &tlsParameters{
		systemCertPool: tlsSystemCertPool,
		caCerts:        tlsCACerts,
		serveCertPath:  tlsServeCertPath,
		serveKeyPath:   tlsServeKeyPath,
	}, nil
}

func getPrometheusMetricsProviderParams(cmd *cobra.Command) (*prometheusMetricsProviderParams, error) {
	promMetricsURL, err := cmdutils.GetUserSetVarFromString(cmd, promHTTPURLFlagName, promHTTPURLEnvKey, false)
	if err != nil {
		return nil, err
	}

	return &prometheusMetricsProviderParams{url: promMetricsURL}, nil
}

func getTracingParams(cmd *cobra.Command) (*tracingParams, error) {
	serviceName := cmdutils.GetUserSetOptionalVarFromString(cmd, tracingServiceNameFlagName,
		tracingServiceNameEnvKey)
	if serviceName == "" {
		serviceName = defaultTracingServiceName
	}

	exporter := cmdutils.GetUserSetOptionalVarFromString(cmd, tracingProviderFlagName, tracingProviderEnvKey)

	switch exporter {
	case tracing.None, tracing.Jaeger, tracing.Stdout:
	default:
		return nil, fmt.Errorf("unsupported tracing provider: %s", exporter)
	}

	return &tracingParams{
		exporter:    exporter,
		serviceName: serviceName,
	}, nil
}

func createFlags(startCmd *cobra.Command) {
	startCmd.Flags().StringP(hostURLFlagName, hostURLFlagShorthand, "", hostURLFlagUsage)
	startCmd.Flags().StringP(databaseURLFlagName, databaseURLFlagShorthand, "", databaseURLFlagUsage)
	startCmd.Flags().StringP(databaseNameFlagName, "", "", databaseNameFlagUsage)
	startCmd.Flags().StringSliceP(redisURLFlagName, "", []string{}, redisURLFlagUsage)
	startCmd.Flags().StringP(redisMasterNameFlagName, "", "", redisMasterNameFlagUsage)
	startCmd.Flags().StringP(redisPasswordFlagName, "", "", redisPasswordFlagUsage)
	startCmd.Flags().StringP(policyStatusCacheTTLFlagName, "", "", policyStatusCacheTTLFlagUsage)
	startCmd.Flags().String(contentStoreBucketFlagName, "", contentStoreBucketFlagUsage)
	startCmd.Flags().String(contentStoreRegionFlagName, "", contentStoreRegionFlagUsage)
	startCmd.Flags().String(contentStoreHostNameFlagName, "", contentStoreHostNameFlagUsage)
	startCmd.Flags().StringP(ledgerGatewayURLFlagName, "", "", ledgerGatewayURLFlagUsage)
	startCmd.Flags().StringP(visionURLFlagName, "", "", visionURLFlagUsage)
	startCmd.Flags().StringP(apiKeyFlagName, "", "", apiKeyFlagUsage)
	startCmd.Flags().StringP(matchThresholdFlagName, "", "", matchThresholdFlagUsage)
	startCmd.Flags().StringP(dataCompressionFlagName, "", "", dataCompressionFlagUsage)
	startCmd.Flags().StringP(tlsSystemCertPoolFlagName, "", "", tlsSystemCertPoolFlagUsage)
	startCmd.Flags().StringSliceP(tlsCACertsFlagName, "", []string{}, tlsCACertsFlagUsage)
	startCmd.Flags().StringP(tlsCertificateFlagName, "", "", tlsCertificateFlagUsage)
	startCmd.Flags().StringP(tlsKeyFlagName, "", "", tlsKeyFlagUsage)
	startCmd.Flags().StringP(common.LogLevelFlagName, common.LogLevelFlagShorthand, "", common.LogLevelPrefixFlagUsage)
	startCmd.Flags().StringP(metricsProviderFlagName, "", "", metricsProviderFlagUsage)
	startCmd.Flags().StringP(promHTTPURLFlagName, "", "", promHTTPURLFlagUsage)
	startCmd.Flags().StringP(tracingProviderFlagName, "", "", tracingProviderFlagUsage)
	startCmd.Flags().StringP(tracingServiceNameFlagName, "", "", tracingServiceNameFlagUsage)
}
