/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package startcmd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	tlsutils "github.com/trustbloc/cmdutil-go/pkg/utils/tls"
	"github.com/trustbloc/logutil-go/pkg/log"
	"go.opentelemetry.io/otel"

	"github.com/trustbloc/shield/cmd/common"
	"github.com/trustbloc/shield/internal/logfields"
	"github.com/trustbloc/shield/pkg/client/vision"
	"github.com/trustbloc/shield/pkg/dataprotect"
	"github.com/trustbloc/shield/pkg/embedding"
	"github.com/trustbloc/shield/pkg/ledger/gateway"
	"github.com/trustbloc/shield/pkg/locker"
	"github.com/trustbloc/shield/pkg/observability/metrics"
	"github.com/trustbloc/shield/pkg/observability/metrics/noop"
	prometheusmetrics "github.com/trustbloc/shield/pkg/observability/metrics/prometheus"
	"github.com/trustbloc/shield/pkg/observability/tracing"
	"github.com/trustbloc/shield/pkg/restapi/resterr"
	"github.com/trustbloc/shield/pkg/restapi/v1/healthcheck"
	"github.com/trustbloc/shield/pkg/restapi/v1/mw"
	policyctrl "github.com/trustbloc/shield/pkg/restapi/v1/policy"
	policysvc "github.com/trustbloc/shield/pkg/service/policy"
	"github.com/trustbloc/shield/pkg/service/verification"
	"github.com/trustbloc/shield/pkg/storage/mongodb"
	"github.com/trustbloc/shield/pkg/storage/mongodb/bundlestore"
	redisclient "github.com/trustbloc/shield/pkg/storage/redis"
	"github.com/trustbloc/shield/pkg/storage/redis/policystatuscache"
	"github.com/trustbloc/shield/pkg/storage/s3/contentstore"
)

var logger = log.New("shield-rest")

type server interface {
	ListenAndServe(host, certFile, keyFile string, handler http.Handler) error
}

// HTTPServer is the default server implementation.
type HTTPServer struct{}

// ListenAndServe starts the server using the standard Go HTTP server implementation.
func (s *HTTPServer) ListenAndServe(host, certFile, keyFile string, handler http.Handler) error {
	if certFile != "" && keyFile != "" {
		return http.ListenAndServeTLS(host, certFile, keyFile, handler)
	}

	return http.ListenAndServe(host, handler)
}

// GetStartCmd returns the Cobra start command.
func GetStartCmd(srv server) *cobra.Command {
	startCmd := createStartCmd(srv)

	createFlags(startCmd)

	return startCmd
}

func createStartCmd(srv server) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start shield-rest",
		Long:  "Start the verify-then-release REST server",
		RunE: func(cmd *cobra.Command, args []string) error {
			parameters, err := getStartupParameters(cmd)
			if err != nil {
				return err
			}

			return startServer(parameters, srv)
		},
	}
}

// nolint: funlen,gocyclo
func startServer(parameters *startupParameters, srv server) error {
	if parameters.logLevel != "" {
		common.SetDefaultLogLevel(logger, parameters.logLevel)
	}

	tracingShutdown, _, err := tracing.Initialize(
		parameters.tracingParams.exporter, parameters.tracingParams.serviceName)
	if err != nil {
		return fmt.Errorf("initialize tracing: %w", err)
	}

	defer tracingShutdown()

	isTraceEnabled := parameters.tracingParams.exporter != tracing.None

	rootCAs, err := tlsutils.GetCertPool(parameters.tlsParameters.systemCertPool, parameters.tlsParameters.caCerts)
	if err != nil {
		return err
	}

	tlsConfig := &tls.Config{RootCAs: rootCAs, MinVersion: tls.VersionTLS12}

	mongoOpts := []mongodb.ClientOpt{}
	if isTraceEnabled {
		mongoOpts = append(mongoOpts, mongodb.WithTraceProvider(otel.GetTracerProvider()))
	}

	mongoClient, err := mongodb.New(parameters.dbParameters.databaseURL,
		parameters.dbParameters.databaseName, mongoOpts...)
	if err != nil {
		return fmt.Errorf("create mongodb client: %w", err)
	}

	defer func() {
		if closeErr := mongoClient.Close(); closeErr != nil {
			logger.Warn("Error closing mongodb client", log.WithError(closeErr))
		}
	}()

	bundleStore := bundlestore.NewStore(mongoClient)

	if err = bundleStore.MigrateIndexes(context.Background()); err != nil {
		return fmt.Errorf("create bundle store indexes: %w", err)
	}

	redisClient, err := createRedisClient(parameters, isTraceEnabled)
	if err != nil {
		return err
	}

	contentStore, err := createContentStore(parameters)
	if err != nil {
		return err
	}

	httpClient := &http.Client{
		Transport: &http.Transport{TLSClientConfig: tlsConfig},
	}

	ledgerClient := gateway.NewClient(parameters.ledgerGatewayURL, httpClient)
	visionClient := vision.NewClient(parameters.visionURL, httpClient)

	compressor, err := dataprotect.NewCompressor(parameters.dataCompression)
	if err != nil {
		return err
	}

	dataProtector := dataprotect.NewDataProtector(dataprotect.NewAES(), parameters.dataCompression, compressor)

	metricsInstance, err := createMetricsProvider(parameters)
	if err != nil {
		return err
	}

	policyConfig := &policysvc.Config{
		LedgerClient:  ledgerClient,
		VisionClient:  visionClient,
		ContentStore:  contentStore,
		BundleStore:   bundleStore,
		DataProtector: dataProtector,
		KeyGenerator:  dataprotect.NewAES(),
	}

	verificationConfig := &verification.Config{
		LedgerClient:  ledgerClient,
		BundleStore:   bundleStore,
		ContentStore:  contentStore,
		DataProtector: dataProtector,
		Comparator:    embedding.NewComparator(parameters.matchThreshold),
		VisionClient:  visionClient,
		Metrics:       metricsInstance,
	}

	if redisClient != nil {
		statusCache := policystatuscache.New(redisClient, parameters.statusCacheTTLSec)

		policyConfig.StatusCache = statusCache
		verificationConfig.StatusCache = statusCache
		verificationConfig.Locker = locker.NewDistributed(redisClient)
	} else {
		verificationConfig.Locker = locker.NewKeyedMutex()
	}

	router := buildEchoHandler(parameters, &routerControllers{
		policyController: policyctrl.NewController(&policyctrl.Config{
			PolicyService:       policysvc.New(policyConfig),
			VerificationService: verification.New(verificationConfig),
			Metrics:             metricsInstance,
		}),
	})

	logger.Info("Starting shield-rest server", logfields.WithAddress(parameters.hostURL))

	return srv.ListenAndServe(parameters.hostURL,
		parameters.tlsParameters.serveCertPath, parameters.tlsParameters.serveKeyPath, router)
}

type routerControllers struct {
	policyController *policyctrl.Controller
}

func buildEchoHandler(parameters *startupParameters, controllers *routerControllers) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.HTTPErrorHandler = resterr.HTTPErrorHandler

	e.Use(echomw.Recover())

	if parameters.apiKey != "" {
		e.Use(mw.APIKeyAuth(parameters.apiKey))
	}

	healthcheckController := &healthcheck.Controller{}
	e.GET("/healthcheck", healthcheckController.GetHealthcheck)

	policyctrl.RegisterHandlers(e, controllers.policyController)

	return e
}

func createRedisClient(parameters *startupParameters, isTraceEnabled bool) (*redisclient.Client, error) {
	if len(parameters.redisParameters.addrs) == 0 {
		return nil, nil
	}

	redisOpts := []redisclient.ClientOpt{
		redisclient.WithMasterName(parameters.redisParameters.masterName),
		redisclient.WithPassword(parameters.redisParameters.password),
	}

	if isTraceEnabled {
		redisOpts = append(redisOpts, redisclient.WithTraceProvider(otel.GetTracerProvider()))
	}

	redisClient, err := redisclient.New(parameters.redisParameters.addrs, redisOpts...)
	if err != nil {
		return nil, fmt.Errorf("create redis client: %w", err)
	}

	return redisClient, nil
}

func createContentStore(parameters *startupParameters) (*contentstore.Store, error) {
	awsConfig, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(parameters.s3Parameters.region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsConfig, func(options *s3.Options) {
		if parameters.s3Parameters.hostName != "" {
			options.EndpointResolver = s3.EndpointResolverFromURL(parameters.s3Parameters.hostName)
			options.UsePathStyle = true
		}
	})

	return contentstore.NewStore(s3Client, parameters.s3Parameters.bucket), nil
}

func createMetricsProvider(parameters *startupParameters) (metrics.Metrics, error) {
	if parameters.metricsProviderName != metricsProviderPrometheus {
		return noop.GetMetrics(), nil
	}

	metricsHandler := prometheusmetrics.NewHandler()

	metricsMux := http.NewServeMux()
	metricsMux.Handle(metricsHandler.Path(), metricsHandler.Handler())

	provider := prometheusmetrics.NewPrometheusProvider(&http.Server{
		Addr:    parameters.prometheusMetricsProviderParams.url,
		Handler: metricsMux,
	})

	go func() {
		if err := provider.Create(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Failed to start metrics HTTP server", log.WithError(err))
		}
	}()

	return provider.Metrics(), nil
}
