// Command tokensconnector runs the tokens connector: it bridges a
// token-orchestration platform and an EthConnect RPC gateway over REST
// and WebSocket.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/goware/logger"

	"github.com/hyperledger/firefly-tokens-connector/api"
	"github.com/hyperledger/firefly-tokens-connector/chainconn"
	"github.com/hyperledger/firefly-tokens-connector/config"
	"github.com/hyperledger/firefly-tokens-connector/eventstream"
	"github.com/hyperledger/firefly-tokens-connector/tokenabi"
	"github.com/hyperledger/firefly-tokens-connector/tokenlistener"
	"github.com/hyperledger/firefly-tokens-connector/tokensvc"
	"github.com/hyperledger/firefly-tokens-connector/wsproxy"
)

func main() {
	var envFile string

	root := &cobra.Command{
		Use:   "tokensconnector",
		Short: "bridges a token-orchestration platform and an EthConnect gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(envFile)
		},
	}
	root.Flags().StringVar(&envFile, "env-file", "", "optional .env file to load before reading the environment")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// run wires the connector's component graph in dependency order, breaking
// the Service<->Proxy<->Listener<->Service construction cycle by building
// the listener and proxy first and handing tokensvc a reference to the
// already-running eventstream.Service, never the other way around.
func run(envFile string) error {
	log := logger.NewLogger(logger.LogLevel_INFO)

	cfg, err := config.Load(envFile)
	if err != nil {
		return fmt.Errorf("tokensconnector: %w", err)
	}

	connector := chainconn.New(cfg.EthConnectURL,
		chainconn.WithFFTMURL(cfg.FFTMURL),
		chainconn.WithBasicAuth(cfg.EthConnectUsername, cfg.EthConnectPassword),
		chainconn.WithPassthroughHeaders(cfg.PassthroughHeaders),
		chainconn.WithLogger(log),
	)

	mapper, err := tokenabi.NewMapper(connector, log)
	if err != nil {
		return fmt.Errorf("tokensconnector: failed to build ABI mapper: %w", err)
	}

	esClient := eventstream.New(cfg.EthConnectURL, log)

	listener := tokenlistener.New(mapper, connector, cfg.Topic)
	proxy := wsproxy.New(listener, esClient, log)

	svc := tokensvc.New(connector, mapper, esClient, cfg.Topic, cfg.FactoryContractAddress, log)

	server := api.New(svc, proxy, connector, cfg.PassthroughHeaders, log).WithEventIngress(esClient)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	eventstream.CheckMigration(ctx, esClient, cfg.Topic, log)

	go proxy.Run(ctx)

	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: server}
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	log.Infof("tokensconnector: listening on %s", cfg.ListenAddr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("tokensconnector: server failed: %w", err)
	}
	return nil
}
