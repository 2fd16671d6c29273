// Command pcpclient requests and maintains a single PCP port mapping
// against a configured server, logging its lifecycle until interrupted.
// It exists as a thin demonstration of the pcpclient package, not as a
// general-purpose port mapping tool.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/portmapper/pcpclient"
	"github.com/portmapper/pcpclient/internal/client"
)

var (
	server        = flag.String("server", "", "PCP server address (required)")
	clientAddr    = flag.String("client-addr", "", "this host's address as the server should see it (required)")
	iface         = flag.String("interface", "", "network interface to bind the multicast join to (required for an IPv6 server)")
	protocol      = flag.Uint("protocol", 6, "IANA protocol number to map (6=TCP, 17=UDP, 0=all protocols)")
	internalPort  = flag.Uint("internal-port", 0, "internal port to map (required)")
	lifetime      = flag.Duration("lifetime", 2*time.Hour, "requested mapping lifetime")
	keepAlive     = flag.Bool("keep-alive", true, "renew the mapping indefinitely until interrupted")
	verbose       = flag.Bool("v", false, "enable debug logging")
	metricsEnable = flag.Bool("metrics-enable", false, "enable a prometheus metrics endpoint")
	metricsAddr   = flag.String("metrics-addr", "localhost:0", "address to listen on for prometheus metrics")

	version = "dev"
	commit  = "none"
)

func main() {
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: level}))
	slog.SetDefault(logger)

	if *server == "" || *clientAddr == "" || *internalPort == 0 {
		fmt.Fprintln(os.Stderr, "server, client-addr, and internal-port are required")
		flag.Usage()
		os.Exit(2)
	}

	serverAddr, err := netip.ParseAddr(*server)
	if err != nil {
		logger.Error("invalid -server address", "error", err)
		os.Exit(1)
	}
	clientIP, err := netip.ParseAddr(*clientAddr)
	if err != nil {
		logger.Error("invalid -client-addr address", "error", err)
		os.Exit(1)
	}

	if *metricsEnable {
		buildInfo := promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pcpclient_build_info",
				Help: "Build information of the pcpclient binary.",
			},
			[]string{"version", "commit"},
		)
		buildInfo.WithLabelValues(version, commit).Set(1)

		go func() {
			listener, err := net.Listen("tcp", *metricsAddr)
			if err != nil {
				logger.Error("failed to start prometheus metrics listener", "error", err)
				os.Exit(1)
			}
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			logger.Info("metrics server started", "address", listener.Addr().String())
			if err := http.Serve(listener, mux); err != nil {
				log.Printf("metrics server stopped: %v", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := pcpclient.New(serverAddr,
		pcpclient.WithLogger(logger),
		pcpclient.WithInterface(*iface),
		pcpclient.WithClientAddr(clientIP),
	)
	if err != nil {
		logger.Error("failed to start client", "error", err)
		os.Exit(1)
	}
	defer c.Close()

	renewal := pcpclient.Renewals(0)
	if *keepAlive {
		renewal = pcpclient.KeepAlive()
	}
	m := pcpclient.NewInboundMap(uint8(*protocol), uint16(*internalPort), *lifetime, renewal)

	h, err := c.RequestInbound(m)
	if err != nil {
		logger.Error("failed to request mapping", "error", err)
		os.Exit(1)
	}
	defer h.Close()

	logger.Info("mapping requested", "protocol", *protocol, "internalPort", *internalPort)

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			h.Revoke()
			return
		case err := <-c.Err():
			logger.Error("client stopped", "error", err)
			os.Exit(1)
		case n, ok := <-h.Alerts():
			if !ok {
				return
			}
			logNotification(logger, n)
		}
	}
}

func logNotification(logger *slog.Logger, n client.Notification) {
	switch v := n.(type) {
	case client.Accepted:
		logger.Info("mapping accepted", "mappingID", v.ID, "externalAddr", v.ExternalAddr, "externalPort", v.ExternalPort, "lifetime", v.Lifetime)
	case client.Failed:
		logger.Warn("mapping failed", "mappingID", v.ID, "code", v.Code, "recoverable", v.Recoverable)
	case client.Expired:
		logger.Info("mapping expired", "mappingID", v.ID)
	case client.Revoked:
		logger.Info("mapping revoked", "mappingID", v.ID)
	case client.Recovering:
		logger.Warn("recovering mappings after server restart", "activeCount", v.ActiveCount)
	default:
		logger.Info("mapping update", "mappingID", n.MappingID())
	}
}
