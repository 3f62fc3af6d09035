// Package node wires the connection actor, the multi-hop router and the UI
// bridge into one running device.
package node

import (
	"context"
	"fmt"

	"github.com/codefionn/wifichat/internal/actor"
	"github.com/codefionn/wifichat/internal/config"
	"github.com/codefionn/wifichat/internal/conn"
	"github.com/codefionn/wifichat/internal/logger"
	"github.com/codefionn/wifichat/internal/metrics"
	"github.com/codefionn/wifichat/internal/peers"
	"github.com/codefionn/wifichat/internal/routing"
	"github.com/codefionn/wifichat/internal/web"
	"golang.org/x/sync/errgroup"
)

// Options customizes a Node beyond its configuration.
type Options struct {
	// UI receives chat events next to the web UI bridge.
	UI actor.UI
	// Linker opens direct links for multi-hop sweeps. Defaults to TCP on
	// the configured port.
	Linker routing.Linker
	// ConfigPath is watched for changes while the node runs.
	ConfigPath string
	Logger     *logger.Logger
}

// Node is one chat device.
type Node struct {
	cfg        *config.Config
	configPath string
	log        *logger.Logger

	sys    *actor.System
	conn   *actor.ConnectionClient
	router *routing.Router
	web    *web.Server
}

// New builds a node from cfg. The connection actor is running when New
// returns; Run starts the router and the UI bridge.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Node, error) {
	if opts.Logger == nil {
		opts.Logger = logger.Component("node")
	}
	if opts.Linker == nil {
		opts.Linker = routing.NewTCPLinker(cfg.Port, cfg.DialTimeout())
	}

	n := &Node{
		cfg:        cfg,
		configPath: opts.ConfigPath,
		log:        opts.Logger,
		sys:        actor.NewSystem(),
	}

	n.router = routing.NewRouter(opts.Linker,
		routing.WithLogger(opts.Logger.WithPrefix("routing")),
		routing.WithReportHandler(n.recordReport),
	)

	var uis fanoutUI
	if opts.UI != nil {
		uis = append(uis, opts.UI)
	}
	var hub *web.Hub
	if cfg.UIAddr != "" {
		hub = web.NewHub(opts.Logger.WithPrefix("web"))
		uis = append(uis, hub)
	}

	client, err := actor.SpawnConnection(ctx, n.sys, actor.ConnectionOptions{
		DeviceName:  cfg.DeviceName,
		SelfAddress: cfg.DeviceAddress,
		MailboxSize: cfg.MailboxSize,
		UI:          uis,
		Relay:       n.router,
		Registry:    peers.NewRegistry(cfg.Peers...),
		Logger:      opts.Logger.WithPrefix("connection"),
		ManagerOptions: []conn.Option{
			conn.WithPort(cfg.Port),
			conn.WithDialTimeout(cfg.DialTimeout()),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start connection actor: %w", err)
	}
	n.conn = client

	if hub != nil {
		srv, err := web.NewServer(cfg.UIAddr, hub, client, opts.Logger.WithPrefix("web"))
		if err != nil {
			_ = n.sys.StopAll(ctx)
			return nil, err
		}
		n.web = srv
	}

	return n, nil
}

// Connection returns the client of the connection actor.
func (n *Node) Connection() *actor.ConnectionClient {
	return n.conn
}

// Web returns the UI bridge, or nil when it is disabled.
func (n *Node) Web() *web.Server {
	return n.web
}

// Run serves until ctx is done or a component fails.
func (n *Node) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return n.router.Run(gctx)
	})

	if n.web != nil {
		g.Go(func() error {
			return n.web.ListenAndServe(gctx)
		})
	}

	if n.configPath != "" {
		g.Go(func() error {
			return config.Watch(gctx, n.configPath, n.applyConfig)
		})
	}

	return g.Wait()
}

// Close stops the connection actor and releases every socket.
func (n *Node) Close(ctx context.Context) error {
	return n.sys.StopAll(ctx)
}

// applyConfig applies the settings that can change at runtime. Network
// settings take effect on the next start.
func (n *Node) applyConfig(cfg *config.Config) {
	level := logger.ParseLevel(cfg.LogLevel)
	if level != n.log.GetLevel() {
		n.log.Info("log level changed to %s", level)
		n.log.SetLevel(level)
	}
	if cfg.Port != n.cfg.Port || cfg.UIAddr != n.cfg.UIAddr || cfg.DeviceName != n.cfg.DeviceName {
		n.log.Warn("network settings changed in %s, restart to apply", n.configPath)
	}
}

func (n *Node) recordReport(report routing.Report) {
	metrics.RelayAttempts.WithLabelValues("delivered").Add(float64(len(report.Delivered)))
	metrics.RelayAttempts.WithLabelValues("failed").Add(float64(len(report.Failed)))
	for peer, err := range report.Failed {
		n.log.Debug("relay to %s failed: %v", peer, err)
	}
}
