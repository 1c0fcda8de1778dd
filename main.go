package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cv-agent-go/internal/agent"
	"cv-agent-go/internal/api/handler"
	"cv-agent-go/internal/api/router"
	"cv-agent-go/internal/config"
	appCoreLogger "cv-agent-go/internal/logger"
	"cv-agent-go/internal/processor"
	"cv-agent-go/internal/session"
	"cv-agent-go/internal/storage"
	"cv-agent-go/internal/tracing"

	"github.com/cloudwego/hertz/pkg/app/server"
	hertzconfig "github.com/cloudwego/hertz/pkg/common/config"
	glog "github.com/cloudwego/hertz/pkg/common/hlog"
	hertzadapter "github.com/hertz-contrib/logger/zerolog"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
)

var (
	version     = "1.0.0"       //nolint:gochecknoglobals
	serviceName = "cv-agent-go" //nolint:gochecknoglobals
)

func main() {
	var configPath string
	pflag.StringVarP(&configPath, "config", "c", "", "Path to config file")
	pflag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		appCoreLogger.Fatal().Err(err).Msg("加载配置失败")
	}
	initLogger(cfg.Logger)
	log := appCoreLogger.Component("main")
	log.Info().Str("version", version).Str("parser_strategy", cfg.ParserStrategy).Msg("配置加载成功")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = serviceName
	}
	shutdownTracing, err := tracing.InitProvider(ctx, cfg.Tracing)
	if err != nil {
		log.Fatal().Err(err).Msg("初始化链路追踪失败")
	}

	store, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("初始化存储组件失败")
	}
	defer store.Close()

	cvProcessor, err := buildProcessor(ctx, cfg, store)
	if err != nil {
		log.Fatal().Err(err).Msg("初始化简历处理器失败")
	}
	log.Info().Str("strategy", cvProcessor.Strategy()).Msg("简历处理器初始化成功")

	sessions, err := buildSessions(cfg, store)
	if err != nil {
		log.Fatal().Err(err).Msg("初始化会话管理失败")
	}

	chatModel, err := agent.NewChatModel(ctx, cfg, agent.TaskChat)
	if err != nil {
		log.Fatal().Err(err).Msg("初始化对话模型失败")
	}
	assistant := agent.NewCVAssistant(chatModel, agent.AssistantOptionsFromConfig(cfg.Chat)...)

	handlerOpts := []handler.HandlerOption{handler.WithSessionKeys(cfg.Server.SessionHeader, cfg.Server.SessionCookie)}
	if store.MySQL != nil {
		handlerOpts = append(handlerOpts, handler.WithDocumentReader(store.MySQL))
	}
	cvHandler, err := handler.NewCVHandler(cvProcessor, sessions, assistant, handlerOpts...)
	if err != nil {
		log.Fatal().Err(err).Msg("初始化接口处理器失败")
	}

	serverOpts := []hertzconfig.Option{server.WithHostPorts(cfg.Server.Address)}
	if cfg.Server.MaxUploadMB > 0 {
		serverOpts = append(serverOpts, server.WithMaxRequestBodySize(cfg.Server.MaxUploadMB<<20))
	}
	var tracerCfg *hertztracing.Config
	if cfg.Tracing.Enabled {
		tracer, c := hertztracing.NewServerTracer()
		serverOpts = append(serverOpts, tracer)
		tracerCfg = c
	}
	h := server.Default(serverOpts...)
	if tracerCfg != nil {
		h.Use(hertztracing.ServerMiddleware(tracerCfg))
	}
	router.RegisterRoutes(h, cvHandler, cfg.Server.APIKeys)

	go func() {
		log.Info().Str("address", cfg.Server.Address).Msg("HTTP服务器正在启动")
		h.Spin()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info().Msg("收到退出信号，正在关闭资源...")
	cancel()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := h.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("服务器关闭失败")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("关闭链路追踪失败")
	}
	log.Info().Msg("优雅退出完成")
}

func initLogger(cfg config.LoggerConfig) {
	appCoreLogger.Init(appCoreLogger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		TimeFormat:   cfg.TimeFormat,
		ReportCaller: cfg.ReportCaller,
	})
	// Hertz 自身日志也走同一个 zerolog 实例
	glog.SetLogger(hertzadapter.From(appCoreLogger.Logger))
}

func buildProcessor(ctx context.Context, cfg *config.Config, store *storage.Storage) (*processor.CVProcessor, error) {
	extractors, err := processor.BuildExtractors(ctx, cfg)
	if err != nil {
		return nil, err
	}
	builder, err := processor.BuildRecordBuilder(ctx, cfg)
	if err != nil {
		return nil, err
	}

	comp := processor.Components{Extractors: extractors, Builder: builder}
	var opts []processor.ProcessorOption
	if store.MinIO != nil {
		comp.Store = store.MinIO
	}
	if store.MySQL != nil {
		comp.Recorder = store.MySQL
	}
	if store.RabbitMQ != nil {
		comp.Publisher = store.RabbitMQ
		opts = append(opts, processor.WithEvents(cfg.RabbitMQ.CVEventsExchange, cfg.RabbitMQ.ProcessedRoutingKey))
	}
	return processor.NewCVProcessor(comp, opts...)
}

func buildSessions(cfg *config.Config, store *storage.Storage) (*session.Manager, error) {
	var client redis.UniversalClient
	var opts []session.ManagerOption
	if store.Redis != nil {
		client = store.Redis.Client
		if cfg.Session.Backend == "redis" {
			opts = append(opts, session.WithDistributedLock(store.Redis))
		}
	}
	if store.RabbitMQ != nil {
		opts = append(opts, session.WithCorpusEvents(store.RabbitMQ, cfg.RabbitMQ.CVEventsExchange, cfg.RabbitMQ.CorpusRoutingKey))
	}
	return session.NewManagerFromConfig(cfg.Session, client, opts...)
}
