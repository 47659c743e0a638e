package main

import (
	"fmt"
	"io"

	"github.com/BerniceZTT/dialer_end/config"
	"github.com/BerniceZTT/dialer_end/controllers"
	"github.com/BerniceZTT/dialer_end/mail"
	"github.com/BerniceZTT/dialer_end/middleware"
	"github.com/BerniceZTT/dialer_end/models"
	"github.com/BerniceZTT/dialer_end/queue"
	"github.com/BerniceZTT/dialer_end/repository"
	"github.com/BerniceZTT/dialer_end/routes"
	"github.com/BerniceZTT/dialer_end/service"
	"github.com/BerniceZTT/dialer_end/utils"

	"github.com/gin-gonic/gin"
)

// stores 存储层实现，Mongo或内存
type stores struct {
	leads        repository.LeadStore
	claims       repository.ClaimStore
	interactions repository.InteractionStore
	opLogs       middleware.OperationLogSaver
}

// app 组装好的服务
type app struct {
	cfg      *config.Config
	catalog  *models.Catalog
	claims   *service.ClaimManager
	sessions *service.SessionRegistry
	router   *gin.Engine
	closers  []io.Closer
}

func openMongoStores(cfg *config.Config) (*stores, error) {
	if err := repository.InitMongoDB(cfg.MongoURI, cfg.MongoDB); err != nil {
		return nil, err
	}
	if err := repository.InitializeCollections(); err != nil {
		utils.Logger.Error().Err(err).Msg("初始化数据库集合失败")
	}
	db := repository.Database()
	leadStore := repository.NewMongoLeadStore(db, cfg.StorePollInterval)
	return &stores{
		leads:        leadStore,
		claims:       leadStore,
		interactions: repository.NewMongoInteractionStore(db),
		opLogs:       repository.NewMongoOperationLogStore(db),
	}, nil
}

func memoryStores() *stores {
	mem := repository.NewMemoryStore()
	return &stores{leads: mem, claims: mem, interactions: mem}
}

func loadCatalog(cfg *config.Config) (*models.Catalog, error) {
	if cfg.CatalogFile == "" {
		return models.DefaultCatalog(), nil
	}
	catalog, err := config.LoadCatalog(cfg.CatalogFile)
	if err != nil {
		return nil, fmt.Errorf("加载目录文件失败: %w", err)
	}
	return catalog, nil
}

func newEventPublisher(cfg *config.Config) (service.EventPublisher, io.Closer) {
	if cfg.AMQPURL == "" {
		return service.NopPublisher{}, nil
	}
	publisher, err := queue.NewPublisher(cfg.AMQPURL, utils.Component("events"))
	if err != nil {
		// 事件广播是附加能力，连接失败不阻止启动
		utils.Logger.Warn().Err(err).Msg("RabbitMQ不可用，事件不会广播")
		return service.NopPublisher{}, nil
	}
	return publisher, publisher
}

func newMessenger(cfg *config.Config) service.Messenger {
	if cfg.SMTPHost == "" {
		return mail.LogOnlyMessenger{Logger: utils.Component("mail")}
	}
	return mail.NewEmailSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, utils.Component("mail"))
}

// buildApp 组装服务与路由
func buildApp(cfg *config.Config, st *stores, catalog *models.Catalog) *app {
	clock := service.SystemClock
	events, eventsCloser := newEventPublisher(cfg)

	claims := service.NewClaimManager(st.claims, service.LeaseConfig{
		Timeout:       cfg.LeaseTimeout,
		RenewInterval: cfg.RenewInterval,
	}, clock, utils.Component("claims"))
	projector := service.NewQueueProjector(st.leads, claims, catalog, cfg.QueueRefreshInterval, utils.Component("projector"))
	ledger := service.NewLedger(st.leads, st.interactions, claims, events, clock, utils.Component("ledger"))
	pipeline := service.NewPipeline(st.leads, st.interactions, events, clock, utils.Component("pipeline"))
	leads := service.NewLeadService(st.leads, catalog, clock, utils.Component("leads"))

	sessions := service.NewSessionRegistry(service.SessionDeps{
		Claims:    claims,
		Projector: projector,
		Ledger:    ledger,
		Telephony: service.NewLoopbackTelephony(clock, utils.Component("telephony")),
		Messenger: newMessenger(cfg),
		Clock:     clock,
		Logger:    utils.Component("session"),
	}, cfg.SessionIdleTimeout)

	router := gin.New()
	router.Use(middleware.Logger())
	router.Use(middleware.Recovery())
	router.Use(middleware.CORS(cfg.CORSOrigins))
	router.Use(middleware.ErrorHandler())

	routes.RegisterRoutes(router, routes.Handlers{
		Leads:        controllers.NewLeadController(leads, pipeline, ledger, sessions),
		Dialer:       controllers.NewDialerController(sessions),
		Interactions: controllers.NewInteractionController(ledger, clock),
		Catalog:      catalog,
		OperationLog: st.opLogs,
	})

	a := &app{
		cfg:      cfg,
		catalog:  catalog,
		claims:   claims,
		sessions: sessions,
		router:   router,
	}
	if eventsCloser != nil {
		a.closers = append(a.closers, eventsCloser)
	}
	return a
}

// shutdown 关闭会话并等待后台释放完成
func (a *app) shutdown() {
	a.sessions.CloseAll()
	a.claims.Wait()
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			utils.Logger.Warn().Err(err).Msg("关闭外部连接失败")
		}
	}
}
