// internal/di/container.go
package di

import (
	"fmt"
	"sphero-behavior/internal/audio"
	"sphero-behavior/internal/behavior"
	"sphero-behavior/internal/config"
	"sphero-behavior/internal/database"
	"sphero-behavior/internal/device"
	"sphero-behavior/internal/handlers"
	"sphero-behavior/internal/input"
	"sphero-behavior/internal/interfaces"
	"sphero-behavior/internal/messaging"
	"sphero-behavior/internal/redis"
	"sphero-behavior/internal/repository"
	"sphero-behavior/internal/service"
	"sphero-behavior/internal/services"
	"sphero-behavior/internal/utils"
	"sphero-behavior/internal/voice"

	"github.com/gdamore/tcell/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Container 의존성 주입 컨테이너
type Container struct {
	Config *config.Config
	Logger interfaces.Logger
	RunID  string

	// Infra (비활성화 시 nil 또는 메모리 구현)
	DB          *gorm.DB
	RedisClient *goredis.Client
	Publisher   interfaces.MessagePublisher
	Router      *messaging.Router
	Subscriber  *messaging.Subscriber

	History        interfaces.HistoryStore
	Cache          interfaces.CacheService
	HistoryRepo    *repository.HistoryRepository
	HistoryService *service.HistoryService
	Recorder       *service.Recorder

	// Device & inputs
	Simulator *device.Simulator
	Gateway   *device.Gateway
	Screen    tcell.Screen
	Display   *device.Display
	Terminal  *input.Terminal
	Remote    *input.Remote
	Voice     *voice.Listener
	Player    *audio.Player

	Controller *behavior.Controller

	// Handlers
	API     *handlers.APIHandler
	Control *handlers.ControlHandler
	Server  *echo.Echo

	BehaviorService *BehaviorService

	restoreLog func()
}

// NewContainer 새로운 컨테이너 생성
func NewContainer(cfg *config.Config) (*Container, error) {
	container := &Container{Config: cfg}

	// 1. 기본 서비스들 초기화
	container.initCoreServices()

	// 2. 인프라 서비스들 초기화
	if err := container.initInfraServices(); err != nil {
		container.Cleanup()
		return nil, fmt.Errorf("failed to init infra services: %w", err)
	}

	// 3. 터미널 초기화 (tty 없으면 건너뜀)
	if cfg.TerminalInput {
		container.initTerminal(nil)
	}

	// 4. 나머지 조립
	if err := container.assemble(); err != nil {
		container.Cleanup()
		return nil, err
	}
	return container, nil
}

// NewTestContainer 테스트용 컨테이너 생성 (메모리 저장소, Mock 발행자)
func NewTestContainer(cfg *config.Config, publisher interfaces.MessagePublisher, screen tcell.Screen) (*Container, error) {
	container := &Container{Config: cfg}
	container.initCoreServices()

	container.Publisher = publisher
	container.History = services.NewMemoryHistory()
	container.Cache = services.NewMemoryCache()
	if screen != nil {
		container.initTerminal(screen)
	}

	if err := container.assemble(); err != nil {
		return nil, err
	}
	return container, nil
}

// initCoreServices 핵심 서비스들 초기화
func (c *Container) initCoreServices() {
	utils.SetupLogger(c.Config.LogLevel)
	c.RunID = uuid.NewString()
	c.Logger = services.NewLoggerFrom(utils.Logger, logrus.Fields{
		"device": c.Config.DeviceName,
		"run_id": c.RunID,
	})
	c.Router = messaging.NewRouter()
}

// initInfraServices 인프라 서비스들 초기화
func (c *Container) initInfraServices() error {
	cfg := c.Config

	// Database 초기화
	if cfg.HistoryEnabled {
		db, err := database.NewPostgresDB(cfg)
		if err != nil {
			return fmt.Errorf("database init failed: %w", err)
		}
		c.DB = db
		c.HistoryRepo = repository.NewHistoryRepository(db)
		c.History = c.HistoryRepo
	} else {
		c.Logger.Infof("History disabled, keeping transitions in memory")
		c.History = services.NewMemoryHistory()
	}

	// Redis 초기화
	if cfg.CacheEnabled {
		redisClient, err := redis.NewRedisClient(cfg)
		if err != nil {
			return fmt.Errorf("redis init failed: %w", err)
		}
		c.RedisClient = redisClient
		c.Cache = services.NewCacheService(redisClient)
	} else {
		c.Cache = services.NewMemoryCache()
	}

	// MQTT 초기화 (sim 모드에서는 선택)
	client, err := messaging.NewMQTTClient(cfg)
	switch {
	case err == nil:
		c.Publisher = client
	case cfg.DeviceMode == config.DeviceModeMQTT:
		return fmt.Errorf("mqtt init failed: %w", err)
	default:
		c.Logger.Warnf("⚠️ MQTT unavailable, running simulator offline: %v", err)
	}

	return nil
}

// initTerminal tcell 화면 초기화; screen 이 nil 이면 실제 터미널 사용
func (c *Container) initTerminal(screen tcell.Screen) {
	if screen == nil {
		s, err := tcell.NewScreen()
		if err == nil {
			err = s.Init()
		}
		if err != nil {
			c.Logger.Warnf("⚠️ Terminal unavailable, keyboard input disabled: %v", err)
			return
		}
		screen = s

		// 화면을 쓰는 동안 로그는 파일로
		restore, err := utils.RedirectToFile(c.Config.LogFile)
		if err != nil {
			c.Logger.Warnf("⚠️ Cannot redirect logs to %s: %v", c.Config.LogFile, err)
		} else {
			c.restoreLog = restore
		}
	}
	c.Screen = screen
	c.Terminal = input.NewTerminal(screen)
}

// assemble 디바이스, 컨트롤러, 핸들러 조립
func (c *Container) assemble() error {
	if err := c.initDevice(); err != nil {
		return err
	}
	c.initBusinessServices()
	c.initController()
	c.initHandlers()
	c.BehaviorService = NewBehaviorService(c)
	return nil
}

// initDevice 디바이스와 입력 소스 초기화
func (c *Container) initDevice() error {
	cfg := c.Config

	switch cfg.DeviceMode {
	case config.DeviceModeSim:
		c.Simulator = device.NewSimulator()
		if c.Screen != nil {
			c.Display = device.NewDisplay(c.Screen, cfg.DeviceName)
			c.Display.Attach(c.Simulator)
		}
	default:
		if c.Publisher == nil {
			return fmt.Errorf("device mode %s requires MQTT", cfg.DeviceMode)
		}
		c.Gateway = device.NewGateway(cfg, c.Publisher, c.Router)
	}

	if c.Publisher != nil {
		c.Remote = input.NewRemote(cfg, c.Router)
		c.Voice = voice.NewListener(cfg, c.Router)
		c.Subscriber = messaging.NewSubscriber(c.Publisher, c.Router)
	}

	c.Player = audio.NewPlayer(cfg.AudioEnabled)
	return nil
}

// initBusinessServices 이력 조회와 전이 기록기
func (c *Container) initBusinessServices() {
	c.HistoryService = service.NewHistoryService(c.History, c.Cache)
	c.Recorder = service.NewRecorder(c.Config, c.History, c.Cache, c.Publisher)
}

// initController 행동 컨트롤러 생성
func (c *Container) initController() {
	cfg := c.Config

	var collab behavior.Collaborators
	if c.Simulator != nil {
		collab.Effector = c.Simulator
		collab.Connection = c.Simulator
		collab.Collisions = c.Simulator
	} else {
		collab.Effector = c.Gateway
		collab.Connection = c.Gateway
		collab.Collisions = c.Gateway
	}
	if c.Voice != nil {
		collab.Voice = c.Voice
	}

	var keySources []interfaces.KeySource
	if c.Terminal != nil {
		keySources = append(keySources, c.Terminal)
	}
	if c.Remote != nil {
		keySources = append(keySources, c.Remote)
	}
	if len(keySources) > 0 {
		collab.Keys = input.NewMulti(keySources...)
	}

	observers := []interfaces.TransitionObserver{c.Recorder}
	if c.Display != nil {
		observers = append(observers, c.Display)
	}

	timing := behavior.DefaultTiming()
	timing.Tick = cfg.TickInterval

	c.Controller = behavior.New(collab, behavior.Options{
		Device:    cfg.DeviceName,
		RunID:     c.RunID,
		Timing:    timing,
		Logger:    c.Logger,
		Sounder:   c.Player,
		Observers: observers,
	})

	// 시뮬레이터 조작 키
	if c.Terminal != nil {
		if c.Simulator != nil {
			sim := c.Simulator
			c.Terminal.Bind('k', func() { sim.Jolt(0.5, 0.5) })
			c.Terminal.Bind('c', sim.Collide)
			c.Terminal.Bind('p', func() { sim.Jolt(45, 0) })
		}
		ctrl, phrase := c.Controller, cfg.VoicePhrase
		c.Terminal.Bind('v', func() { ctrl.VoicePhrase(phrase) })
	}
}

// initHandlers 핸들러들 초기화
func (c *Container) initHandlers() {
	c.API = handlers.NewAPIHandler(c.Controller, c.HistoryService, c.Config)
	c.Server = handlers.NewServer(c.API)
	if c.Publisher != nil {
		c.Control = handlers.NewControlHandler(c.Controller, c.Publisher, c.Router, c.Config, c.Logger)
	}
}

// Cleanup 리소스 정리
func (c *Container) Cleanup() {
	if c.Player != nil {
		c.Player.Close()
	}
	if c.Screen != nil {
		c.Screen.Fini()
	}
	if c.restoreLog != nil {
		c.restoreLog()
	}
	if c.Publisher != nil {
		c.Publisher.Disconnect(250)
	}
	if c.RedisClient != nil {
		c.RedisClient.Close()
	}
	if c.DB != nil {
		if sqlDB, err := c.DB.DB(); err == nil {
			sqlDB.Close()
		}
	}
	c.Logger.Infof("Container cleanup completed")
}
