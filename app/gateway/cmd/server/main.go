package main

import (
	"flag"
	"os"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/config"
	"github.com/go-kratos/kratos/v2/config/file"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport/grpc"
	"github.com/go-kratos/kratos/v2/transport/http"

	"github.com/iWorld-y/deep_research/app/deep_research/pkg/collab"
	"github.com/iWorld-y/deep_research/app/gateway/internal/conf"
	"github.com/iWorld-y/deep_research/app/gateway/internal/server"
	"github.com/iWorld-y/deep_research/app/gateway/internal/service"
)

// go build -ldflags "-X main.Version=x.y.z"
var (
	// Name 是服务的名称
	Name string = "deep_research.gateway"
	// Version 是服务的版本号
	Version string
	// flagconf 是配置文件的路径命令行参数
	flagconf string

	id, _ = os.Hostname()
)

func init() {
	flag.StringVar(&flagconf, "conf", "app/gateway/configs/config.yaml", "config path, eg: -conf config.yaml")
}

func newApp(logger log.Logger, hs *http.Server, gs *grpc.Server) *kratos.App {
	return kratos.New(
		kratos.ID(id),
		kratos.Name(Name),
		kratos.Version(Version),
		kratos.Metadata(map[string]string{}),
		kratos.Logger(logger),
		kratos.Server(hs, gs),
	)
}

// initApp 按依赖顺序组装服务
func initApp(sc *conf.Server, rc *conf.Research, logger log.Logger) (*kratos.App, func(), error) {
	eng, cleanup, err := server.NewResearchEngine(rc, logger)
	if err != nil {
		return nil, nil, err
	}
	svc := service.NewResearchService(eng, collab.FromEngine(eng), eng.Personas(), logger)
	hs := server.NewHTTPServer(sc, svc, logger)
	gs := server.NewGRPCServer(sc, logger)
	return newApp(logger, hs, gs), cleanup, nil
}

func main() {
	flag.Parse()
	logger := log.With(log.NewStdLogger(os.Stdout),
		"ts", log.DefaultTimestamp,
		"caller", log.DefaultCaller,
		"service.id", id,
		"service.name", Name,
		"service.version", Version,
	)

	c := config.New(
		config.WithSource(
			file.NewSource(flagconf),
		),
	)
	defer c.Close()

	if err := c.Load(); err != nil {
		panic(err)
	}

	var bc conf.Bootstrap
	if err := c.Scan(&bc); err != nil {
		panic(err)
	}

	app, cleanup, err := initApp(bc.Server, bc.Research, logger)
	if err != nil {
		panic(err)
	}
	defer cleanup()

	if err := app.Run(); err != nil {
		panic(err)
	}
}
