package server

import (
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/transport/grpc"

	"github.com/iWorld-y/deep_research/app/gateway/internal/conf"
)

// NewGRPCServer gRPC 端口只提供标准健康检查服务，由 kratos 在启动和停止时切换状态
func NewGRPCServer(c *conf.Server, logger log.Logger) *grpc.Server {
	var opts = []grpc.ServerOption{
		grpc.Middleware(
			recovery.Recovery(),
		),
	}
	if c != nil && c.Grpc != nil {
		if c.Grpc.Addr != "" {
			opts = append(opts, grpc.Address(c.Grpc.Addr))
		}
		if c.Grpc.Timeout != "" {
			if d, err := time.ParseDuration(c.Grpc.Timeout); err == nil {
				opts = append(opts, grpc.Timeout(d))
			}
		}
	}
	return grpc.NewServer(opts...)
}
