package swipe

import (
	"google.golang.org/grpc"

	"github.com/oggyb/swipe-guard/internal/app"
)

// Registrar ties the Swipe service into the gRPC server
type Registrar struct {
	appCtx *app.AppContext
}

// NewRegistrar creates a new Registrar for the Swipe service
func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{appCtx: appCtx}
}

// Register attaches the Swipe service implementation to the gRPC server
func (r *Registrar) Register(s *grpc.Server) {
	RegisterSwipeServiceServer(s, NewService(NewProcessorFromApp(r.appCtx)))
}

// NewProcessorFromApp wires a Processor with every collaborator the
// application context provides.
func NewProcessorFromApp(a *app.AppContext) *Processor {
	opts := []Option{
		WithRateLimiter(a.Limiter),
		WithBehaviorAnalyzer(a.Trust),
		WithBotAnalyzer(a.Bots),
		WithNotifier(a.Notifier),
		WithRetryPolicy(a.RetryPolicy()),
		WithLogger(a.Logger),
	}
	if a.RedisCache != nil {
		opts = append(opts, WithReportCache(a.RedisCache))
	}
	return NewProcessor(a.Ledger, a.Abuse, opts...)
}
