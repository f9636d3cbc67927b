package server

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatusSource reports the daemon's current position for the ops API.
type StatusSource interface {
	Status() map[string]any
}

// Ops is the daemon's operational HTTP surface: health, scheduler status
// and Prometheus metrics. It does not serve articles.
type Ops struct {
	echo   *echo.Echo
	addr   string
	logger *log.Logger
}

func NewOps(addr string, source StatusSource, logger *log.Logger) *Ops {
	if logger == nil {
		logger = log.New(os.Stdout, "[OPS] ", log.LstdFlags)
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/status", func(c echo.Context) error {
		if source == nil {
			return c.JSON(http.StatusOK, map[string]any{})
		}
		return c.JSON(http.StatusOK, source.Status())
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return &Ops{echo: e, addr: addr, logger: logger}
}

// Start serves in the background until Shutdown.
func (o *Ops) Start() {
	go func() {
		if err := o.echo.Start(o.addr); err != nil && err != http.ErrServerClosed {
			o.logger.Printf("ERROR: ops server: %v", err)
		}
	}()
	o.logger.Printf("ops server listening on %s", o.addr)
}

func (o *Ops) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return o.echo.Shutdown(ctx)
}
