package observability

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsHandler exposes the Prometheus scrape endpoint via Fiber. Collector
// registration is once-guarded, so mounting the handler is safe even when the
// middleware already touched a counter.
func MetricsHandler() fiber.Handler {
	RegisterMetrics()
	scrape := adaptor.HTTPHandler(promhttp.Handler())
	return func(c *fiber.Ctx) error {
		return scrape(c)
	}
}
