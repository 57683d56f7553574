package http

import (
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/streamgate/streamgate/internal/checkpoint"
	"github.com/streamgate/streamgate/internal/host"
)

func partitionsHandler(h *host.Host) echo.HandlerFunc {
	return func(c echo.Context) error {
		snap := h.Snapshot()
		return c.JSON(http.StatusOK, map[string]any{
			"owner":      h.Owner(),
			"count":      len(snap),
			"partitions": snap,
		})
	}
}

func checkpointsHandler(h *host.Host, cps checkpoint.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		name := strings.TrimSpace(c.QueryParam("binding"))
		if name == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "binding required"})
		}

		var b *host.Binding
		for _, cand := range h.Bindings() {
			if cand.Name == name {
				b = &cand
				break
			}
		}
		if b == nil {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown binding"})
		}

		cpts, err := cps.List(c.Request().Context(), b.Stream, b.ConsumerGroup)
		if err != nil {
			log.Errorf("checkpoint list failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"binding":     name,
			"stream":      b.Stream,
			"group":       b.ConsumerGroup,
			"count":       len(cpts),
			"checkpoints": cpts,
		})
	}
}
