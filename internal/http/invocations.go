package http

import (
	"net/http"
	"strconv"
	"strings"

	echo "github.com/labstack/echo/v4"

	"github.com/streamgate/streamgate/internal/model"
	"github.com/streamgate/streamgate/internal/repository"
)

func listInvocationsHandler(repo repository.InvocationsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		limit := 50
		offset := 0
		if v := c.QueryParam("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
				limit = n
			}
		}
		if v := c.QueryParam("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				offset = n
			}
		}

		var st model.InvocationStatus
		if raw := strings.TrimSpace(c.QueryParam("status")); raw != "" {
			tmp := model.InvocationStatus(raw)
			if tmp.Valid() {
				st = tmp
			}
		}

		binding := strings.TrimSpace(c.QueryParam("binding"))

		recs, err := repo.List(c.Request().Context(), binding, st, limit, offset)
		if err != nil {
			c.Logger().Errorf("clickhouse list failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"limit":   limit,
			"offset":  offset,
			"count":   len(recs),
			"results": recs,
		})
	}
}
