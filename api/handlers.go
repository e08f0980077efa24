package api

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"dayline/domain"
)

// Register wires up all routes on the provided Echo instance.
func Register(e *echo.Echo, st Store, ctrl SyncController, auth Authenticator, logger *log.Logger) {
	e.GET("/api/tasks", getTasks(st))
	e.POST("/api/tasks", postTask(st))
	e.PATCH("/api/tasks/:id", patchTask(st))
	e.DELETE("/api/tasks/:id", deleteTask(st))
	e.PUT("/api/tasks/order", putTaskOrder(st))

	e.GET("/api/progress/:date", getProgress(st))
	e.GET("/api/progress", getProgressHistory(st))
	e.POST("/api/progress", postProgress(st))

	e.POST("/api/session", postSession(ctrl, auth, logger))
	e.DELETE("/api/session", deleteSession(ctrl))
	e.GET("/api/sync", getSyncStatus(ctrl))
	e.POST("/api/sync", postSyncNow(ctrl, logger))

	e.GET("/healthz", healthz())
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func decodeBody(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, requestBodyMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func getTasks(st Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		tasks := st.Tasks()
		domain.SortTasks(tasks)
		return c.JSON(http.StatusOK, tasksResponse{Tasks: tasks})
	}
}

func postTask(st Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req addTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if req.Name == "" {
			return c.String(http.StatusBadRequest, "name required")
		}
		if !domain.ValidColor(req.Color) {
			return c.String(http.StatusBadRequest, "color not in palette")
		}

		// The store rejects silently; the count tells us whether the add
		// was accepted or the capacity limit was hit.
		before := st.TaskCount()
		st.AddTask(c.Request().Context(), req.Name, req.Color, req.Order)
		if st.TaskCount() == before {
			return c.JSON(http.StatusConflict, errorResponse{Error: "task limit reached"})
		}

		tasks := st.Tasks()
		domain.SortTasks(tasks)
		return c.JSON(http.StatusCreated, tasksResponse{Tasks: tasks})
	}
}

func patchTask(st Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		var upd domain.TaskUpdate
		if err := decodeBody(c, &upd); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if upd.Empty() {
			return c.String(http.StatusBadRequest, "no fields to update")
		}
		if upd.Color != nil && !domain.ValidColor(*upd.Color) {
			return c.String(http.StatusBadRequest, "color not in palette")
		}
		st.UpdateTask(c.Request().Context(), c.Param("id"), upd)
		return c.NoContent(http.StatusNoContent)
	}
}

func deleteTask(st Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		st.DeleteTask(c.Request().Context(), c.Param("id"))
		return c.NoContent(http.StatusNoContent)
	}
}

func putTaskOrder(st Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req reorderRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if len(req.IDs) < st.TaskCount() {
			// An incomplete list would drop tasks; require the full set.
			return c.String(http.StatusBadRequest, "ids must list every task")
		}
		st.ReorderTasks(c.Request().Context(), req.IDs)
		return c.NoContent(http.StatusNoContent)
	}
}

func getProgress(st Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		day := c.Param("date")
		if !domain.ValidDay(day) {
			return c.String(http.StatusBadRequest, "invalid date")
		}
		row, found := st.GetDailyProgress(day)
		if !found {
			row = domain.DailyProgress{Date: day, TaskProgress: map[string]domain.ProgressLevel{}}
		}
		return c.JSON(http.StatusOK, row)
	}
}

func getProgressHistory(st Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		days := 7
		if raw := c.QueryParam("days"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 || n > 366 {
				return c.String(http.StatusBadRequest, "invalid days")
			}
			days = n
		}

		known := map[string]bool{}
		for _, t := range st.Tasks() {
			known[t.ID] = true
		}

		rows := make([]domain.DailyProgress, 0, days)
		for _, day := range domain.LastNDays(days) {
			row, found := st.GetDailyProgress(day)
			if !found {
				row = domain.DailyProgress{Date: day, TaskProgress: map[string]domain.ProgressLevel{}}
			}
			// Hide entries for deleted tasks; the rows themselves keep them.
			for id := range row.TaskProgress {
				if !known[id] {
					delete(row.TaskProgress, id)
				}
			}
			rows = append(rows, row)
		}
		return c.JSON(http.StatusOK, progressHistoryResponse{Days: rows})
	}
}

func postProgress(st Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req recordProgressRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if req.TaskID == "" {
			return c.String(http.StatusBadRequest, "taskId required")
		}
		level := domain.ProgressLevel(req.Level)
		if !level.Valid() {
			return c.String(http.StatusBadRequest, "invalid level")
		}
		if req.Date != "" && !domain.ValidDay(req.Date) {
			return c.String(http.StatusBadRequest, "invalid date")
		}
		st.RecordProgress(c.Request().Context(), req.TaskID, level, req.Date)
		return c.NoContent(http.StatusNoContent)
	}
}

func postSession(ctrl SyncController, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics := newRequestMetrics(logger, "/api/session")
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		identity, authErr := auth.IdentityFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.String(http.StatusUnauthorized, authErr.Error())
			return err
		}

		ctrl.SetIdentity(identity)
		err = c.NoContent(http.StatusNoContent)
		return err
	}
}

func deleteSession(ctrl SyncController) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctrl.SetIdentity("")
		return c.NoContent(http.StatusNoContent)
	}
}

func getSyncStatus(ctrl SyncController) echo.HandlerFunc {
	return func(c echo.Context) error {
		loading, synced := ctrl.Status()
		return c.JSON(http.StatusOK, syncStatusResponse{Loading: loading, Synced: synced})
	}
}

func postSyncNow(ctrl SyncController, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics := newRequestMetrics(logger, "/api/sync")
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		syncStart := time.Now()
		syncErr := ctrl.SyncNow(c.Request().Context())
		metrics.ObserveSync(time.Since(syncStart))
		if syncErr != nil {
			metrics.SetErrorStage("sync")
			err = c.JSON(http.StatusBadGateway, errorResponse{Error: syncErr.Error()})
			return err
		}

		loading, synced := ctrl.Status()
		err = c.JSON(http.StatusOK, syncStatusResponse{Loading: loading, Synced: synced})
		return err
	}
}
