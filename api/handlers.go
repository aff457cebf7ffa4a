package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"weekplan-api/domain"
	"weekplan-api/storage"
)

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, store Storage, auth Authenticator, sessions *Sessions, deduper Deduper, logger *log.Logger) {
	// Session routes are absent when an external identity provider owns
	// token issuance.
	if sessions != nil {
		e.POST("/api/auth/register", registerUser(store, sessions))
		e.POST("/api/auth/login", loginUser(store, sessions))
	}

	e.GET("/api/tasks/:weekKey", getWeek(store, auth, logger))
	e.POST("/api/tasks/:weekKey", putWeek(store, auth))
	e.DELETE("/api/tasks/:weekKey", clearWeek(store, auth))
	e.POST("/api/tasks/:weekKey/:dayIndex", appendTask(store, auth, deduper))
	e.PUT("/api/tasks/:weekKey/:dayIndex/:taskId", updateTask(store, auth))
	e.DELETE("/api/tasks/:weekKey/:dayIndex/:taskId", deleteTask(store, auth))

	e.GET("/healthz", healthz(store))

	initChangePublisher(store, logger)
}

func healthz(_ Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		//TODO: implement healthcheck
		return c.NoContent(http.StatusOK)
	}
}

// storeError maps storage failures onto the wire taxonomy. Unexpected
// faults become a generic 500 with no internal detail.
func storeError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, storage.ErrInvalidPayload):
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, storage.ErrNotFound):
		return c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, storage.ErrConflict):
		return c.JSON(http.StatusConflict, errorResponse{Error: err.Error()})
	}
	c.Logger().Error(err)
	return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
}

func weekKeyParam(c echo.Context) (string, bool) {
	key := c.Param("weekKey")
	return key, domain.ValidWeekKey(key)
}

func dayIndexParam(c echo.Context) (int, bool) {
	day, err := strconv.Atoi(c.Param("dayIndex"))
	if err != nil {
		return 0, false
	}
	return day, domain.ValidDayIndex(day)
}

func getWeek(store Storage, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newWeekRequestMetrics(ctx, logger)
		if spanCtx != nil {
			c.SetRequest(c.Request().WithContext(spanCtx))
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		userID, authErr := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.JSON(http.StatusUnauthorized, errorResponse{Error: authErr.Error()})
			return err
		}

		// Reads never fail with not-found: an unknown or malformed week key
		// is valid empty state.
		weekKey := c.Param("weekKey")
		if !domain.ValidWeekKey(weekKey) {
			err = c.JSON(http.StatusOK, map[string]domain.Days{"days": {}})
			return err
		}

		fetchStart := time.Now()
		days, fetchErr := store.GetWeek(ctx, userID, weekKey)
		metrics.ObserveFetch(time.Since(fetchStart))
		if fetchErr != nil {
			metrics.SetErrorStage("storage")
			c.Logger().Error(fetchErr)
			err = c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
			return err
		}
		if days == nil {
			days = domain.Days{}
		}
		metrics.SetTasksReturned(taskCount(days))

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, map[string]domain.Days{"days": days})
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

func putWeek(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}
		weekKey, ok := weekKeyParam(c)
		if !ok {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid week key"})
		}

		lr := io.LimitReader(c.Request().Body, putWeekMaxSize)
		dec := sonic.ConfigStd.NewDecoder(lr)
		dec.DisallowUnknownFields()

		var req putWeekRequest
		if err := dec.Decode(&req); err != nil || req.Days == nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "days must be a mapping of day index to task list"})
		}

		days, err := store.PutWeek(ctx, userID, weekKey, *req.Days)
		if err != nil {
			return storeError(c, err)
		}

		queueChange(store, domain.ChangeEvent{UserID: userID, WeekKey: weekKey, Op: domain.ChangePutWeek, Timestamp: nextTimestamp()})
		return c.JSON(http.StatusOK, putWeekResponse{Success: true, WeekKey: weekKey, Days: days})
	}
}

func appendTask(store Storage, auth Authenticator, deduper Deduper) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}
		weekKey, ok := weekKeyParam(c)
		if !ok {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid week key"})
		}
		day, ok := dayIndexParam(c)
		if !ok {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid day index"})
		}

		lr := io.LimitReader(c.Request().Body, taskMaxSize)
		dec := sonic.ConfigStd.NewDecoder(lr)
		dec.DisallowUnknownFields()

		var req appendTaskRequest
		if err := dec.Decode(&req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}

		idemKey := c.Request().Header.Get("Idempotency-Key")
		if idemKey != "" && deduper != nil {
			added, dedupeErr := deduper.Add(ctx, userID, idemKey)
			if dedupeErr != nil {
				c.Logger().Errorf("dedupe check failed: %v", dedupeErr)
			} else if !added {
				// Retried request whose first attempt already landed. The
				// stored task can only be named when the client supplied its
				// id; a server-assigned id from the first attempt is unknown
				// here and must not be invented.
				days, getErr := store.GetWeek(ctx, userID, weekKey)
				if getErr != nil {
					return storeError(c, getErr)
				}
				resp := appendTaskResponse{Success: true, Days: days}
				if req.ID != "" {
					if stored, ok := days.Find(day, req.ID); ok {
						resp.Task = &stored
					}
				}
				return c.JSON(http.StatusOK, resp)
			}
		}

		task := domain.Task{ID: req.ID, Text: req.Text, Status: req.Status}
		if task.ID == "" {
			task.ID = domain.NewTaskID(time.Now())
		}

		days, err := store.AppendTask(ctx, userID, weekKey, day, task)
		if err != nil {
			if idemKey != "" && deduper != nil {
				if rerr := deduper.Remove(ctx, userID, idemKey); rerr != nil {
					c.Logger().Errorf("dedupe rollback failed: %v", rerr)
				}
			}
			return storeError(c, err)
		}

		queueChange(store, domain.ChangeEvent{UserID: userID, WeekKey: weekKey, Op: domain.ChangeAppendTask, Timestamp: nextTimestamp()})
		return c.JSON(http.StatusCreated, appendTaskResponse{Success: true, Task: &task, Days: days})
	}
}

func updateTask(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}
		weekKey, ok := weekKeyParam(c)
		if !ok {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid week key"})
		}
		day, ok := dayIndexParam(c)
		if !ok {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid day index"})
		}

		lr := io.LimitReader(c.Request().Body, taskMaxSize)
		dec := sonic.ConfigStd.NewDecoder(lr)
		dec.DisallowUnknownFields()

		var req updateTaskRequest
		if err := dec.Decode(&req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
		}

		task, err := store.UpdateTask(ctx, userID, weekKey, day, c.Param("taskId"), req.Text, req.Status)
		if err != nil {
			return storeError(c, err)
		}

		queueChange(store, domain.ChangeEvent{UserID: userID, WeekKey: weekKey, Op: domain.ChangeUpdateTask, Timestamp: nextTimestamp()})
		return c.JSON(http.StatusOK, updateTaskResponse{Success: true, Task: task})
	}
}

func deleteTask(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}
		weekKey, ok := weekKeyParam(c)
		if !ok {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid week key"})
		}
		day, ok := dayIndexParam(c)
		if !ok {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid day index"})
		}

		days, err := store.DeleteTask(ctx, userID, weekKey, day, c.Param("taskId"))
		if err != nil {
			return storeError(c, err)
		}

		queueChange(store, domain.ChangeEvent{UserID: userID, WeekKey: weekKey, Op: domain.ChangeDeleteTask, Timestamp: nextTimestamp()})
		return c.JSON(http.StatusOK, deleteTaskResponse{Success: true, Days: days})
	}
}

func clearWeek(store Storage, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
		}
		weekKey, ok := weekKeyParam(c)
		if !ok {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid week key"})
		}

		if err := store.ClearWeek(ctx, userID, weekKey); err != nil {
			return storeError(c, err)
		}

		queueChange(store, domain.ChangeEvent{UserID: userID, WeekKey: weekKey, Op: domain.ChangeClearWeek, Timestamp: nextTimestamp()})
		return c.JSON(http.StatusOK, clearWeekResponse{Cleared: true})
	}
}

func taskCount(days domain.Days) int {
	n := 0
	for _, list := range days {
		n += len(list)
	}
	return n
}
