package endpoints

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"mysql-collector/internal/domain"
	"mysql-collector/internal/util"
)

// DefaultLimit applies when the limit segment is zero or negative.
const DefaultLimit = 100

// PointsRequest narrows a history query. Zero Start/End default to the last
// 24 hours; an empty Path matches every metric.
type PointsRequest struct {
	Start int64  `json:"start"`
	End   int64  `json:"end"`
	Path  string `json:"path"`
}

// Points serves the local history of emitted metric points.
type Points struct {
	Response APIResponse
	logger   *util.MetricsLogger
	store    domain.PointStore
	now      func() time.Time
}

func (p *Points) Init(store domain.PointStore, logger *util.MetricsLogger) {
	p.store = store
	p.logger = logger
	p.now = time.Now
}

func (p *Points) GetPointsHandler(w http.ResponseWriter, r *http.Request) {

	if r.Method != http.MethodGet {
		p.logger.LogEvent(util.LOG_LEVEL_ERROR, "Method Not Allowed:", r.Method)
		p.Response.WriteErrorResponseWithStatusCode(w, ErrMethodNotAllowed, http.StatusMethodNotAllowed)
		return
	}

	routeParamValue := mux.Vars(r)

	limit, err := strconv.Atoi(routeParamValue["limit"])
	if err != nil {
		p.logger.LogEvent(util.LOG_LEVEL_ERROR, "While getting limit from URL. Err -", err)
		p.Response.WriteErrorResponseWithStatusCode(w, ErrInvalidParameters, http.StatusBadRequest)
		return
	}

	offset, err := strconv.Atoi(routeParamValue["offset"])
	if err != nil {
		p.logger.LogEvent(util.LOG_LEVEL_ERROR, "While getting offset from URL. Err -", err)
		p.Response.WriteErrorResponseWithStatusCode(w, ErrInvalidParameters, http.StatusBadRequest)
		return
	}

	var reqBody PointsRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil && !errors.Is(err, io.EOF) {
			p.logger.LogEvent(util.LOG_LEVEL_ERROR, "Occured while unmarshalling JSON Body. Err -", err)
			p.Response.WriteErrorResponseWithStatusCode(w, ErrInvalidRequestBody, http.StatusBadRequest)
			return
		}
	}

	startTime := reqBody.Start
	endTime := reqBody.End

	if startTime == 0 {
		startTime = p.now().Add(-24 * time.Hour).Unix()
	}
	if endTime == 0 {
		endTime = p.now().Unix()
	}

	if startTime > endTime {
		p.logger.LogFields(util.LOG_LEVEL_ERROR, "start is after end",
			zap.Int64("start", startTime), zap.Int64("end", endTime))
		p.Response.WriteErrorResponseWithStatusCode(w, ErrInvalidTimeRange, http.StatusBadRequest)
		return
	}

	if limit <= 0 {
		limit = DefaultLimit
	}
	if offset < 0 {
		offset = 0
	}

	points, err := p.store.GetPoints(r.Context(), reqBody.Path, startTime, endTime, limit, offset)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			p.logger.LogEvent(util.LOG_LEVEL_WARN, "Context cancelled")
			p.Response.WriteErrorResponseWithStatusCode(w, ErrRequestCancelled, http.StatusRequestTimeout)
			return
		}
		p.logger.LogFields(util.LOG_LEVEL_ERROR, "reading point history failed", zap.Error(err))
		p.Response.WriteErrorResponse(w, ErrHistoryUnavailable)
		return
	}

	if len(points) == 0 {
		p.logger.LogFields(util.LOG_LEVEL_WARN, "no points for query",
			zap.String("path", reqBody.Path), zap.Int64("start", startTime), zap.Int64("end", endTime))
		p.Response.WriteErrorResponseWithStatusCode(w, ErrNoPointsAvailable, http.StatusNotFound)
		return
	}

	p.Response.WriteResultResponse(w, points)
}
