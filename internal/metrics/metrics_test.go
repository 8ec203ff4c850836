package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("read counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestTaskOutcome(t *testing.T) {
	assert.Equal(t, OutcomeOK, TaskOutcome(nil))
	assert.Equal(t, OutcomeRetry, TaskOutcome(errors.New("browser crashed")))
	assert.Equal(t, OutcomeDropped, TaskOutcome(fmt.Errorf("bad payload: %w", asynq.SkipRetry)))
}

func TestAsynqMetricsMiddlewareCountsOutcome(t *testing.T) {
	handler := AsynqMetricsMiddleware()(asynq.HandlerFunc(func(context.Context, *asynq.Task) error {
		return fmt.Errorf("bad payload: %w", asynq.SkipRetry)
	}))
	before := counterValue(t, tasksTotal.WithLabelValues("test:metrics", OutcomeDropped))

	err := handler.ProcessTask(context.Background(), asynq.NewTask("test:metrics", nil))

	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Equal(t, before+1, counterValue(t, tasksTotal.WithLabelValues("test:metrics", OutcomeDropped)))
}

func TestGinMiddlewareUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware())
	r.GET("/v1/templates/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	before := counterValue(t, requestTotal.WithLabelValues(http.MethodGet, "/v1/templates/:id", "200"))
	beforeUnmatched := counterValue(t, requestTotal.WithLabelValues(http.MethodGet, unmatchedRoute, "404"))

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/templates/42", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/random/path", nil))

	assert.Equal(t, before+1, counterValue(t, requestTotal.WithLabelValues(http.MethodGet, "/v1/templates/:id", "200")))
	assert.Equal(t, beforeUnmatched+1, counterValue(t, requestTotal.WithLabelValues(http.MethodGet, unmatchedRoute, "404")))
}
