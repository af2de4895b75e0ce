package controllers

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/oksnap/oksnap/config"
	"github.com/oksnap/oksnap/services"
	"github.com/oksnap/oksnap/storage"
)

func identifyRouter(t *testing.T) (*gin.Engine, *services.QuotaLedger) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	config.Reset()

	cfg := config.Get()
	ledger := services.NewQuotaLedger(storage.NewMemoryStore(), &cfg)
	ic := NewIdentifyController(ledger, services.NewVision(&cfg))

	r := gin.New()
	r.POST("/api/identify", ic.Identify)
	return r, ledger
}

func TestIdentifyReturns429WhenExhausted(t *testing.T) {
	r, ledger := identifyRouter(t)

	// Burn the guest allowance for the test client's IP.
	for i := 0; i < 3; i++ {
		status := ledger.CheckAndConsume(context.Background(), "", "203.0.113.7")
		assert.True(t, status.Allowed)
	}

	w, body := doJSON(t, r, http.MethodPost, "/api/identify", `{"imageData":"data:image/png;base64,aGk="}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "SCAN_LIMIT_EXCEEDED", body["error"])
	assert.Equal(t, true, body["limitExceeded"])
	assert.EqualValues(t, 0, body["remaining"])
	assert.EqualValues(t, 3, body["limit"])
	assert.Equal(t, "guest", body["level"])
	assert.NotEmpty(t, body["resetTime"])
}

func TestIdentifyValidatesImageAfterConsuming(t *testing.T) {
	r, ledger := identifyRouter(t)

	w, body := doJSON(t, r, http.MethodPost, "/api/identify", `{"imageData":"not-a-data-url"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid image format. Expected data URL.", body["message"])

	// The broken request still burned a scan.
	status := ledger.PeekRemaining(context.Background(), "", "203.0.113.7")
	assert.Equal(t, 2, status.Remaining)
}

func TestIdentifyRejectsUnknownLanguage(t *testing.T) {
	r, _ := identifyRouter(t)

	w, body := doJSON(t, r, http.MethodPost, "/api/identify", `{"imageData":"data:image/png;base64,aGk=","targetLanguage":"Klingon"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid language specified", body["message"])
}

func TestIdentifyWithoutAPIKeyIsConfigError(t *testing.T) {
	r, _ := identifyRouter(t)

	w, body := doJSON(t, r, http.MethodPost, "/api/identify", `{"imageData":"data:image/png;base64,aGk="}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "CONFIGURATION_ERROR", body["error"])
}
