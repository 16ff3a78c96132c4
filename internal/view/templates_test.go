package view

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEngine(t *testing.T) {
	engine, err := NewEngine()
	assert.NoError(t, err, "Templates should parse without error")
	assert.NotNil(t, engine)
}

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "1,234,567.50", FormatMoney(1234567.5))
	assert.Equal(t, "0.00", FormatMoney(0))
	assert.Equal(t, "12,000", FormatQuantity(12000))
}

func TestRenderLoginPage(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	err = engine.RenderStatus(rec, "pages/login.html", TemplateData{Title: "Sign in", CSRFToken: "tok"}, http.StatusBadRequest)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `name="csrf_token" value="tok"`)
}

func TestRenderUnknownTemplateWritesNothing(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	err = engine.RenderStatus(rec, "pages/missing.html", TemplateData{}, http.StatusOK)
	require.Error(t, err)
	assert.Empty(t, rec.Body.String())
	assert.Empty(t, rec.Header().Get("Content-Type"))

	var nilEngine *Engine
	assert.ErrorIs(t, nilEngine.RenderStatus(rec, "pages/login.html", TemplateData{}, http.StatusOK), errNoEngine)
}
