package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marhaba-ai/marhaba/common"
)

func TestWeatherProviderCurrent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "25.6872", r.URL.Query().Get("latitude"))
		assert.Equal(t, "32.6396", r.URL.Query().Get("longitude"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"current":{"temperature_2m":33.5,"wind_speed_10m":14.2,"weather_code":0}}`))
	}))
	defer srv.Close()

	log, _ := test.NewNullLogger()
	p := NewWeatherProvider(srv.URL, log)

	require.True(t, p.CanHandle("current"))
	require.False(t, p.CanHandle("forecast"))

	out, err := p.Execute(context.Background(), "current", map[string]any{
		"latitude":  25.6872,
		"longitude": "32.6396",
	})
	require.NoError(t, err)
	assert.Equal(t, 33.5, out["temperature_c"])
	assert.Equal(t, 14.2, out["wind_kmh"])
	assert.Equal(t, "clear", out["conditions"])
}

func TestWeatherProviderErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend down", http.StatusBadGateway)
	}))
	defer srv.Close()

	log, _ := test.NewNullLogger()
	p := NewWeatherProvider(srv.URL, log)

	_, err := p.Execute(context.Background(), "current", map[string]any{"latitude": 1.0, "longitude": 2.0})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadGateway, se.Code)

	_, err = p.Execute(context.Background(), "current", map[string]any{"longitude": 2.0})
	assert.True(t, common.IsKind(err, common.KindBadInput))
}

func TestConditionKey(t *testing.T) {
	assert.Equal(t, "clear", conditionKey(0))
	assert.Equal(t, "partly_cloudy", conditionKey(2))
	assert.Equal(t, "fog", conditionKey(45))
	assert.Equal(t, "rain", conditionKey(61))
	assert.Equal(t, "showers", conditionKey(80))
	assert.Equal(t, "thunderstorm", conditionKey(95))
	assert.Equal(t, "cloudy", conditionKey(40))
}

func TestLLMProviderComplete(t *testing.T) {
	p := NewLLMProvider(StubModel{})

	require.True(t, p.CanHandle("complete"))

	out, err := p.Execute(context.Background(), "complete", map[string]any{
		"prompt": "Answer using the context.\n- The Citadel opens at 9am.\n- Another fact.",
	})
	require.NoError(t, err)
	assert.Equal(t, "The Citadel opens at 9am.", out["text"])

	_, err = p.Execute(context.Background(), "complete", map[string]any{})
	assert.True(t, common.IsKind(err, common.KindBadInput))
}

func TestStubModelWithoutSnippets(t *testing.T) {
	p := NewLLMProvider(StubModel{})

	out, err := p.Execute(context.Background(), "complete", map[string]any{"prompt": "just a question"})
	require.NoError(t, err)
	assert.Contains(t, out["text"], "enough information")
}

func TestTranslationProvider(t *testing.T) {
	p := NewTranslationProvider(nil)

	out, err := p.Execute(context.Background(), "translate", map[string]any{
		"text": "Thank You",
		"from": "en",
		"to":   "ar",
	})
	require.NoError(t, err)
	assert.Equal(t, "شكرا", out["text"])
	assert.Equal(t, "phrasebook", out["source"])

	// Phrasebook miss with no model wired in.
	_, err = p.Execute(context.Background(), "translate", map[string]any{
		"text": "where can I rent a felucca",
		"to":   "ar",
	})
	require.Error(t, err)

	_, err = p.Execute(context.Background(), "translate", map[string]any{"text": "hello"})
	assert.True(t, common.IsKind(err, common.KindBadInput))
}

func TestTranslationProviderModelFallback(t *testing.T) {
	p := NewTranslationProvider(StubModel{})

	out, err := p.Execute(context.Background(), "translate", map[string]any{
		"text": "where can I rent a felucca",
		"from": "english",
		"to":   "arabic",
	})
	require.NoError(t, err)
	assert.Equal(t, "llm", out["source"])
	assert.NotEmpty(t, out["text"])
}
