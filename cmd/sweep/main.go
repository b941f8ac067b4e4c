package main

import (
	"encoding/json"
	"flag"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// sweep triggers one batch sweep over HTTP. Meant to be invoked by cron:
//
//	sweep -server http://localhost:8080 [-tenant <uuid>]
//
// The batch secret is read from BATCH_SECRET.
func main() {
	var serverURL string
	var tenantID string
	var timeout time.Duration
	flag.StringVar(&serverURL, "server", "http://localhost:8080", "Server base URL")
	flag.StringVar(&tenantID, "tenant", "", "Sweep a single tenant (UUID), all tenants when empty")
	flag.DurationVar(&timeout, "timeout", 5*time.Minute, "Request timeout")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	secret := os.Getenv("BATCH_SECRET")
	if secret == "" {
		log.Fatal().Msg("BATCH_SECRET is required")
	}

	client := resty.New().
		SetBaseURL(serverURL).
		SetAuthToken(secret).
		SetTimeout(timeout)

	req := client.R()
	if tenantID != "" {
		req.SetQueryParam("tenantId", tenantID)
	}

	resp, err := req.Post("/api/v1/batch/run")
	if err != nil {
		log.Fatal().Err(err).Msg("Sweep request failed")
	}

	if resp.IsError() {
		log.Fatal().
			Int("status", resp.StatusCode()).
			Str("body", resp.String()).
			Msg("Sweep refused")
	}

	var result struct {
		Processed    int `json:"processed"`
		LeadsCreated int `json:"leadsCreated"`
	}
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		log.Fatal().Err(err).Msg("Unexpected sweep response")
	}

	log.Info().
		Int("processed", result.Processed).
		Int("leadsCreated", result.LeadsCreated).
		Msg("Sweep finished")
}
