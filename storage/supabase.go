package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/oksnap/oksnap/utils"
)

const supabaseTimeout = 10 * time.Second

// SupabaseStore persists records through the Supabase REST API
// (PostgREST). Upserts rely on the merge-duplicates resolution header, so
// per-key writes are atomic on the backend side.
type SupabaseStore struct {
	baseURL string
	apiKey  string
	table   string
	client  *http.Client
}

// supabaseRow mirrors the rate_limits table. Structured columns are stored
// alongside the JSON value for easier querying server-side.
type supabaseRow struct {
	Key          string `json:"key"`
	Value        string `json:"value,omitempty"`
	Count        int    `json:"count"`
	Date         string `json:"date,omitempty"`
	Level        string `json:"level,omitempty"`
	BonusApplied bool   `json:"bonus_applied"`
	ResetTime    string `json:"reset_time,omitempty"`
	ExpiresAt    string `json:"expires_at,omitempty"`
	UpdatedAt    string `json:"updated_at,omitempty"`
}

// NewSupabaseStore creates a store against the given Supabase project.
func NewSupabaseStore(baseURL, apiKey string) *SupabaseStore {
	return &SupabaseStore{
		baseURL: baseURL,
		apiKey:  apiKey,
		table:   "rate_limits",
		client:  &http.Client{Timeout: supabaseTimeout},
	}
}

func (s *SupabaseStore) endpoint() string {
	return fmt.Sprintf("%s/rest/v1/%s", s.baseURL, s.table)
}

func (s *SupabaseStore) authorize(req *http.Request) {
	req.Header.Set("apikey", s.apiKey)
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")
}

func (s *SupabaseStore) Get(ctx context.Context, key string) (*Record, error) {
	reqURL := fmt.Sprintf("%s?key=eq.%s&select=*", s.endpoint(), url.QueryEscape(key))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	s.authorize(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// table may not exist yet; treat as absent so quota fails open
		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNotAcceptable {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("supabase query failed: %d", resp.StatusCode)
	}

	var rows []supabaseRow
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}

	return rowToRecord(rows[0]), nil
}

func (s *SupabaseStore) Set(ctx context.Context, key string, rec *Record, expiresAt time.Time) error {
	row := supabaseRow{
		Key:          key,
		Count:        rec.Count,
		Date:         rec.Date,
		Level:        rec.Level,
		BonusApplied: rec.BonusApplied,
		UpdatedAt:    time.Now().UTC().Format(time.RFC3339),
	}
	if !rec.ResetTime.IsZero() {
		row.ResetTime = rec.ResetTime.UTC().Format(time.RFC3339)
	}
	if !expiresAt.IsZero() {
		row.ExpiresAt = expiresAt.UTC().Format(time.RFC3339)
	}
	if value, err := json.Marshal(rec); err == nil {
		row.Value = string(value)
	}

	body, err := json.Marshal(row)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	s.authorize(req)
	req.Header.Set("Prefer", "resolution=merge-duplicates")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNotAcceptable {
			if utils.Sugar != nil {
				utils.Sugar.Warnf("supabase table %s not found, skipping write", s.table)
			}
			return nil
		}
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("supabase write failed: %d - %s", resp.StatusCode, string(detail))
	}
	return nil
}

func (s *SupabaseStore) Delete(ctx context.Context, key string) error {
	reqURL := fmt.Sprintf("%s?key=eq.%s", s.endpoint(), url.QueryEscape(key))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, reqURL, nil)
	if err != nil {
		return err
	}
	s.authorize(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("supabase delete failed: %d", resp.StatusCode)
	}
	return nil
}

// rowToRecord prefers the JSON value column and falls back to the legacy
// structured columns when the value is missing or unparseable.
func rowToRecord(row supabaseRow) *Record {
	if row.Value != "" {
		var rec Record
		if err := json.Unmarshal([]byte(row.Value), &rec); err == nil {
			return &rec
		}
	}
	rec := Record{
		Count:        row.Count,
		Date:         row.Date,
		Level:        row.Level,
		BonusApplied: row.BonusApplied,
	}
	if row.ResetTime != "" {
		if t, err := time.Parse(time.RFC3339, row.ResetTime); err == nil {
			rec.ResetTime = t
		}
	}
	return &rec
}
