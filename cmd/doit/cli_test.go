package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0644))
	return p
}

func TestReadGoals_YAMLAndJSON(t *testing.T) {
	dir := t.TempDir()

	yamlPath := writeFile(t, dir, "goals.yaml", "goals:\n  - read more\ncontent_zone_outs:\n  - rage_bait\n")
	goals, err := readGoals(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"rage_bait"}, goals.StringList("content_zone_outs"))

	jsonPath := writeFile(t, dir, "goals.json", `{"behavior_zone_outs": ["past_midnight"]}`)
	goals, err = readGoals(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"past_midnight"}, goals.StringList("behavior_zone_outs"))

	emptyPath := writeFile(t, dir, "empty.yaml", "")
	_, err = readGoals(emptyPath)
	assert.Error(t, err)
}

func TestBuildPayload(t *testing.T) {
	dir := t.TempDir()
	review := writeFile(t, dir, "review.json", `{
		"user_goals": {"content_zone_outs": ["rage_bait"]},
		"daily_summaries": [{"date": "2026-10-12"}],
		"zone_out_events": [],
		"review_period": {"start": "2026-10-12"}
	}`)

	payload, err := buildPayload("", "u1", "", review)
	require.NoError(t, err)
	assert.Equal(t, "u1", payload.UserID)
	require.NotNil(t, payload.ReviewData)
	assert.Len(t, payload.ReviewData.DailySummaries, 1)
	assert.Equal(t, []string{"rage_bait"}, payload.ReviewData.UserGoals.StringList("content_zone_outs"))

	_, err = buildPayload("", "", "", filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestUploadPlan(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "002.webp", "b")
	writeFile(t, dir, "001.webp", "a")
	writeFile(t, dir, "001_meta.txt", "meta")
	writeFile(t, dir, ".DS_Store", "x")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0755))

	plan, names, err := uploadPlan(dir, "/uploads/u1/s1/")
	require.NoError(t, err)
	assert.Equal(t, []string{"uploads/u1/s1/001.webp", "uploads/u1/s1/001_meta.txt", "uploads/u1/s1/002.webp"}, names)
	assert.Equal(t, filepath.Join(dir, "002.webp"), plan["uploads/u1/s1/002.webp"])
}

func TestAPIError_DecodesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"missing review_data","code":"INVALID_INPUT","job_id":"j1"}`))
	}))
	defer srv.Close()

	saved := apiAddr
	apiAddr = srv.URL
	defer func() { apiAddr = saved }()

	_, err := apiPost("/jobs", map[string]string{"type": "review"})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "INVALID_INPUT", apiErr.Code)
	assert.Equal(t, "API error (400): missing review_data (job j1)", err.Error())
}

func TestEscapeBlobName(t *testing.T) {
	assert.Equal(t, "uploads/u%201/001.webp", escapeBlobName("uploads/u 1/001.webp"))
}
