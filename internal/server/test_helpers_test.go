package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"tilerunner/internal/config"
	"tilerunner/internal/db"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var testDBSeq atomic.Int64

func newTestServer(t *testing.T) (*httptest.Server, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:servertest%d?mode=memory&cache=shared", testDBSeq.Add(1))
	conn, err := db.OpenSQLite(dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	srv := New(conn, config.Default())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, conn
}

func doRequest(t *testing.T, ts *httptest.Server, method, path string, payload any) *http.Response {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, ts.URL+path, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body
}

// createGame sets up a two-player game and returns its id plus the player
// ids in seat order.
func createGame(t *testing.T, ts *httptest.Server) (string, []string) {
	t.Helper()
	resp := doRequest(t, ts, http.MethodPost, "/api/games", map[string]any{
		"name": "test game",
		"players": []map[string]string{
			{"nickname": "Ada"},
			{"nickname": "Bob"},
		},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected status %d, got %d", http.StatusCreated, resp.StatusCode)
	}
	body := decodeBody(t, resp)
	game := body["game"].(map[string]any)
	gameID := game["id"].(string)
	var playerIDs []string
	for _, entry := range body["players"].([]any) {
		player := entry.(map[string]any)
		playerIDs = append(playerIDs, player["id"].(string))
	}
	return gameID, playerIDs
}

// forceDie pins a player's die through the database so rolls are
// deterministic in HTTP flows.
func forceDie(t *testing.T, conn *gorm.DB, gameID, playerID string, faces ...int) {
	t.Helper()
	err := conn.Model(&db.Die{}).
		Where("game_id = ? AND owner_player_id = ?", gameID, playerID).
		Update("faces", datatypes.JSONSlice[int](faces)).Error
	if err != nil {
		t.Fatalf("force die: %v", err)
	}
}

func assertErrorCode(t *testing.T, resp *http.Response, status int, code string) {
	t.Helper()
	if resp.StatusCode != status {
		t.Fatalf("expected status %d, got %d", status, resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if got, _ := body["code"].(string); got != code {
		t.Fatalf("expected error code %s, got %v", code, body["code"])
	}
}
