package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/darkconsole/console-chat/config"
	"github.com/darkconsole/console-chat/databases/mocks"
)

func newTestApp() *App {
	a := &App{Config: config.Config{JWTSecret: "test-secret", HistoryLimit: 50}}
	a.Wire(&mocks.ChatMessageDatabase{})
	return a
}

func executeRequest(a *App, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	a.Router.ServeHTTP(rr, req)
	return rr
}

func checkResponseCode(t *testing.T, expected, actual int) {
	if expected != actual {
		t.Errorf("Expected response code %d. Got %d\n", expected, actual)
	}
}

func TestUnknownRoute(t *testing.T) {
	a := newTestApp()
	req, _ := http.NewRequest("GET", "/asdf", nil)
	response := executeRequest(a, req)

	checkResponseCode(t, http.StatusNotFound, response.Code)
}

func TestHealthCheckRoute(t *testing.T) {
	a := newTestApp()
	req, _ := http.NewRequest("GET", "/health", nil)
	response := executeRequest(a, req)

	checkResponseCode(t, http.StatusOK, response.Code)

	if !strings.Contains(response.Body.String(), "alive") {
		t.Errorf("Expected 'alive' in the reponse. Got '%s'", response.Body.String())
	}
}

func TestMetricsRoute(t *testing.T) {
	a := newTestApp()
	req, _ := http.NewRequest("GET", "/metrics", nil)
	response := executeRequest(a, req)

	checkResponseCode(t, http.StatusOK, response.Code)
	if !strings.Contains(response.Body.String(), "console_chat_room_members") {
		t.Errorf("Expected relay collectors in the response. Got '%s'", response.Body.String())
	}
}

func TestApp_ChatHistoryInvalidToken(t *testing.T) {
	a := newTestApp()
	req, _ := http.NewRequest("GET", "/api/v1/chats/order:42", nil)
	req.Header.Add("Authorization", "Bearer asdfasdf")
	response := executeRequest(a, req)

	checkResponseCode(t, http.StatusUnauthorized, response.Code)
}

func TestApp_ChatHistoryWrongMethod(t *testing.T) {
	a := newTestApp()
	req, _ := http.NewRequest("POST", "/api/v1/chats/order:42", nil)
	response := executeRequest(a, req)

	checkResponseCode(t, http.StatusMethodNotAllowed, response.Code)
}
