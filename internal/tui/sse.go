package tui

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattjoyce/bxt-launcher/internal/events"
)

type healthMsg struct {
	Status         string `json:"status"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
	HistoryEnabled bool   `json:"history_enabled"`
}

type errMsg struct{ err error }

type reconnectMsg struct{}

// readSSE parses a server-sent event stream into ch until r ends. An event
// still missing its terminating blank line at EOF is dropped.
func readSSE(r io.Reader, ch chan<- events.Event) error {
	sc := bufio.NewScanner(r)
	var (
		id   int64
		typ  string
		data string
	)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if data != "" {
				ch <- events.Event{ID: id, Type: typ, At: time.Now(), Data: json.RawMessage(data)}
			}
			id, typ, data = 0, "", ""
		case strings.HasPrefix(line, ":"):
			// keep-alive comment
		case strings.HasPrefix(line, "id: "):
			if n, err := strconv.ParseInt(line[4:], 10, 64); err == nil {
				id = n
			}
		case strings.HasPrefix(line, "event: "):
			typ = line[7:]
		case strings.HasPrefix(line, "data: "):
			data = line[6:]
		}
	}
	return sc.Err()
}

// subscribeToEvents streams /events into ch. It returns a reconnectMsg when
// the stream drops.
func subscribeToEvents(ctx context.Context, apiURL, apiKey string, ch chan<- events.Event) tea.Cmd {
	return func() tea.Msg {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL+"/events", nil)
		if err != nil {
			return errMsg{err}
		}
		if apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+apiKey)
		}

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return reconnectMsg{}
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return errMsg{fmt.Errorf("events stream: %s", resp.Status)}
		}

		_ = readSSE(resp.Body, ch)
		return reconnectMsg{}
	}
}

func fetchHealth(apiURL string) tea.Msg {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(apiURL + "/healthz")
	if err != nil {
		return errMsg{err}
	}
	defer resp.Body.Close()

	var h healthMsg
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return errMsg{err}
	}
	return h
}
