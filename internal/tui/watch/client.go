package watch

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/sasspipe/internal/api"
)

// --- Message types ---

type healthMsg api.HealthzResponse

type jobsMsg []api.JobResponse

type tickMsg time.Time

type errMsg error

// --- Commands ---

func fetchHealth(apiURL string) tea.Cmd {
	return func() tea.Msg {
		resp, err := http.Get(apiURL + "/healthz")
		if err != nil {
			return errMsg(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return errMsg(fmt.Errorf("healthz returned %d", resp.StatusCode))
		}

		var h healthMsg
		if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
			return errMsg(err)
		}
		return h
	}
}

func fetchJobs(apiURL string) tea.Cmd {
	return func() tea.Msg {
		resp, err := http.Get(apiURL + "/v1/jobs?limit=15")
		if err != nil {
			return errMsg(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return errMsg(fmt.Errorf("jobs returned %d", resp.StatusCode))
		}

		var jobs jobsMsg
		if err := json.NewDecoder(resp.Body).Decode(&jobs); err != nil {
			return errMsg(err)
		}
		return jobs
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}
