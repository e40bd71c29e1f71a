package highlights

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client is the thin outbound client for the external highlight-extraction
// service. Greenroom only hands over identifiers once a room completes;
// everything downstream (media, subtitles, analytics) is the extraction
// pipeline's problem.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Enabled reports whether a target service is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.baseURL != ""
}

type extractionRequest struct {
	RoomID         string   `json:"room_id"`
	RoomCode       string   `json:"room_code"`
	ParticipantIDs []string `json:"participant_ids"`
}

// RequestExtraction notifies the extraction service that a room's
// recording is complete. Fire-and-forget from the lifecycle's point of
// view: failures are the caller's to log, never to surface to guests.
func (c *Client) RequestExtraction(ctx context.Context, roomID, roomCode string, participantIDs []string) error {
	payload, err := json.Marshal(extractionRequest{
		RoomID:         roomID,
		RoomCode:       roomCode,
		ParticipantIDs: participantIDs,
	})
	if err != nil {
		return fmt.Errorf("marshaling extraction request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/extractions", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building extraction request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling extraction service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("extraction service returned %s", resp.Status)
	}
	return nil
}
