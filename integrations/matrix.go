package integrations

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/chxlky/trello-matrix-bot/internal/options"
	"github.com/google/uuid"
)

// BotOptionsEventType is the room state event holding per-bot configuration.
const BotOptionsEventType = "m.room.bot.options"

const (
	ErrCodeNotFound  = "M_NOT_FOUND"
	ErrCodeForbidden = "M_FORBIDDEN"
)

// MatrixError is the structured error body returned by a homeserver.
type MatrixError struct {
	Code       string `json:"errcode"`
	Message    string `json:"error"`
	StatusCode int    `json:"-"`
}

func (e *MatrixError) Error() string {
	return fmt.Sprintf("matrix: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// IsMatrixError checks whether err is a *MatrixError with the given code.
func IsMatrixError(err error, code string) bool {
	var matrixErr *MatrixError
	if errors.As(err, &matrixErr) {
		return matrixErr.Code == code
	}
	return false
}

// MatrixClient is a minimal client-server API client for the bot's own account.
type MatrixClient struct {
	Client        *http.Client
	HomeserverURL string
	AccessToken   string
}

func NewMatrixClient(homeserverURL, accessToken string) (*MatrixClient, error) {
	if homeserverURL == "" {
		return nil, fmt.Errorf("matrix homeserver URL is required")
	}
	if _, err := url.Parse(homeserverURL); err != nil {
		return nil, fmt.Errorf("invalid matrix homeserver URL %q: %w", homeserverURL, err)
	}
	return &MatrixClient{
		Client:        &http.Client{},
		HomeserverURL: strings.TrimRight(homeserverURL, "/"),
		AccessToken:   accessToken,
	}, nil
}

// WhoAmI returns the user ID the access token belongs to.
func (mc *MatrixClient) WhoAmI(ctx context.Context) (string, error) {
	var response struct {
		UserID string `json:"user_id"`
	}
	if err := mc.do(ctx, http.MethodGet, "/_matrix/client/v3/account/whoami", nil, &response); err != nil {
		return "", err
	}
	return response.UserID, nil
}

// GetStateEvent returns the raw content of one state event.
func (mc *MatrixClient) GetStateEvent(ctx context.Context, roomID, eventType, stateKey string) (json.RawMessage, error) {
	var content json.RawMessage
	if err := mc.do(ctx, http.MethodGet, statePath(roomID, eventType, stateKey), nil, &content); err != nil {
		return nil, err
	}
	return content, nil
}

// SendStateEvent replaces a state event and returns the new event ID.
func (mc *MatrixClient) SendStateEvent(ctx context.Context, roomID, eventType, stateKey string, content any) (string, error) {
	var response struct {
		EventID string `json:"event_id"`
	}
	if err := mc.do(ctx, http.MethodPut, statePath(roomID, eventType, stateKey), content, &response); err != nil {
		return "", err
	}
	return response.EventID, nil
}

// SendNotice sends an m.notice with an HTML body and its plain text rendering.
func (mc *MatrixClient) SendNotice(ctx context.Context, roomID, plain, html string) error {
	content := map[string]string{
		"msgtype":        "m.notice",
		"body":           plain,
		"format":         "org.matrix.custom.html",
		"formatted_body": html,
	}
	path := "/_matrix/client/v3/rooms/" + url.PathEscape(roomID) + "/send/m.room.message/" + uuid.NewString()
	return mc.do(ctx, http.MethodPut, path, content, nil)
}

func statePath(roomID, eventType, stateKey string) string {
	return "/_matrix/client/v3/rooms/" + url.PathEscape(roomID) + "/state/" + url.PathEscape(eventType) + "/" + url.PathEscape(stateKey)
}

func (mc *MatrixClient) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, mc.HomeserverURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", method, err)
	}
	req.Header.Set("Authorization", "Bearer "+mc.AccessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := mc.Client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send %s request: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		matrixErr := &MatrixError{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(bodyBytes, matrixErr); err != nil || matrixErr.Code == "" {
			return fmt.Errorf("matrix API returned non-200 status: %s, body: %s", resp.Status, string(bodyBytes))
		}
		return matrixErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode matrix response: %w", err)
	}
	return nil
}

// MatrixRecordStore keeps bot options records in room state.
type MatrixRecordStore struct {
	Client    *MatrixClient
	EventType string
}

func (s *MatrixRecordStore) ReadRecord(ctx context.Context, roomID, key string) (json.RawMessage, error) {
	content, err := s.Client.GetStateEvent(ctx, roomID, s.eventType(), key)
	if IsMatrixError(err, ErrCodeNotFound) {
		return nil, options.ErrRecordNotFound
	}
	return content, err
}

func (s *MatrixRecordStore) WriteRecord(ctx context.Context, roomID, key string, record json.RawMessage) error {
	_, err := s.Client.SendStateEvent(ctx, roomID, s.eventType(), key, record)
	return err
}

func (s *MatrixRecordStore) eventType() string {
	if s.EventType == "" {
		return BotOptionsEventType
	}
	return s.EventType
}
