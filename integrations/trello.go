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

	"github.com/chxlky/trello-matrix-bot/internal/models"
	"go.uber.org/zap"
)

const DefaultTrelloBaseURL = "https://api.trello.com"

var (
	ErrTrelloNotFound = errors.New("trello: not found")
	ErrWebhookExists  = errors.New("trello: webhook already exists")
)

// TrelloClient talks to the Trello REST API. Calls made on behalf of a user
// authenticate with that user's token; the client's own APIToken is used when
// none is given.
type TrelloClient struct {
	Client      *http.Client
	BaseURL     string
	APIKey      string
	APIToken    string
	CallbackURL string
}

func NewTrelloClient(key, token, callbackURL string) *TrelloClient {
	return &TrelloClient{
		Client:      &http.Client{},
		BaseURL:     DefaultTrelloBaseURL,
		APIKey:      key,
		APIToken:    token,
		CallbackURL: callbackURL,
	}
}

func (tc *TrelloClient) GetBoards(ctx context.Context, token *models.TrelloToken) ([]models.Board, error) {
	var boards []models.Board
	if err := tc.get(ctx, token, "/1/members/me/boards", nil, &boards); err != nil {
		return nil, err
	}
	return boards, nil
}

func (tc *TrelloClient) GetBoard(ctx context.Context, token *models.TrelloToken, boardID string) (*models.Board, error) {
	var board models.Board
	if err := tc.get(ctx, token, "/1/boards/"+url.PathEscape(boardID), nil, &board); err != nil {
		return nil, err
	}
	return &board, nil
}

// GetLists returns the lists on a board. filter is one of Trello's list
// filters ("open", "closed", "all"); empty means Trello's default.
func (tc *TrelloClient) GetLists(ctx context.Context, token *models.TrelloToken, boardID, filter string) ([]models.List, error) {
	query := url.Values{}
	if filter != "" {
		query.Set("filter", filter)
	}
	var lists []models.List
	if err := tc.get(ctx, token, "/1/boards/"+url.PathEscape(boardID)+"/lists", query, &lists); err != nil {
		return nil, err
	}
	return lists, nil
}

// GetList fetches a list and reports ErrTrelloNotFound when it is not on boardID.
func (tc *TrelloClient) GetList(ctx context.Context, token *models.TrelloToken, boardID, listID string) (*models.List, error) {
	var list models.List
	if err := tc.get(ctx, token, "/1/lists/"+url.PathEscape(listID), nil, &list); err != nil {
		return nil, err
	}
	if list.IDBoard != boardID {
		return nil, fmt.Errorf("list %s is not on board %s: %w", listID, boardID, ErrTrelloNotFound)
	}
	return &list, nil
}

func (tc *TrelloClient) GetCardsInList(ctx context.Context, token *models.TrelloToken, boardID, listID string) ([]models.Card, error) {
	var cards []models.Card
	if err := tc.get(ctx, token, "/1/lists/"+url.PathEscape(listID)+"/cards", nil, &cards); err != nil {
		return nil, err
	}
	return cards, nil
}

// GetType asks Trello what kind of entity an ID or short link refers to.
func (tc *TrelloClient) GetType(ctx context.Context, token *models.TrelloToken, text string) (*models.EntityType, error) {
	var entity models.EntityType
	if err := tc.get(ctx, token, "/1/types/"+url.PathEscape(text), nil, &entity); err != nil {
		return nil, err
	}
	return &entity, nil
}

func (tc *TrelloClient) RegisterWebhook(ctx context.Context, token *models.TrelloToken, boardID, description string) (string, error) {
	formData := tc.auth(token)
	formData.Set("callbackURL", tc.CallbackURL)
	formData.Set("idModel", boardID)
	formData.Set("description", description)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tc.BaseURL+"/1/webhooks/", bytes.NewBufferString(formData.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create post request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := tc.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send post request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		if strings.Contains(string(bodyBytes), "already exists") {
			return "", ErrWebhookExists
		}
		return "", fmt.Errorf("trello API returned non-200 status: %s, body: %s", resp.Status, string(bodyBytes))
	}

	var webhook struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&webhook); err != nil {
		return "", fmt.Errorf("failed to decode Trello response: %w", err)
	}

	zap.L().Info("Registered Trello webhook", zap.String("webhookID", webhook.ID), zap.String("boardID", boardID))

	return webhook.ID, nil
}

func (tc *TrelloClient) DeleteWebhook(ctx context.Context, token *models.TrelloToken, webhookID string) error {
	apiURL := fmt.Sprintf("%s/1/webhooks/%s?%s", tc.BaseURL, url.PathEscape(webhookID), tc.auth(token).Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, apiURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create delete request: %w", err)
	}

	resp, err := tc.Client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send delete request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		zap.L().Info("Trello webhook already gone", zap.String("webhookID", webhookID))
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("trello API returned non-200 status: %s, body: %s", resp.Status, string(bodyBytes))
	}

	zap.L().Info("Deleted Trello webhook", zap.String("webhookID", webhookID))

	return nil
}

func (tc *TrelloClient) auth(token *models.TrelloToken) url.Values {
	values := url.Values{}
	values.Set("key", tc.APIKey)
	if token != nil && token.Token != "" {
		values.Set("token", token.Token)
	} else {
		values.Set("token", tc.APIToken)
	}
	return values
}

func (tc *TrelloClient) get(ctx context.Context, token *models.TrelloToken, path string, query url.Values, out any) error {
	values := tc.auth(token)
	for k, v := range query {
		values[k] = v
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tc.BaseURL+path+"?"+values.Encode(), nil)
	if err != nil {
		return fmt.Errorf("failed to create get request: %w", err)
	}

	resp, err := tc.Client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send get request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest {
		// Trello answers 400 "invalid id" for malformed IDs.
		return fmt.Errorf("GET %s: %w", path, ErrTrelloNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("trello API returned non-200 status: %s, body: %s", resp.Status, string(bodyBytes))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode Trello response: %w", err)
	}
	return nil
}
