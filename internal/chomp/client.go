package chomp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gator-labs/chomp-bot/internal/models"
)

// ErrUnavailable covers transport failures and timeouts. Callers treat it
// as "no data" and keep the conversation alive.
var ErrUnavailable = errors.New("chomp backend unavailable")

// RejectedError is a non-2xx response with its body snippet, logged but
// never shown verbatim to chat users.
type RejectedError struct {
	Status int
	Body   string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("chomp backend rejected request: status %d: %s", e.Status, e.Body)
}

// Client issues authenticated JSON requests to the Chomp backend. It holds
// no state; the backend is the system of record.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
	}
}

type profileResponse struct {
	Profile *models.User `json:"profile"`
}

// GetUserByTelegram looks up the profile bound to the telegram identity in
// authToken. Returns (nil, nil) when no profile exists yet.
func (c *Client) GetUserByTelegram(ctx context.Context, authToken string) (*models.User, error) {
	var resp profileResponse
	// authToken is already URL-encoded.
	err := c.get(ctx, "/api/user/getUserByTelegram?telegramAuthToken="+authToken, &resp)
	if err != nil {
		var rejected *RejectedError
		if errors.As(err, &rejected) && rejected.Status == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	return resp.Profile, nil
}

// CreateUserByTelegram registers a new temporary user for the telegram
// identity in authToken.
func (c *Client) CreateUserByTelegram(ctx context.Context, authToken string) (*models.User, error) {
	var resp profileResponse
	body := map[string]string{"telegramAuthToken": authToken}
	if err := c.post(ctx, "/api/user/createUserByTelegram", body, &resp); err != nil {
		return nil, err
	}
	if resp.Profile == nil {
		return nil, &RejectedError{Status: http.StatusOK, Body: "create returned no profile"}
	}
	return resp.Profile, nil
}

// GetOrCreateUser looks up the user and creates one only on a miss, so a
// repeated /start never issues a second create. The second return value
// reports whether a user was created.
func (c *Client) GetOrCreateUser(ctx context.Context, authToken string) (*models.User, bool, error) {
	user, err := c.GetUserByTelegram(ctx, authToken)
	if err != nil {
		return nil, false, err
	}
	if user != nil {
		return user, false, nil
	}
	user, err = c.CreateUserByTelegram(ctx, authToken)
	if err != nil {
		return nil, false, err
	}
	return user, true, nil
}

// GetUserByEmail fetches the permanent wallet-bound profile for an email
// after OTP verification.
func (c *Client) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var resp profileResponse
	err := c.get(ctx, "/api/user/getUserByEmail?email="+url.QueryEscape(email), &resp)
	if err != nil {
		return nil, err
	}
	if resp.Profile == nil {
		return nil, &RejectedError{Status: http.StatusOK, Body: "no profile for email"}
	}
	return resp.Profile, nil
}

// GetNextQuestion fetches the next unanswered question for the user.
// Returns (nil, nil) when the user has chomped through everything.
func (c *Client) GetNextQuestion(ctx context.Context, userID string) (*models.Question, error) {
	var resp struct {
		Question *models.Question `json:"question"`
	}
	err := c.get(ctx, "/api/question/get-next-question?userId="+url.QueryEscape(userID), &resp)
	if err != nil {
		var rejected *RejectedError
		if errors.As(err, &rejected) && rejected.Status == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	return resp.Question, nil
}

// GetRevealCount returns how many answered questions are eligible for
// reveal.
func (c *Client) GetRevealCount(ctx context.Context, userID string) (int, error) {
	var resp struct {
		Questions []models.Question `json:"questions"`
	}
	err := c.get(ctx, "/api/question/get-questions-for-reveal?userId="+url.QueryEscape(userID), &resp)
	if err != nil {
		return 0, err
	}
	return len(resp.Questions), nil
}

// SubmitAnswer records a completed round. Deck questions go to the deck
// endpoint, standalone ones to the question endpoint.
func (c *Client) SubmitAnswer(ctx context.Context, userID string, answer models.Answer) error {
	path := "/api/answer/question"
	if answer.DeckID != nil {
		path = "/api/answer/deck"
	}

	body := struct {
		UserID string `json:"userId"`
		models.Answer
	}{UserID: userID, Answer: answer}

	return c.post(ctx, path, body, nil)
}

// SetSubscription flips the notification subscription flag for the
// telegram identity in authToken.
func (c *Client) SetSubscription(ctx context.Context, authToken string, subscribed bool) error {
	body := map[string]interface{}{
		"telegramAuthToken": authToken,
		"isBotSubscriber":   subscribed,
	}
	return c.post(ctx, "/api/user/setUserSubscription", body, nil)
}

// ListSubscribers returns every user subscribed to bot notifications.
func (c *Client) ListSubscribers(ctx context.Context) ([]models.User, error) {
	var resp struct {
		Users []models.User `json:"users"`
	}
	if err := c.get(ctx, "/api/users/getSubscribedUsers", &resp); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

func (c *Client) get(ctx context.Context, pathAndQuery string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+pathAndQuery, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &RejectedError{Status: resp.StatusCode, Body: string(snippet)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
