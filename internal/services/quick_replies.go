package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/Ananth-NQI/wamirror-backend/internal/models"
	"github.com/Ananth-NQI/wamirror-backend/internal/storage"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// QuickReplyService manages canned replies with {{param}} placeholders
type QuickReplyService struct {
	store storage.Store
}

// NewQuickReplyService creates a new quick reply service
func NewQuickReplyService(store storage.Store) *QuickReplyService {
	return &QuickReplyService{store: store}
}

func (s *QuickReplyService) List(ctx context.Context) ([]*models.QuickReply, error) {
	return s.store.ListQuickReplies(ctx)
}

// Create validates and stores a quick reply
func (s *QuickReplyService) Create(ctx context.Context, title, body string, ownerID *string) (*models.QuickReply, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidArgument)
	}
	if strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("%w: body is required", ErrInvalidArgument)
	}
	return s.store.CreateQuickReply(ctx, &models.QuickReply{
		OwnerID: ownerID,
		Title:   title,
		Body:    body,
	})
}

func (s *QuickReplyService) Delete(ctx context.Context, id string) error {
	return s.store.DeleteQuickReply(ctx, id)
}

// Parameters lists the placeholder names of body in order of first use
func Parameters(body string) []string {
	seen := make(map[string]bool)
	var params []string
	for _, m := range placeholderPattern.FindAllStringSubmatch(body, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			params = append(params, m[1])
		}
	}
	return params
}

// Render fills every placeholder of the quick reply from params
func (s *QuickReplyService) Render(ctx context.Context, id string, params map[string]string) (string, error) {
	reply, err := s.store.GetQuickReply(ctx, id)
	if err != nil {
		return "", err
	}

	for _, name := range Parameters(reply.Body) {
		if _, ok := params[name]; !ok {
			return "", fmt.Errorf("%w: missing required parameter: %s", ErrInvalidArgument, name)
		}
	}

	return placeholderPattern.ReplaceAllStringFunc(reply.Body, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		return params[name]
	}), nil
}
