package feed

import (
	"context"
	"fmt"

	"github.com/anonto42/nano-feed/backend/internal/models"
	"github.com/anonto42/nano-feed/backend/internal/repositories"
)

// DefaultPageSize is the number of posts per feed page.
const DefaultPageSize = 2

// Paginator computes newest-first windows over the post store.
type Paginator struct {
	posts           repositories.PostRepository
	users           repositories.UserRepository
	defaultPageSize int
}

func NewPaginator(posts repositories.PostRepository, users repositories.UserRepository, defaultPageSize int) *Paginator {
	if defaultPageSize < 1 {
		defaultPageSize = DefaultPageSize
	}

	return &Paginator{
		posts:           posts,
		users:           users,
		defaultPageSize: defaultPageSize,
	}
}

// Page returns the 1-based pageIndex window. Indexes below 1 are clamped to 1 and
// a pageSize below 1 uses the default.
//
// The total is counted in a separate query before the scan. A create or delete
// landing between the two is visible in one and not the other.
func (p *Paginator) Page(ctx context.Context, pageIndex, pageSize int) (*models.FeedPage, error) {
	if pageIndex < 1 {
		pageIndex = 1
	}
	if pageSize < 1 {
		pageSize = p.defaultPageSize
	}

	total, err := p.posts.CountPosts(ctx)
	if err != nil {
		return nil, fmt.Errorf("count feed: %w", err)
	}

	skip := int64(pageSize) * int64(pageIndex-1)
	posts, err := p.posts.ListPosts(ctx, skip, int64(pageSize))
	if err != nil {
		return nil, fmt.Errorf("scan feed page %d: %w", pageIndex, err)
	}

	creators, err := p.creators(ctx, posts)
	if err != nil {
		return nil, fmt.Errorf("resolve feed creators: %w", err)
	}

	snapshots := make([]models.PostSnapshot, 0, len(posts))
	for i := range posts {
		snapshots = append(snapshots, posts[i].Snapshot(creators[posts[i].CreatorID]))
	}

	return &models.FeedPage{
		Posts:      snapshots,
		TotalItems: total,
		Page:       pageIndex,
		PageSize:   pageSize,
	}, nil
}

func (p *Paginator) creators(ctx context.Context, posts []models.Post) (map[uint]*models.User, error) {
	seen := make(map[uint]struct{}, len(posts))
	ids := make([]uint, 0, len(posts))
	for _, post := range posts {
		if _, ok := seen[post.CreatorID]; ok {
			continue
		}
		seen[post.CreatorID] = struct{}{}
		ids = append(ids, post.CreatorID)
	}

	users, err := p.users.GetUsersByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[uint]*models.User, len(users))
	for i := range users {
		byID[users[i].ID] = &users[i]
	}
	return byID, nil
}
