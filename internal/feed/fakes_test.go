package feed

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	fbauth "firebase.google.com/go/v4/auth"
	"github.com/anonto42/nano-feed/backend/internal/auth"
	"github.com/anonto42/nano-feed/backend/internal/broadcast"
	"github.com/anonto42/nano-feed/backend/internal/models"
	"github.com/anonto42/nano-feed/backend/internal/repositories"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type memPostStore struct {
	mu         sync.Mutex
	posts      map[string]models.Post
	commits    []string
	failDelete error
}

func newMemPostStore() *memPostStore {
	return &memPostStore{posts: make(map[string]models.Post)}
}

func (s *memPostStore) CreatePost(_ context.Context, post *models.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := post.ID.Hex()
	if _, ok := s.posts[id]; ok {
		return repositories.ErrDuplicate
	}
	s.posts[id] = *post
	s.commits = append(s.commits, "create:"+post.Title)
	return nil
}

func (s *memPostStore) GetPostByID(_ context.Context, id string) (*models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.posts[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &post, nil
}

func (s *memPostStore) UpdatePost(_ context.Context, post *models.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := post.ID.Hex()
	stored, ok := s.posts[id]
	if !ok {
		return repositories.ErrNotFound
	}
	stored.Title = post.Title
	stored.Content = post.Content
	stored.ImageURL = post.ImageURL
	stored.UpdatedAt = post.UpdatedAt
	s.posts[id] = stored
	s.commits = append(s.commits, "update:"+post.Title)
	return nil
}

func (s *memPostStore) DeletePost(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failDelete != nil {
		return s.failDelete
	}
	if _, ok := s.posts[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(s.posts, id)
	s.commits = append(s.commits, "delete:"+id)
	return nil
}

func (s *memPostStore) ListPosts(_ context.Context, skip, limit int64) ([]models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := make([]models.Post, 0, len(s.posts))
	for _, p := range s.posts {
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID.Hex() > all[j].ID.Hex()
	})

	if skip >= int64(len(all)) {
		return []models.Post{}, nil
	}
	end := skip + limit
	if end > int64(len(all)) {
		end = int64(len(all))
	}
	return all[skip:end], nil
}

func (s *memPostStore) CountPosts(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return int64(len(s.posts)), nil
}

func (s *memPostStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.posts)
}

func (s *memPostStore) committed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.commits...)
}

type memUserStore struct {
	mu           sync.Mutex
	nextID       uint
	users        map[uint]models.User
	owned        map[uint][]string
	failAddOwned error
}

func newMemUserStore() *memUserStore {
	return &memUserStore{
		users: make(map[uint]models.User),
		owned: make(map[uint][]string),
	}
}

func (s *memUserStore) CreateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Email == user.Email {
			return repositories.ErrDuplicate
		}
	}
	s.nextID++
	user.ID = s.nextID
	if user.Status == "" {
		user.Status = models.DefaultStatus
	}
	s.users[user.ID] = *user
	return nil
}

func (s *memUserStore) GetUserByID(_ context.Context, id uint) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &user, nil
}

func (s *memUserStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (s *memUserStore) GetUsersByIDs(_ context.Context, ids []uint) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var users []models.User
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			users = append(users, u)
		}
	}
	return users, nil
}

func (s *memUserStore) UpdateStatus(_ context.Context, id uint, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return repositories.ErrNotFound
	}
	user.Status = status
	s.users[id] = user
	return nil
}

func (s *memUserStore) AddOwnedPost(_ context.Context, userID uint, postID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failAddOwned != nil {
		return s.failAddOwned
	}
	for _, id := range s.owned[userID] {
		if id == postID {
			return nil
		}
	}
	s.owned[userID] = append(s.owned[userID], postID)
	return nil
}

func (s *memUserStore) RemoveOwnedPost(_ context.Context, userID uint, postID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.owned[userID]
	for i, id := range ids {
		if id == postID {
			s.owned[userID] = append(ids[:i:i], ids[i+1:]...)
			return nil
		}
	}
	return repositories.ErrNotFound
}

func (s *memUserStore) OwnedPostIDs(_ context.Context, userID uint) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.owned[userID]...), nil
}

func (s *memUserStore) setFailAddOwned(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failAddOwned = err
}

type recordingImages struct {
	mu       sync.Mutex
	released []string
}

func (r *recordingImages) Release(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.released = append(r.released, path)
}

func (r *recordingImages) paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.released...)
}

type fakeFirebase struct {
	tokens map[string]*fbauth.Token
}

func (f *fakeFirebase) VerifyIDToken(_ context.Context, idToken string) (*fbauth.Token, error) {
	token, ok := f.tokens[idToken]
	if !ok {
		return nil, errors.New("invalid token")
	}
	return token, nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

type fixture struct {
	coord    *Coordinator
	posts    *memPostStore
	users    *memUserStore
	hub      *broadcast.Hub
	images   *recordingImages
	firebase *fakeFirebase
	clock    *testClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clock := &testClock{now: time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)}
	tokens, err := auth.NewTokenManager("test-secret", time.Hour, auth.WithClock(clock.Now))
	require.NoError(t, err)

	f := &fixture{
		posts:    newMemPostStore(),
		users:    newMemUserStore(),
		hub:      broadcast.NewHub(256, nil),
		images:   &recordingImages{},
		firebase: &fakeFirebase{tokens: make(map[string]*fbauth.Token)},
		clock:    clock,
	}
	t.Cleanup(f.hub.Close)

	f.coord = NewCoordinator(Deps{
		Posts:       f.posts,
		Users:       f.users,
		Credentials: tokens,
		Hasher:      auth.NewBcryptHasher(bcrypt.MinCost),
		Publisher:   f.hub,
		Images:      f.images,
		Firebase:    f.firebase,
		PageSize:    2,
		Now:         clock.Now,
	})

	return f
}

// account signs up and logs in, returning the identity and its Authorization header.
func (f *fixture) account(t *testing.T, email, name string) (uint, string) {
	t.Helper()

	ctx := context.Background()
	_, err := f.coord.Signup(ctx, models.SignupRequest{Email: email, Name: name, Password: "password"})
	require.NoError(t, err)

	res, err := f.coord.Login(ctx, models.LoginRequest{Email: email, Password: "password"})
	require.NoError(t, err)

	return res.UserID, "Bearer " + res.Token
}

func (f *fixture) createPost(t *testing.T, credential, title string) *models.PostSnapshot {
	t.Helper()

	snap, err := f.coord.CreatePost(context.Background(), credential, models.PostRequest{
		Title:         title,
		Content:       "Some content for " + title,
		UploadedImage: "images/" + title + ".png",
	})
	require.NoError(t, err)
	f.clock.Advance(time.Second)

	return snap
}
