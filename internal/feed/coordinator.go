// Package feed runs every feed operation: it authenticates the caller, validates and
// authorizes the request, commits it to the stores and announces the change to live
// subscribers.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	fbauth "firebase.google.com/go/v4/auth"
	"github.com/anonto42/nano-feed/backend/internal/apperr"
	"github.com/anonto42/nano-feed/backend/internal/auth"
	"github.com/anonto42/nano-feed/backend/internal/broadcast"
	"github.com/anonto42/nano-feed/backend/internal/models"
	"github.com/anonto42/nano-feed/backend/internal/repositories"
	"github.com/anonto42/nano-feed/backend/internal/validation"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	msgPostNotFound   = "Post not found."
	msgUserNotFound   = "User does not exist."
	msgNotAuthorized  = "Not authorized."
	msgBadCredentials = "User or password incorrect."
	msgUserExists     = "User exists already!"
	msgInvalidInput   = "Validation failed, entered data is incorrect."
)

// Credentials verifies and issues bearer credentials.
type Credentials interface {
	Verify(authHeader string) (uint, error)
	Issue(userID uint, email string) (string, time.Time, error)
}

// Publisher receives committed change events.
type Publisher interface {
	Publish(ctx context.Context, event broadcast.Event)
}

// ImageReleaser schedules deletion of an image that no post references any more.
type ImageReleaser interface {
	Release(path string)
}

// IDTokenVerifier verifies third-party identity tokens. *fbauth.Client satisfies it.
type IDTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*fbauth.Token, error)
}

// Deps wires a Coordinator. Firebase is optional; Now defaults to time.Now.
type Deps struct {
	Posts       repositories.PostRepository
	Users       repositories.UserRepository
	Credentials Credentials
	Hasher      auth.PasswordHasher
	Validator   *validation.Engine
	Publisher   Publisher
	Images      ImageReleaser
	Firebase    IDTokenVerifier
	PageSize    int
	Log         *slog.Logger
	Now         func() time.Time
}

// Coordinator is the entry point for every feed request.
type Coordinator struct {
	posts       repositories.PostRepository
	users       repositories.UserRepository
	credentials Credentials
	hasher      auth.PasswordHasher
	validator   *validation.Engine
	publisher   Publisher
	images      ImageReleaser
	firebase    IDTokenVerifier
	paginator   *Paginator
	pageSize    int
	locks       *keyedMutex
	log         *slog.Logger
	now         func() time.Time
}

func NewCoordinator(d Deps) *Coordinator {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Validator == nil {
		d.Validator = validation.New()
	}
	if d.PageSize < 1 {
		d.PageSize = DefaultPageSize
	}

	return &Coordinator{
		posts:       d.Posts,
		users:       d.Users,
		credentials: d.Credentials,
		hasher:      d.Hasher,
		validator:   d.Validator,
		publisher:   d.Publisher,
		images:      d.Images,
		firebase:    d.Firebase,
		paginator:   NewPaginator(d.Posts, d.Users, d.PageSize),
		pageSize:    d.PageSize,
		locks:       newKeyedMutex(),
		log:         d.Log,
		now:         d.Now,
	}
}

// FirebaseEnabled reports whether federated login is configured.
func (c *Coordinator) FirebaseEnabled() bool {
	return c.firebase != nil
}

// Signup creates an identity. Nothing is stored when validation fails.
func (c *Coordinator) Signup(ctx context.Context, req models.SignupRequest) (*models.User, error) {
	in := validation.SignupInput{
		Email:    normalizeEmail(req.Email),
		Name:     strings.TrimSpace(req.Name),
		Password: req.Password,
	}
	if err := c.validator.ValidateSignup(in); err != nil {
		return nil, err
	}

	hashed, err := c.hasher.Hash(in.Password)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("hash password: %w", err))
	}

	user := &models.User{
		Email:    in.Email,
		Name:     in.Name,
		Password: hashed,
		Status:   models.DefaultStatus,
	}
	if err = c.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) {
			return nil, apperr.Conflict(msgUserExists)
		}
		return nil, apperr.Internal(fmt.Errorf("create user: %w", err))
	}

	c.log.InfoContext(ctx, "User signed up",
		"userID", user.ID)

	return user, nil
}

// Login exchanges an email and password for a credential.
func (c *Coordinator) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResult, error) {
	user, err := c.users.GetUserByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, apperr.Unauthenticated(msgBadCredentials)
		}
		return nil, apperr.Internal(fmt.Errorf("find user by email: %w", err))
	}

	if err = c.hasher.Compare(user.Password, req.Password); err != nil {
		return nil, apperr.Unauthenticated(msgBadCredentials)
	}

	return c.issue(user)
}

// LoginWithFirebase exchanges a Firebase ID token for a local credential, creating
// the identity on first use. Accounts are matched by email.
func (c *Coordinator) LoginWithFirebase(ctx context.Context, idToken string) (*models.LoginResult, error) {
	if c.firebase == nil {
		return nil, apperr.NotFound("Firebase login is not enabled.")
	}

	token, err := c.firebase.VerifyIDToken(ctx, strings.TrimSpace(idToken))
	if err != nil {
		return nil, apperr.Unauthenticated("Invalid Firebase ID token.")
	}

	email, _ := token.Claims["email"].(string)
	email = normalizeEmail(email)
	if email == "" {
		return nil, apperr.Unauthenticated("Firebase account has no email.")
	}

	user, err := c.users.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
	case errors.Is(err, repositories.ErrNotFound):
		user, err = c.createFederatedUser(ctx, email, token)
		if err != nil {
			return nil, err
		}
	default:
		return nil, apperr.Internal(fmt.Errorf("find user by email: %w", err))
	}

	return c.issue(user)
}

func (c *Coordinator) createFederatedUser(ctx context.Context, email string, token *fbauth.Token) (*models.User, error) {
	name, _ := token.Claims["name"].(string)
	name = strings.TrimSpace(name)
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}

	// No password hash: the account can only sign in through Firebase until one is set.
	user := &models.User{Email: email, Name: name, Status: models.DefaultStatus}
	err := c.users.CreateUser(ctx, user)
	if errors.Is(err, repositories.ErrDuplicate) {
		// Lost a race with a concurrent first login.
		user, err = c.users.GetUserByEmail(ctx, email)
	}
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("create federated user: %w", err))
	}

	c.log.InfoContext(ctx, "Federated user created",
		"userID", user.ID,
		"firebaseUID", token.UID)

	return user, nil
}

func (c *Coordinator) issue(user *models.User) (*models.LoginResult, error) {
	token, expiresAt, err := c.credentials.Issue(user.ID, user.Email)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("issue credential: %w", err))
	}

	return &models.LoginResult{Token: token, UserID: user.ID, ExpiresAt: expiresAt}, nil
}

// GetUserStatus returns the caller's status.
func (c *Coordinator) GetUserStatus(ctx context.Context, credential string) (string, error) {
	userID, err := c.credentials.Verify(credential)
	if err != nil {
		return "", err
	}

	user, err := c.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return "", apperr.NotFound(msgUserNotFound)
		}
		return "", apperr.Internal(fmt.Errorf("find user %d: %w", userID, err))
	}

	return user.Status, nil
}

// UpdateStatus sets the caller's status. Only the caller's own identity is ever touched.
func (c *Coordinator) UpdateStatus(ctx context.Context, credential, status string) (string, error) {
	userID, err := c.credentials.Verify(credential)
	if err != nil {
		return "", err
	}

	status = strings.TrimSpace(status)
	if err = c.users.UpdateStatus(ctx, userID, status); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return "", apperr.NotFound(msgUserNotFound)
		}
		return "", apperr.Internal(fmt.Errorf("update status of user %d: %w", userID, err))
	}

	return status, nil
}

// GetFeedPage returns one page of the feed, newest first.
func (c *Coordinator) GetFeedPage(ctx context.Context, credential string, pageIndex int) (*models.FeedPage, error) {
	if _, err := c.credentials.Verify(credential); err != nil {
		return nil, err
	}

	page, err := c.paginator.Page(ctx, pageIndex, c.pageSize)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return page, nil
}

// GetPost returns a single post.
func (c *Coordinator) GetPost(ctx context.Context, credential, postID string) (*models.PostSnapshot, error) {
	if _, err := c.credentials.Verify(credential); err != nil {
		return nil, err
	}

	post, err := c.loadPost(ctx, postID)
	if err != nil {
		return nil, err
	}

	snapshot := post.Snapshot(c.creator(ctx, post.CreatorID))
	return &snapshot, nil
}

// CreatePost stores a new post owned by the caller, records it in the caller's
// owned-post set and announces it.
func (c *Coordinator) CreatePost(ctx context.Context, credential string, req models.PostRequest) (*models.PostSnapshot, error) {
	userID, err := c.credentials.Verify(credential)
	if err != nil {
		return nil, err
	}

	// Only a stored upload can become a new post's image.
	in := validation.PostInput{
		Title:    strings.TrimSpace(req.Title),
		Content:  strings.TrimSpace(req.Content),
		ImageURL: strings.TrimSpace(req.UploadedImage),
	}
	if err = c.validator.ValidatePost(in); err != nil {
		return nil, err
	}

	owner, err := c.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, apperr.NotFound(msgUserNotFound)
		}
		return nil, apperr.Internal(fmt.Errorf("find user %d: %w", userID, err))
	}

	now := c.now()
	post := &models.Post{
		ID:        primitive.NewObjectID(),
		Title:     in.Title,
		Content:   in.Content,
		ImageURL:  in.ImageURL,
		CreatorID: userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	postID := post.ID.Hex()

	// Held through publish so no later mutation of this post can be announced first.
	unlock := c.locks.Lock(postID)
	defer unlock()

	commitCtx := context.WithoutCancel(ctx)

	if err = c.posts.CreatePost(commitCtx, post); err != nil {
		return nil, apperr.Internal(fmt.Errorf("insert post: %w", err))
	}

	if err = c.users.AddOwnedPost(commitCtx, userID, postID); err != nil {
		if cerr := c.posts.DeletePost(commitCtx, postID); cerr != nil {
			c.log.ErrorContext(ctx, "Failed to roll back post after owner update failed",
				"error", cerr,
				"cause", err,
				"postID", postID,
				"userID", userID)
		}
		return nil, apperr.Internal(fmt.Errorf("add post %s to owner %d: %w", postID, userID, err))
	}

	snapshot := post.Snapshot(owner)
	c.publisher.Publish(commitCtx, broadcast.Event{Action: broadcast.ActionCreate, Post: snapshot})

	c.log.InfoContext(ctx, "Post created",
		"postID", postID,
		"userID", userID)

	return &snapshot, nil
}

// UpdatePost replaces the title, content and optionally the image of a post the caller
// owns. A new image must come from an upload; req.Image may only name the current one.
func (c *Coordinator) UpdatePost(ctx context.Context, credential, postID string, req models.PostRequest) (*models.PostSnapshot, error) {
	userID, err := c.credentials.Verify(credential)
	if err != nil {
		return nil, err
	}

	in := validation.PostUpdateInput{
		Title:    strings.TrimSpace(req.Title),
		Content:  strings.TrimSpace(req.Content),
		ImageURL: strings.TrimSpace(req.UploadedImage),
	}
	current := strings.TrimSpace(req.Image)
	if err = c.validator.ValidatePostUpdate(in); err != nil {
		return nil, err
	}

	unlock := c.locks.Lock(postID)
	defer unlock()

	post, err := c.loadPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.CreatorID != userID {
		return nil, apperr.Forbidden(msgNotAuthorized)
	}
	// Without an upload the image may only be restated, never pointed elsewhere.
	if in.ImageURL == "" && current != "" && current != post.ImageURL {
		return nil, apperr.InvalidInput(msgInvalidInput, []apperr.FieldError{
			{Field: "image", Reason: "image must be the post's current image or a new upload"},
		})
	}

	oldImage := post.ImageURL
	post.Title = in.Title
	post.Content = in.Content
	if in.ImageURL != "" {
		post.ImageURL = in.ImageURL
	}
	post.UpdatedAt = c.now()

	commitCtx := context.WithoutCancel(ctx)

	if err = c.posts.UpdatePost(commitCtx, post); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, apperr.NotFound(msgPostNotFound)
		}
		return nil, apperr.Internal(fmt.Errorf("update post %s: %w", postID, err))
	}

	if oldImage != "" && oldImage != post.ImageURL {
		c.images.Release(oldImage)
	}

	snapshot := post.Snapshot(c.creator(commitCtx, userID))
	c.publisher.Publish(commitCtx, broadcast.Event{Action: broadcast.ActionUpdate, Post: snapshot})

	c.log.InfoContext(ctx, "Post updated",
		"postID", postID,
		"userID", userID,
		"imageReplaced", oldImage != post.ImageURL)

	return &snapshot, nil
}

// DeletePost removes a post the caller owns, drops it from the owner's set and
// releases its image. Deleting a missing post fails with NotFound.
func (c *Coordinator) DeletePost(ctx context.Context, credential, postID string) (*models.PostSnapshot, error) {
	userID, err := c.credentials.Verify(credential)
	if err != nil {
		return nil, err
	}

	unlock := c.locks.Lock(postID)
	defer unlock()

	post, err := c.loadPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.CreatorID != userID {
		return nil, apperr.Forbidden(msgNotAuthorized)
	}

	commitCtx := context.WithoutCancel(ctx)

	removed := true
	if err = c.users.RemoveOwnedPost(commitCtx, userID, postID); err != nil {
		if !errors.Is(err, repositories.ErrNotFound) {
			return nil, apperr.Internal(fmt.Errorf("remove post %s from owner %d: %w", postID, userID, err))
		}
		removed = false
		c.log.WarnContext(ctx, "Owned-post entry missing during delete",
			"postID", postID,
			"userID", userID)
	}

	if err = c.posts.DeletePost(commitCtx, postID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, apperr.NotFound(msgPostNotFound)
		}
		if removed {
			if cerr := c.users.AddOwnedPost(commitCtx, userID, postID); cerr != nil {
				c.log.ErrorContext(ctx, "Failed to restore owned-post entry after delete failed",
					"error", cerr,
					"cause", err,
					"postID", postID,
					"userID", userID)
			}
		}
		return nil, apperr.Internal(fmt.Errorf("delete post %s: %w", postID, err))
	}

	if post.ImageURL != "" {
		c.images.Release(post.ImageURL)
	}

	snapshot := post.Snapshot(c.creator(commitCtx, userID))
	c.publisher.Publish(commitCtx, broadcast.Event{Action: broadcast.ActionDelete, Post: snapshot})

	c.log.InfoContext(ctx, "Post deleted",
		"postID", postID,
		"userID", userID)

	return &snapshot, nil
}

func (c *Coordinator) loadPost(ctx context.Context, postID string) (*models.Post, error) {
	post, err := c.posts.GetPostByID(ctx, postID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, apperr.NotFound(msgPostNotFound)
		}
		return nil, apperr.Internal(fmt.Errorf("find post %s: %w", postID, err))
	}
	return post, nil
}

// creator resolves a post's owner for display. Failures degrade to an id-only creator.
func (c *Coordinator) creator(ctx context.Context, userID uint) *models.User {
	user, err := c.users.GetUserByID(ctx, userID)
	if err != nil {
		c.log.WarnContext(ctx, "Failed to resolve post creator",
			"error", err,
			"userID", userID)
		return nil
	}
	return user
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
