package handlers

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/anonto42/nano-feed/backend/internal/middleware"
	"github.com/anonto42/nano-feed/backend/internal/models"
	"github.com/labstack/echo/v4"
)

// PostService is the post side of the feed coordinator.
type PostService interface {
	GetFeedPage(ctx context.Context, credential string, pageIndex int) (*models.FeedPage, error)
	GetPost(ctx context.Context, credential, postID string) (*models.PostSnapshot, error)
	CreatePost(ctx context.Context, credential string, req models.PostRequest) (*models.PostSnapshot, error)
	UpdatePost(ctx context.Context, credential, postID string, req models.PostRequest) (*models.PostSnapshot, error)
	DeletePost(ctx context.Context, credential, postID string) (*models.PostSnapshot, error)
}

// ImageSaver stores uploaded images and takes back ones that ended up unused.
type ImageSaver interface {
	Save(file *multipart.FileHeader) (string, error)
	Release(ref string)
}

// PostHandler handles HTTP requests related to posts
type PostHandler struct {
	posts    PostService
	images   ImageSaver
	verifier middleware.Verifier
}

func NewPostHandler(posts PostService, images ImageSaver, verifier middleware.Verifier) *PostHandler {
	return &PostHandler{
		posts:    posts,
		images:   images,
		verifier: verifier,
	}
}

// RegisterPostRoutes registers post-related routes
func (h *PostHandler) RegisterPostRoutes(g *echo.Group) {
	g.GET("/posts", h.GetPosts)
	g.POST("/post", h.CreatePost)
	g.GET("/post/:postId", h.GetPost)
	g.PUT("/post/:postId", h.UpdatePost)
	g.DELETE("/post/:postId", h.DeletePost)
}

// GetPosts returns one page of the feed. A missing or malformed page means the first.
func (h *PostHandler) GetPosts(c echo.Context) error {
	page, err := strconv.Atoi(c.QueryParam("page"))
	if err != nil {
		page = 1
	}

	feed, err := h.posts.GetFeedPage(c.Request().Context(), credential(c), page)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, echo.Map{
		"message":    "Fetched posts successfully.",
		"posts":      feed.Posts,
		"totalItems": feed.TotalItems,
		"page":       feed.Page,
		"pageSize":   feed.PageSize,
	})
}

func (h *PostHandler) GetPost(c echo.Context) error {
	post, err := h.posts.GetPost(c.Request().Context(), credential(c), c.Param("postId"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, echo.Map{
		"message": "Post fetched.",
		"post":    post,
	})
}

// CreatePost accepts a multipart form with title, content and an image file.
func (h *PostHandler) CreatePost(c echo.Context) error {
	req, saved, err := h.bindPost(c)
	if err != nil {
		return err
	}

	post, err := h.posts.CreatePost(c.Request().Context(), credential(c), req)
	if err != nil {
		h.discard(saved)
		return err
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"message": "Post created successfully!",
		"post":    post,
		"creator": post.Creator,
	})
}

// UpdatePost accepts the same form as CreatePost. Without a new file the image field
// may restate the current image reference, or be left empty to keep it.
func (h *PostHandler) UpdatePost(c echo.Context) error {
	req, saved, err := h.bindPost(c)
	if err != nil {
		return err
	}

	post, err := h.posts.UpdatePost(c.Request().Context(), credential(c), c.Param("postId"), req)
	if err != nil {
		h.discard(saved)
		return err
	}

	return c.JSON(http.StatusOK, echo.Map{
		"message": "Post updated!",
		"post":    post,
	})
}

func (h *PostHandler) DeletePost(c echo.Context) error {
	if _, err := h.posts.DeletePost(c.Request().Context(), credential(c), c.Param("postId")); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, echo.Map{
		"message": "Deleted post.",
	})
}

// bindPost reads the text fields and stores an attached image file, if any. The
// returned reference is empty when no file was saved. Nothing is written to disk for
// an unauthenticated caller.
func (h *PostHandler) bindPost(c echo.Context) (models.PostRequest, string, error) {
	if _, err := h.verifier.Verify(credential(c)); err != nil {
		return models.PostRequest{}, "", err
	}

	var req models.PostRequest
	if err := c.Bind(&req); err != nil {
		return req, "", echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}

	file, err := c.FormFile("image")
	switch {
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		return req, "", nil
	case err != nil:
		return req, "", echo.NewHTTPError(http.StatusBadRequest, "Invalid image upload")
	}

	ref, err := h.images.Save(file)
	if err != nil {
		return req, "", err
	}
	req.UploadedImage = ref

	return req, ref, nil
}

func (h *PostHandler) discard(ref string) {
	if ref != "" {
		h.images.Release(ref)
	}
}
