package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Post is a feed post stored in MongoDB.
type Post struct {
	ID        primitive.ObjectID `json:"id" bson:"_id"`
	Title     string             `json:"title" bson:"title"`
	Content   string             `json:"content" bson:"content"`
	ImageURL  string             `json:"image_url" bson:"image_url"`
	CreatorID uint               `json:"creator_id" bson:"creator_id"` // set once, at creation
	CreatedAt time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time          `json:"updated_at" bson:"updated_at"`
}

// PostSnapshot is a post as returned to clients and carried by change events,
// with the creator resolved to its public identity.
type PostSnapshot struct {
	ID        string      `json:"id"`
	Title     string      `json:"title"`
	Content   string      `json:"content"`
	ImageURL  string      `json:"imageUrl"`
	Creator   UserCompact `json:"creator"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// Snapshot resolves the post against its creator. A nil creator keeps only the id.
func (p *Post) Snapshot(creator *User) PostSnapshot {
	compact := UserCompact{ID: p.CreatorID}
	if creator != nil {
		compact = creator.ToCompact()
	}

	return PostSnapshot{
		ID:        p.ID.Hex(),
		Title:     p.Title,
		Content:   p.Content,
		ImageURL:  p.ImageURL,
		Creator:   compact,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

// FeedPage is one window of the feed, newest first. TotalItems is counted separately
// from the scan and may momentarily disagree with it under concurrent writes.
type FeedPage struct {
	Posts      []PostSnapshot `json:"posts"`
	TotalItems int64          `json:"totalItems"`
	Page       int            `json:"page"`
	PageSize   int            `json:"pageSize"`
}

// PostRequest carries the fields of a post create or update form. Image is the
// client's text reference to the post's current image; UploadedImage is only ever
// set by the server after storing an uploaded file.
type PostRequest struct {
	Title         string `json:"title" form:"title"`
	Content       string `json:"content" form:"content"`
	Image         string `json:"image" form:"image"`
	UploadedImage string `json:"-" form:"-"`
}
