package repository

import (
	"context"
	"fmt"
	"time"

	"videotube-server/internal/domain"

	"github.com/go-kivik/kivik/v4"
)

const videoType = "video"

// VideoRepository reads video documents. They are written by the upload
// pipeline, not by this service.
type VideoRepository interface {
	FindByIDs(ctx context.Context, ids []string) ([]*domain.Video, error)
}

type videoDocument struct {
	ID          string    `json:"_id"`
	Rev         string    `json:"_rev,omitempty"`
	Type        string    `json:"type"`
	VideoID     string    `json:"video_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	VideoFile   string    `json:"video_file"`
	Thumbnail   string    `json:"thumbnail"`
	Duration    float64   `json:"duration"`
	Views       int64     `json:"views"`
	IsPublished bool      `json:"is_published"`
	OwnerID     string    `json:"owner_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (d *videoDocument) toDomain() *domain.Video {
	return &domain.Video{
		ID:          d.VideoID,
		Title:       d.Title,
		Description: d.Description,
		VideoFile:   d.VideoFile,
		Thumbnail:   d.Thumbnail,
		Duration:    d.Duration,
		Views:       d.Views,
		IsPublished: d.IsPublished,
		OwnerID:     d.OwnerID,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

type videoRepository struct {
	client *kivik.Client
	dbName string
}

func NewVideoRepository(client *kivik.Client, dbName string) VideoRepository {
	return &videoRepository{
		client: client,
		dbName: dbName,
	}
}

func videoDocID(id string) string {
	return fmt.Sprintf("video:%s", id)
}

// FindByIDs returns the videos that exist, in the order of ids. Missing or
// deleted ids are skipped.
func (r *videoRepository) FindByIDs(ctx context.Context, ids []string) ([]*domain.Video, error) {
	if len(ids) == 0 {
		return []*domain.Video{}, nil
	}

	docIDs := make([]string, len(ids))
	for i, id := range ids {
		docIDs[i] = videoDocID(id)
	}

	db := r.client.DB(r.dbName)
	rows := db.Find(ctx, map[string]interface{}{
		"selector": map[string]interface{}{
			"_id":  map[string]interface{}{"$in": docIDs},
			"type": videoType,
		},
		"limit": len(docIDs),
	})
	defer rows.Close()

	byID := make(map[string]*domain.Video, len(ids))
	for rows.Next() {
		var doc videoDocument
		if err := rows.ScanDoc(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan video: %w", err)
		}
		byID[doc.VideoID] = doc.toDomain()
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query videos: %w", err)
	}

	videos := make([]*domain.Video, 0, len(byID))
	for _, id := range ids {
		if v, ok := byID[id]; ok {
			videos = append(videos, v)
		}
	}

	return videos, nil
}
