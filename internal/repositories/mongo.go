package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vidshare/backend/internal/models"
)

const (
	usersCollection  = "users"
	videosCollection = "videos"
)

// MongoSource hands out the shared database handle, dialing it on first use.
type MongoSource interface {
	Acquire(ctx context.Context) (*mongo.Database, error)
}

type userDocument struct {
	ID        string    `bson:"_id"`
	Email     string    `bson:"email"`
	Password  string    `bson:"password"`
	CreatedAt time.Time `bson:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

type transformationDocument struct {
	Height  int  `bson:"height"`
	Width   int  `bson:"width"`
	Quality *int `bson:"quality,omitempty"`
}

type videoDocument struct {
	ID             string                 `bson:"_id"`
	Title          string                 `bson:"title"`
	Description    string                 `bson:"description"`
	VideoURL       string                 `bson:"videoUrl"`
	ThumbnailURL   string                 `bson:"thumbnailUrl"`
	Controls       bool                   `bson:"controls"`
	Transformation transformationDocument `bson:"transformation"`
	CreatedAt      time.Time              `bson:"createdAt"`
	UpdatedAt      time.Time              `bson:"updatedAt"`
}

// MongoUserRepository provides MongoDB-backed persistence for users.
type MongoUserRepository struct {
	source MongoSource
}

// NewMongoUserRepository constructs a user repository backed by MongoDB.
func NewMongoUserRepository(source MongoSource) *MongoUserRepository {
	return &MongoUserRepository{source: source}
}

// Create persists a new user record.
func (r *MongoUserRepository) Create(ctx context.Context, user models.User) error {
	database, err := r.source.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}

	doc := userDocument{
		ID:        user.ID,
		Email:     user.Email,
		Password:  user.Password,
		CreatedAt: user.CreatedAt.UTC(),
		UpdatedAt: user.UpdatedAt.UTC(),
	}
	if _, err := database.Collection(usersCollection).InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// FindByEmail fetches a user by their email address.
func (r *MongoUserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	database, err := r.source.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}

	var doc userDocument
	err = database.Collection(usersCollection).FindOne(ctx, bson.M{"email": email}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("find user by email: %w", err)
	}

	return models.User{
		ID:        doc.ID,
		Email:     doc.Email,
		Password:  doc.Password,
		CreatedAt: doc.CreatedAt.UTC(),
		UpdatedAt: doc.UpdatedAt.UTC(),
	}, nil
}

// MongoVideoRepository provides MongoDB-backed persistence for videos.
type MongoVideoRepository struct {
	source MongoSource
}

// NewMongoVideoRepository constructs a video repository backed by MongoDB.
func NewMongoVideoRepository(source MongoSource) *MongoVideoRepository {
	return &MongoVideoRepository{source: source}
}

// Create stores a new video after re-checking the schema.
func (r *MongoVideoRepository) Create(ctx context.Context, video models.Video) error {
	if err := video.Validate(); err != nil {
		return err
	}

	database, err := r.source.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := database.Collection(videosCollection).InsertOne(ctx, toVideoDocument(video)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert video: %w", err)
	}
	return nil
}

// List returns all videos sorted by creation time, newest first.
func (r *MongoVideoRepository) List(ctx context.Context) ([]models.Video, error) {
	database, err := r.source.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	cursor, err := database.Collection(videosCollection).Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("query videos: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []videoDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode videos: %w", err)
	}

	videos := make([]models.Video, 0, len(docs))
	for _, doc := range docs {
		videos = append(videos, fromVideoDocument(doc))
	}
	return videos, nil
}

func toVideoDocument(v models.Video) videoDocument {
	return videoDocument{
		ID:           v.ID,
		Title:        v.Title,
		Description:  v.Description,
		VideoURL:     v.VideoURL,
		ThumbnailURL: v.ThumbnailURL,
		Controls:     v.Controls,
		Transformation: transformationDocument{
			Height:  v.Transformation.Height,
			Width:   v.Transformation.Width,
			Quality: v.Transformation.Quality,
		},
		CreatedAt: v.CreatedAt.UTC(),
		UpdatedAt: v.UpdatedAt.UTC(),
	}
}

func fromVideoDocument(doc videoDocument) models.Video {
	return models.Video{
		ID:           doc.ID,
		Title:        doc.Title,
		Description:  doc.Description,
		VideoURL:     doc.VideoURL,
		ThumbnailURL: doc.ThumbnailURL,
		Controls:     doc.Controls,
		Transformation: models.Transformation{
			Height:  doc.Transformation.Height,
			Width:   doc.Transformation.Width,
			Quality: doc.Transformation.Quality,
		},
		CreatedAt: doc.CreatedAt.UTC(),
		UpdatedAt: doc.UpdatedAt.UTC(),
	}
}

// EnsureMongoSchema creates the indexes the repositories rely on: a unique
// email index on users and a creation-time index on videos.
func EnsureMongoSchema(ctx context.Context, database *mongo.Database) error {
	if _, err := database.Collection(usersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("email_unique"),
	}); err != nil {
		return fmt.Errorf("create users email index: %w", err)
	}

	if _, err := database.Collection(videosCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "createdAt", Value: -1}},
		Options: options.Index().SetName("created_at_desc"),
	}); err != nil {
		return fmt.Errorf("create videos createdAt index: %w", err)
	}
	return nil
}

var _ UserRepository = (*MongoUserRepository)(nil)
var _ VideoRepository = (*MongoVideoRepository)(nil)
